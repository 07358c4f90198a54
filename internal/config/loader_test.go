package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "gpt-5-mini", cfg.InferenceModel)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"anthropicApiKey": "sk-ant-test-key",
			"walletAddress": "0x71C7656EC7ab88b098defB751B7401B5f6d8976e",
			"inferenceModel": "claude-sonnet-4"
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "sk-ant-test-key", cfg.AnthropicAPIKey)
		assert.Equal(t, "claude-sonnet-4", cfg.InferenceModel)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{"anthropicApiKey": "sk-ant-test-key"}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Logging.File)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.AnthropicAPIKey = "sk-ant-test-key"
		cfg.WalletAddress = "0x71C7656EC7ab88b098defB751B7401B5f6d8976e"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)
		require.NoError(t, err)

		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		loader2 := NewLoader(configPath)
		loadedCfg, err := loader2.Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-test-key", loadedCfg.AnthropicAPIKey)
		assert.Equal(t, "0x71C7656EC7ab88b098defB751B7401B5f6d8976e", loadedCfg.WalletAddress)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		cfg := DefaultConfig()
		cfg.AnthropicAPIKey = "sk-ant-test-key"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)
		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".automaton")
	})
}

func TestWatcherReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	initial := DefaultConfig()
	initial.WalletAddress = "0x71C7656EC7ab88b098defB751B7401B5f6d8976e"

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(initial))

	watcher, err := NewWatcher(loader)
	require.NoError(t, err)
	defer watcher.Stop()

	changed := make(chan *Config, 1)
	watcher.Start(func(cfg *Config) {
		changed <- cfg
	}, nil)

	updated := DefaultConfig()
	updated.WalletAddress = initial.WalletAddress
	updated.TierThresholds.High = 999
	require.NoError(t, loader.Save(updated))

	select {
	case cfg := <-changed:
		assert.Equal(t, float64(999), cfg.TierThresholds.High)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
