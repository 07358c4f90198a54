package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader handles configuration loading and change notification.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a new config loader for the given path. An empty path
// resolves to $HOME/.automaton/automaton.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// resolvedPath returns the effective config file path.
func (l *Loader) resolvedPath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".automaton", "automaton.json"), nil
}

// Load loads the configuration from file, overlaying environment variables
// (CONWAY_API_URL, CONWAY_API_KEY, OPENAI_BASE_URL, ANTHROPIC_BASE_URL,
// OLLAMA_BASE_URL, and any other key under the MONEYCLAW_ prefix).
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvedPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		l.applyDataDirDefaults(cfg)
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("MONEYCLAW")
	v.AutomaticEnv()
	// Spec-named environment overrides (§6) bind directly to struct keys
	// without the MONEYCLAW_ prefix.
	_ = v.BindEnv("conwayApiUrl", "CONWAY_API_URL")
	_ = v.BindEnv("conwayApiKey", "CONWAY_API_KEY")
	_ = v.BindEnv("openaiBaseUrl", "OPENAI_BASE_URL")
	_ = v.BindEnv("anthropicBaseUrl", "ANTHROPIC_BASE_URL")
	_ = v.BindEnv("ollamaBaseUrl", "OLLAMA_BASE_URL")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	l.v = v
	l.applyDataDirDefaults(cfg)
	return cfg, nil
}

func (l *Loader) applyDataDirDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".automaton")
		}
	}
	if cfg.Logging.File == "" && cfg.DataDir != "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "automaton.log")
	}
}

// Save writes the configuration back to its file, creating the parent
// directory if necessary.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvedPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path this loader resolves to.
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvedPath()
	if err != nil {
		return ""
	}
	return path
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

// Watcher watches the config file for changes and invokes onChange with the
// freshly reloaded config whenever it is written. It exists so that a
// changed tier threshold takes effect on the next governor evaluation
// without a process restart.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a config file watcher for the given loader.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	configPath := loader.GetConfigPath()
	dir := filepath.Dir(configPath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	return &Watcher{loader: loader, watcher: fw, done: make(chan struct{})}, nil
}

// Start runs the watch loop in a new goroutine, calling onChange with each
// successfully reloaded config. Malformed reloads are reported via onError
// and do not replace the last-known-good config.
func (w *Watcher) Start(onChange func(*Config), onError func(error)) {
	configPath := w.loader.GetConfigPath()
	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(configPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := w.loader.Load()
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if err := cfg.Validate(); err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onChange != nil {
					onChange(cfg)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()
}

// Stop ends the watch loop and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
