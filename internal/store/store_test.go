package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "moneyclaw.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	s, err := Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "moneyclaw.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	s1, err := Open(dbPath, logger)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath, logger)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	require.NoError(t, s2.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	require.Equal(t, len(migrations), version)
}
