package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrKVNotFound is returned by GetKV when the key has never been set.
var ErrKVNotFound = errors.New("kv key not found")

// SetKV stores a flag value, last-write-wins, used for durable agent loop
// state such as discovery cursors and spawn cooldowns (spec §4.3).
func (s *Store) SetKV(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set kv %q: %w", key, err)
	}
	return nil
}

// GetKV reads a flag value, or ErrKVNotFound if it was never set.
func (s *Store) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKVNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read kv %q: %w", key, err)
	}
	return value, nil
}

// DeleteKV removes a key. Deleting an absent key is not an error.
func (s *Store) DeleteKV(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete kv %q: %w", key, err)
	}
	return nil
}
