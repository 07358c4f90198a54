package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetKV(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetKV("discovery.cursor.openai", "cursor-abc"))

	value, err := s.GetKV("discovery.cursor.openai")
	require.NoError(t, err)
	assert.Equal(t, "cursor-abc", value)
}

func TestSetKVIsLastWriteWins(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetKV("spawn.cooldown", "1"))
	require.NoError(t, s.SetKV("spawn.cooldown", "2"))

	value, err := s.GetKV("spawn.cooldown")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func TestGetKVNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetKV("missing")
	assert.ErrorIs(t, err, ErrKVNotFound)
}

func TestDeleteKV(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetKV("tmp", "x"))
	require.NoError(t, s.DeleteKV("tmp"))

	_, err := s.GetKV("tmp")
	assert.ErrorIs(t, err, ErrKVNotFound)

	assert.NoError(t, s.DeleteKV("never-existed"))
}
