package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSession(t *testing.T, s *Store) *Session {
	t.Helper()
	sess, err := s.OpenSession()
	require.NoError(t, err)
	return sess
}

func TestOpenTurnIndicesAreMonotonicAndGapless(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	turn0, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(0), turn0.Index)

	require.NoError(t, s.CompleteTurn(turn0.ID, 10, 20, 0.01, nil))

	turn1, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(1), turn1.Index)
}

func TestOpenTurnIndicesAreIndependentPerSession(t *testing.T) {
	s := newTestStore(t)
	sess1 := mustSession(t, s)

	turn0, err := s.OpenTurn(sess1.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.CompleteTurn(turn0.ID, 1, 1, 0, nil))
	require.NoError(t, s.CloseSession())

	sess2 := mustSession(t, s)
	turnOther, err := s.OpenTurn(sess2.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(0), turnOther.Index)
}

func TestCompleteTurnPersistsToolCallsAtomically(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	turn, err := s.OpenTurn(sess.ID, "high", "gpt-5")
	require.NoError(t, err)

	now := time.Now().UTC()
	calls := []ToolCall{
		{ToolName: "bash", Input: `{"cmd":"ls"}`, Output: "a\nb\n", StartedAt: now, FinishedAt: &now},
		{ToolName: "read_file", Input: `{"path":"x"}`, Output: "contents", StartedAt: now, FinishedAt: &now},
	}
	require.NoError(t, s.CompleteTurn(turn.ID, 100, 50, 0.25, calls))

	got, err := s.ListToolCalls(turn.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bash", got[0].ToolName)
	assert.Equal(t, "read_file", got[1].ToolName)
	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, 1, got[1].Seq)
}

func TestCompletingAnAlreadyFinishedTurnFails(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	turn, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.CompleteTurn(turn.ID, 1, 1, 0, nil))

	err = s.CompleteTurn(turn.ID, 2, 2, 0, nil)
	assert.ErrorIs(t, err, ErrTurnNotPending)

	err = s.FailTurn(turn.ID, "boom", nil)
	assert.ErrorIs(t, err, ErrTurnNotPending)
}

func TestFailTurnRecordsErrorText(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	turn, err := s.OpenTurn(sess.ID, "critical", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.FailTurn(turn.ID, "provider timeout", nil))

	turns, err := s.RecentTurns(sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, TurnFailed, turns[0].Status)
	assert.Equal(t, "provider timeout", turns[0].ErrorText)
}

func TestLastTurnErrorReturnsEmptyWhenNoneFailed(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	turn, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.CompleteTurn(turn.ID, 1, 1, 0, nil))

	got, err := s.LastTurnError(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestLastTurnErrorReturnsMostRecent(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	turn1, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.FailTurn(turn1.ID, "first failure", nil))

	turn2, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.CompleteTurn(turn2.ID, 1, 1, 0, nil))

	turn3, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
	require.NoError(t, err)
	require.NoError(t, s.FailTurn(turn3.ID, "second failure", nil))

	got, err := s.LastTurnError(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "second failure", got)
}

func TestRecentTurnsOldestFirstBounded(t *testing.T) {
	s := newTestStore(t)
	sess := mustSession(t, s)

	for i := 0; i < 5; i++ {
		turn, err := s.OpenTurn(sess.ID, "normal", "gpt-5-mini")
		require.NoError(t, err)
		require.NoError(t, s.CompleteTurn(turn.ID, 1, 1, 0, nil))
	}

	turns, err := s.RecentTurns(sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, int64(2), turns[0].Index)
	assert.Equal(t, int64(3), turns[1].Index)
	assert.Equal(t, int64(4), turns[2].Index)
}
