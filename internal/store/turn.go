package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTurnNotPending is returned by CompleteTurn/FailTurn when the target
// turn is not in the pending state; a completed or failed turn is immutable.
var ErrTurnNotPending = errors.New("turn is not pending")

// OpenTurn inserts a new pending turn with the next monotonic index for the
// given session. The index has no gaps: it is computed as
// max(turn_index)+1 for the session, inside the same transaction as the
// insert, so concurrent callers within one process never collide.
func (s *Store) OpenTurn(sessionID int64, tier, modelID string) (*Turn, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin turn open: %w", err)
	}
	defer tx.Rollback()

	var maxIndex sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(turn_index) FROM turns WHERE session_id = ?`, sessionID).Scan(&maxIndex); err != nil {
		return nil, fmt.Errorf("failed to compute next turn index: %w", err)
	}
	nextIndex := int64(0)
	if maxIndex.Valid {
		nextIndex = maxIndex.Int64 + 1
	}

	now := time.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO turns (session_id, turn_index, tier, model_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, nextIndex, tier, modelID, string(TurnPending), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new turn id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit turn open: %w", err)
	}

	return &Turn{
		ID:        id,
		SessionID: sessionID,
		Index:     nextIndex,
		Tier:      tier,
		ModelID:   modelID,
		Status:    TurnPending,
		CreatedAt: now,
	}, nil
}

// CompleteTurn marks a pending turn completed, recording token usage and
// credit delta, and appends its tool calls in the same transaction so the
// turn and its tool calls become durable atomically (spec §4.1).
func (s *Store) CompleteTurn(turnID int64, promptTokens, responseTokens int, creditDelta float64, toolCalls []ToolCall) error {
	return s.finishTurn(turnID, TurnCompleted, "", promptTokens, responseTokens, creditDelta, toolCalls)
}

// FailTurn marks a pending turn failed with the given error text, appending
// any tool calls that ran before the failure.
func (s *Store) FailTurn(turnID int64, errorText string, toolCalls []ToolCall) error {
	return s.finishTurn(turnID, TurnFailed, errorText, 0, 0, 0, toolCalls)
}

func (s *Store) finishTurn(turnID int64, status TurnStatus, errorText string, promptTokens, responseTokens int, creditDelta float64, toolCalls []ToolCall) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin turn finish: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(
		`UPDATE turns SET status = ?, error_text = ?, prompt_tokens = ?, response_tokens = ?, credit_delta = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), errorText, promptTokens, responseTokens, creditDelta, now.Unix(), turnID, string(TurnPending),
	)
	if err != nil {
		return fmt.Errorf("failed to update turn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm turn update: %w", err)
	}
	if n == 0 {
		return ErrTurnNotPending
	}

	for i, tc := range toolCalls {
		finishedAt := sql.NullInt64{}
		if tc.FinishedAt != nil {
			finishedAt = sql.NullInt64{Int64: tc.FinishedAt.Unix(), Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO tool_calls (turn_id, seq, tool_name, input, output, exit_code, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			turnID, i, tc.ToolName, tc.Input, tc.Output, tc.ExitCode, tc.StartedAt.Unix(), finishedAt,
		); err != nil {
			return fmt.Errorf("failed to insert tool call %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn finish: %w", err)
	}
	return nil
}

// ListToolCalls returns a turn's tool calls in dispatch order.
func (s *Store) ListToolCalls(turnID int64) ([]ToolCall, error) {
	rows, err := s.db.Query(
		`SELECT id, turn_id, seq, tool_name, input, output, exit_code, started_at, finished_at
		 FROM tool_calls WHERE turn_id = ? ORDER BY seq ASC`, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCall
	for rows.Next() {
		var tc ToolCall
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&tc.ID, &tc.TurnID, &tc.Seq, &tc.ToolName, &tc.Input, &tc.Output, &tc.ExitCode, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		tc.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			tc.FinishedAt = &t
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// RecentTurns returns the most recent turns for a session, oldest first,
// bounded by limit. Used to compose the loop's chronological prompt context
// (spec §4.2): the query pages newest-first with LIMIT, then the result is
// reversed so callers read it forward in time.
func (s *Store) RecentTurns(sessionID int64, limit int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, turn_index, tier, model_id, prompt_tokens, response_tokens, credit_delta, status, error_text, created_at, completed_at
		 FROM turns WHERE session_id = ? ORDER BY turn_index DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var created int64
		var completed sql.NullInt64
		var status string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Index, &t.Tier, &t.ModelID, &t.PromptTokens, &t.ResponseTokens, &t.CreditDelta, &status, &t.ErrorText, &created, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Status = TurnStatus(status)
		t.CreatedAt = time.Unix(created, 0).UTC()
		if completed.Valid {
			c := time.Unix(completed.Int64, 0).UTC()
			t.CompletedAt = &c
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastTurnError returns the error text of the most recent turn that has
// one, or "" if every turn so far succeeded. Used by the status surface
// (spec §7: "status command reports last non-empty turn error").
func (s *Store) LastTurnError(sessionID int64) (string, error) {
	var errorText string
	err := s.db.QueryRow(
		`SELECT error_text FROM turns WHERE session_id = ? AND error_text != '' ORDER BY turn_index DESC LIMIT 1`,
		sessionID,
	).Scan(&errorText)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last turn error: %w", err)
	}
	return errorText, nil
}

// RecentErrorRate counts failed turns for a session in the trailing hour,
// the ErrorsPerHour signal the survival tier governor classifies on
// (spec §4.2 step 1). An hour-wide window makes the count itself the rate.
func (s *Store) RecentErrorRate(sessionID int64) (float64, error) {
	since := time.Now().UTC().Add(-time.Hour).Unix()
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM turns WHERE session_id = ? AND status = ? AND created_at >= ?`,
		sessionID, string(TurnFailed), since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent errors: %w", err)
	}
	return float64(count), nil
}
