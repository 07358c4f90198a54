package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoLifecycleEvents is returned by LatestState when a child has no
// recorded transitions yet.
var ErrNoLifecycleEvents = errors.New("no lifecycle events for child")

// AppendLifecycleEvent appends an immutable, totally-ordered transition
// record for a child (spec §3: lifecycle events are append-only).
func (s *Store) AppendLifecycleEvent(childID, transition string, toState ChildStatus) error {
	_, err := s.db.Exec(
		`INSERT INTO lifecycle_events (child_id, transition, to_state, created_at) VALUES (?, ?, ?, ?)`,
		childID, transition, string(toState), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append lifecycle event for %q: %w", childID, err)
	}
	return nil
}

// LatestState returns a child's most recently recorded lifecycle state.
// It must always agree with children.status; callers that need the
// authoritative current status should prefer GetChild, and use LatestState
// only to audit that the two stay in sync.
func (s *Store) LatestState(childID string) (*LifecycleEvent, error) {
	row := s.db.QueryRow(
		`SELECT id, child_id, transition, to_state, created_at
		 FROM lifecycle_events WHERE child_id = ? ORDER BY id DESC LIMIT 1`, childID,
	)

	var ev LifecycleEvent
	var toState string
	var createdAt int64
	err := row.Scan(&ev.ID, &ev.ChildID, &ev.Transition, &toState, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoLifecycleEvents
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest lifecycle state for %q: %w", childID, err)
	}
	ev.ToState = ChildStatus(toState)
	ev.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ev, nil
}

// ListLifecycleEvents returns all events for a child in order.
func (s *Store) ListLifecycleEvents(childID string) ([]LifecycleEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, child_id, transition, to_state, created_at
		 FROM lifecycle_events WHERE child_id = ? ORDER BY id ASC`, childID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle events for %q: %w", childID, err)
	}
	defer rows.Close()

	var out []LifecycleEvent
	for rows.Next() {
		var ev LifecycleEvent
		var toState string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.ChildID, &ev.Transition, &toState, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle event: %w", err)
		}
		ev.ToState = ChildStatus(toState)
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
