package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionOpen is returned by OpenSession when a session is already open;
// at most one session is open at any moment (spec §3).
var ErrSessionOpen = errors.New("a session is already open")

// ErrNoOpenSession is returned by CloseSession when there is nothing to close.
var ErrNoOpenSession = errors.New("no open session")

// OpenSession starts a new session. It fails if one is already open.
func (s *Store) OpenSession() (*Session, error) {
	existing, err := s.CurrentSession()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSessionOpen
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO sessions (started_at, ended_at) VALUES (?, NULL)`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new session id: %w", err)
	}

	return &Session{ID: id, StartedAt: now}, nil
}

// CloseSession closes the currently open session, if any. Calling it with
// no open session returns ErrNoOpenSession.
func (s *Store) CloseSession() error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE ended_at IS NULL`,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm session close: %w", err)
	}
	if n == 0 {
		return ErrNoOpenSession
	}
	return nil
}

// CurrentSession returns the open session, or nil if none is open.
func (s *Store) CurrentSession() (*Session, error) {
	row := s.db.QueryRow(`SELECT id, started_at, ended_at FROM sessions WHERE ended_at IS NULL LIMIT 1`)

	var sess Session
	var startedAt int64
	var endedAt sql.NullInt64
	err := row.Scan(&sess.ID, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current session: %w", err)
	}
	sess.StartedAt = time.Unix(startedAt, 0).UTC()
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		sess.EndedAt = &t
	}
	return &sess, nil
}
