package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/walletaddr"
)

// ErrChildExists is returned by InsertChild for a duplicate id.
var ErrChildExists = errors.New("child already exists")

// ErrChildNotFound is returned by GetChild/UpdateChildStatus for an unknown id.
var ErrChildNotFound = errors.New("child not found")

// InsertChild records a newly spawned child. The child's address must be a
// valid non-zero wallet address (spec §3), same guard as identity.
func (s *Store) InsertChild(child Child) error {
	if !walletaddr.Valid(child.Address) {
		return fmt.Errorf("invalid child wallet address %q", child.Address)
	}

	if _, err := s.GetChild(child.ID); err == nil {
		return ErrChildExists
	} else if !errors.Is(err, ErrChildNotFound) {
		return err
	}

	createdAt := child.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO children
		 (id, name, address, sandbox_id, genesis_prompt, status, parent_address, generation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		child.ID, child.Name, child.Address, child.SandboxID, child.GenesisPrompt,
		string(child.Status), child.ParentAddress, child.Generation, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert child %q: %w", child.ID, err)
	}
	return nil
}

// UpdateChildStatus transitions a child to a new status. Callers append the
// matching LifecycleEvent separately (AppendLifecycleEvent) so the two
// writes share a single caller-level retry boundary without forcing every
// status change through one combined transaction.
func (s *Store) UpdateChildStatus(childID string, status ChildStatus) error {
	res, err := s.db.Exec(`UPDATE children SET status = ? WHERE id = ?`, string(status), childID)
	if err != nil {
		return fmt.Errorf("failed to update child %q status: %w", childID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm child status update: %w", err)
	}
	if n == 0 {
		return ErrChildNotFound
	}
	return nil
}

// GetChild returns a single child by id.
func (s *Store) GetChild(childID string) (*Child, error) {
	row := s.db.QueryRow(
		`SELECT id, name, address, sandbox_id, genesis_prompt, status, parent_address, generation, created_at
		 FROM children WHERE id = ?`, childID,
	)
	c, err := scanChildRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read child %q: %w", childID, err)
	}
	return c, nil
}

// ListChildrenByStatus returns children in a status, oldest first with id
// as a tiebreak, the order pruning walks (spec §7: oldest dead children are
// pruned first).
func (s *Store) ListChildrenByStatus(status ChildStatus) ([]Child, error) {
	rows, err := s.db.Query(
		`SELECT id, name, address, sandbox_id, genesis_prompt, status, parent_address, generation, created_at
		 FROM children WHERE status = ? ORDER BY created_at ASC, id ASC`, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children by status: %w", err)
	}
	defer rows.Close()

	var out []Child
	for rows.Next() {
		c, err := scanChildRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountChildren returns the number of children not in a terminal
// cleaned_up state, used to enforce the replication subsystem's maximum
// concurrent children bound.
func (s *Store) CountChildren() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM children WHERE status != ?`, string(ChildCleanedUp),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

func scanChildRow(row rowScanner) (*Child, error) {
	var c Child
	var status string
	var createdAt int64
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.SandboxID, &c.GenesisPrompt, &status, &c.ParentAddress, &c.Generation, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Status = ChildStatus(status)
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}
