package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/walletaddr"
)

// ErrIdentityExists is returned by InsertIdentity when a row already exists;
// identity is immutable after init (spec §3).
var ErrIdentityExists = errors.New("identity already initialised")

// ErrNoIdentity is returned by GetIdentity when the process has not been
// initialised yet.
var ErrNoIdentity = errors.New("identity not found")

// InsertIdentity creates the one-per-process-lifetime identity row. It fails
// if an identity already exists, or if walletAddress is not a valid
// non-zero address.
func (s *Store) InsertIdentity(identity Identity) error {
	if !walletaddr.Valid(identity.WalletAddress) {
		return fmt.Errorf("invalid wallet address %q", identity.WalletAddress)
	}

	existing, err := s.GetIdentity()
	if err == nil && existing != nil {
		return ErrIdentityExists
	}
	if err != nil && !errors.Is(err, ErrNoIdentity) {
		return err
	}

	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(
		`INSERT INTO identity (wallet_address, creator_address, genesis_prompt, created_at) VALUES (?, ?, ?, ?)`,
		identity.WalletAddress, identity.CreatorAddress, identity.GenesisPrompt, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// GetIdentity returns the process's identity row, or ErrNoIdentity if unset.
func (s *Store) GetIdentity() (*Identity, error) {
	row := s.db.QueryRow(`SELECT wallet_address, creator_address, genesis_prompt, created_at FROM identity LIMIT 1`)

	var id Identity
	var createdAt int64
	err := row.Scan(&id.WalletAddress, &id.CreatorAddress, &id.GenesisPrompt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	id.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &id, nil
}
