package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrProviderImmutable is returned by UpsertDiscoveredModel when a rediscovery
// reports a different provider for a modelId already on file; provider is
// immutable after first insert (spec §5).
var ErrProviderImmutable = errors.New("model provider cannot change after first insert")

// ErrModelNotFound is returned by GetModel for an unknown modelId.
var ErrModelNotFound = errors.New("model not found in registry")

// UpsertDiscoveredModel inserts a newly discovered model, or refreshes the
// catalog-derived fields (display name, cost, context window, capabilities)
// of an existing row while preserving any human edit to Enabled and
// MinimumTier. Re-enabling a previously tombstoned model is a separate,
// explicit operation (SetEnabled); discovery alone never flips Enabled.
func (s *Store) UpsertDiscoveredModel(row ModelRegistryRow) error {
	existing, err := s.GetModel(row.ModelID)
	if err != nil && !errors.Is(err, ErrModelNotFound) {
		return err
	}

	now := time.Now().UTC()

	if errors.Is(err, ErrModelNotFound) {
		_, err := s.db.Exec(
			`INSERT INTO model_registry
			 (model_id, provider, display_name, minimum_tier, cost_per_1k_in, cost_per_1k_out,
			  max_output_token, context_window, supports_tools, supports_vision, param_style,
			  enabled, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ModelID, string(row.Provider), row.DisplayName, row.MinimumTier, row.CostPer1kIn, row.CostPer1kOut,
			row.MaxOutputToken, row.ContextWindow, boolToInt(row.SupportsTools), boolToInt(row.SupportsVision),
			string(row.ParamStyle), boolToInt(row.Enabled), now.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert model %q: %w", row.ModelID, err)
		}
		return nil
	}

	if existing.Provider != row.Provider {
		return fmt.Errorf("%w: %q was %q, rediscovered as %q", ErrProviderImmutable, row.ModelID, existing.Provider, row.Provider)
	}

	_, err = s.db.Exec(
		`UPDATE model_registry SET
		   display_name = ?, cost_per_1k_in = ?, cost_per_1k_out = ?,
		   max_output_token = ?, context_window = ?, supports_tools = ?, supports_vision = ?,
		   param_style = ?, updated_at = ?
		 WHERE model_id = ?`,
		row.DisplayName, row.CostPer1kIn, row.CostPer1kOut,
		row.MaxOutputToken, row.ContextWindow, boolToInt(row.SupportsTools), boolToInt(row.SupportsVision),
		string(row.ParamStyle), now.Unix(), row.ModelID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh model %q: %w", row.ModelID, err)
	}
	return nil
}

// SetEnabled flips a model's enabled flag. Discovery no longer reporting a
// model tombstones it via SetEnabled(id, false) rather than deleting the
// row, so historical turns still resolve their modelId (spec §5).
func (s *Store) SetEnabled(modelID string, enabled bool) error {
	res, err := s.db.Exec(
		`UPDATE model_registry SET enabled = ?, updated_at = ? WHERE model_id = ?`,
		boolToInt(enabled), time.Now().UTC().Unix(), modelID,
	)
	if err != nil {
		return fmt.Errorf("failed to set enabled for %q: %w", modelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm enabled update for %q: %w", modelID, err)
	}
	if n == 0 {
		return ErrModelNotFound
	}
	return nil
}

// GetModel returns a single model row by id.
func (s *Store) GetModel(modelID string) (*ModelRegistryRow, error) {
	row := s.db.QueryRow(
		`SELECT model_id, provider, display_name, minimum_tier, cost_per_1k_in, cost_per_1k_out,
		        max_output_token, context_window, supports_tools, supports_vision, param_style,
		        enabled, created_at, updated_at
		 FROM model_registry WHERE model_id = ?`, modelID,
	)
	m, err := scanModelRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model %q: %w", modelID, err)
	}
	return m, nil
}

// ListEnabledModels returns all enabled models, optionally filtered to a
// provider (empty string means all providers).
func (s *Store) ListEnabledModels(provider string) ([]ModelRegistryRow, error) {
	query := `SELECT model_id, provider, display_name, minimum_tier, cost_per_1k_in, cost_per_1k_out,
	                 max_output_token, context_window, supports_tools, supports_vision, param_style,
	                 enabled, created_at, updated_at
	          FROM model_registry WHERE enabled = 1`
	args := []any{}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY model_id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled models: %w", err)
	}
	defer rows.Close()

	var out []ModelRegistryRow
	for rows.Next() {
		m, err := scanModelRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModelRow(row rowScanner) (*ModelRegistryRow, error) {
	var m ModelRegistryRow
	var supportsTools, supportsVision, enabled int
	var paramStyle string
	var createdAt, updatedAt int64
	err := row.Scan(
		&m.ModelID, &m.Provider, &m.DisplayName, &m.MinimumTier, &m.CostPer1kIn, &m.CostPer1kOut,
		&m.MaxOutputToken, &m.ContextWindow, &supportsTools, &supportsVision, &paramStyle,
		&enabled, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.SupportsTools = supportsTools != 0
	m.SupportsVision = supportsVision != 0
	m.ParamStyle = ParamStyle(paramStyle)
	m.Enabled = enabled != 0
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
