package daemon

import (
	"context"

	"github.com/rs/zerolog"
)

// noopFunder stands in for wallet key-management and on-chain transfer
// RPC calls, which spec §1 names explicitly as an external collaborator
// ("the wallet key-management and on-chain RPC calls... are used as
// capabilities", not implemented here). It satisfies replication.Funder so
// the spawn protocol still runs end to end; a production deployment swaps
// this for an adapter that actually moves funds.
type noopFunder struct {
	logger zerolog.Logger
}

func newNoopFunder(logger zerolog.Logger) *noopFunder {
	return &noopFunder{logger: logger}
}

func (f *noopFunder) Fund(ctx context.Context, childAddress string) error {
	f.logger.Warn().Str("child_address", childAddress).
		Msg("funding delegated to an external wallet collaborator; no transfer was made")
	return nil
}
