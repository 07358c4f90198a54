package agentloop

import "context"

// CreditStatus is the wallet health snapshot the loop reads once per
// iteration to feed the survival tier governor (spec §4.2 step 1).
type CreditStatus struct {
	Credits           float64
	RecentTopupFailed bool
	TopupImpossible   bool
}

// CreditSource abstracts the wallet balance query and on-chain topup
// machinery, an external collaborator per spec §1 ("the wallet
// key-management and on-chain RPC calls... are used as capabilities").
type CreditSource interface {
	ReadCredits(ctx context.Context) (CreditStatus, error)
}
