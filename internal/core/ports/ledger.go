package ports

import "context"

// Transfer moves Amount of Asset from From to To. When Spender is set and differs from From,
// the transfer consumes the allowance From granted to Spender.
type Transfer struct {
	Asset   string
	From    string
	To      string
	Amount  uint64
	Spender string
}

// Reverse returns the direct transfer that undoes t.
func (t Transfer) Reverse() Transfer {
	return Transfer{Asset: t.Asset, From: t.To, To: t.From, Amount: t.Amount}
}

// Ledger is the settlement asset ledger every payment is settled on.
// Balance and allowance failures are reported with the INSUFFICIENT_FUNDS and
// INSUFFICIENT_ALLOWANCE error codes.
type Ledger interface {
	BalanceOf(ctx context.Context, asset, account string) (uint64, error)
	Allowance(ctx context.Context, asset, owner, spender string) (uint64, error)
	Approve(ctx context.Context, asset, owner, spender string, amount uint64) error
	Transfer(ctx context.Context, asset, from, to string, amount uint64) error
	TransferFrom(ctx context.Context, asset, spender, from, to string, amount uint64) error
	// Apply executes all transfers or none of them.
	Apply(ctx context.Context, transfers []Transfer) error
	// Deposit credits account with freshly issued funds.
	Deposit(ctx context.Context, asset, account string, amount uint64) error
	Close()
}
