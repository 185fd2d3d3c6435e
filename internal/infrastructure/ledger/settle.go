package ledger

import (
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/pkg/errors"
)

type Account struct {
	Asset string
	Name  string
}

type Allowance struct {
	Asset   string
	Owner   string
	Spender string
}

// Reader gives access to the committed state a batch is settled against.
type Reader interface {
	Balance(account Account) (uint64, error)
	Allowance(allowance Allowance) (uint64, error)
}

// Changes holds the final value of every balance and allowance touched by a batch.
type Changes struct {
	Balances   map[Account]uint64
	Allowances map[Allowance]uint64
}

// Settle replays transfers on top of the committed state and returns the resulting changes.
// Nothing is returned if any transfer in the batch cannot be honoured.
func Settle(reader Reader, transfers []ports.Transfer) (*Changes, error) {
	changes := &Changes{
		Balances:   make(map[Account]uint64),
		Allowances: make(map[Allowance]uint64),
	}

	balance := func(account Account) (uint64, error) {
		if v, ok := changes.Balances[account]; ok {
			return v, nil
		}
		return reader.Balance(account)
	}
	allowance := func(a Allowance) (uint64, error) {
		if v, ok := changes.Allowances[a]; ok {
			return v, nil
		}
		return reader.Allowance(a)
	}

	for _, t := range transfers {
		if err := validate(t); err != nil {
			return nil, err
		}
		if t.Amount == 0 {
			continue
		}

		if t.Spender != "" && t.Spender != t.From {
			key := Allowance{t.Asset, t.From, t.Spender}
			allowed, err := allowance(key)
			if err != nil {
				return nil, err
			}
			if allowed < t.Amount {
				return nil, errors.INSUFFICIENT_ALLOWANCE.New(
					"%s allowed %s to spend %d %s, %d required",
					t.From, t.Spender, allowed, t.Asset, t.Amount,
				).WithMetadata(errors.FundsMetadata{
					Account:   t.From,
					Asset:     t.Asset,
					Available: allowed,
					Required:  t.Amount,
				})
			}
			changes.Allowances[key] = allowed - t.Amount
		}

		from := Account{t.Asset, t.From}
		fromBalance, err := balance(from)
		if err != nil {
			return nil, err
		}
		if fromBalance < t.Amount {
			return nil, errors.INSUFFICIENT_FUNDS.New(
				"%s holds %d %s, %d required", t.From, fromBalance, t.Asset, t.Amount,
			).WithMetadata(errors.FundsMetadata{
				Account:   t.From,
				Asset:     t.Asset,
				Available: fromBalance,
				Required:  t.Amount,
			})
		}
		changes.Balances[from] = fromBalance - t.Amount

		to := Account{t.Asset, t.To}
		toBalance, err := balance(to)
		if err != nil {
			return nil, err
		}
		changes.Balances[to] = toBalance + t.Amount
	}

	return changes, nil
}

func validate(t ports.Transfer) error {
	if t.Asset == "" {
		return errors.INVALID_ARGUMENT.New("missing transfer asset")
	}
	if t.From == "" || t.To == "" {
		return errors.INVALID_ARGUMENT.New("missing transfer counterparty")
	}
	return nil
}
