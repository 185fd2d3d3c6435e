package domain

import (
	"math"
	"math/bits"

	"github.com/google/uuid"
	"github.com/zyfty/zyftyd/pkg/errors"
)

// Accrual makes a lien grow by PerPeriod for every whole Period (seconds) elapsed since
// LastUpdate.
type Accrual struct {
	PerPeriod  uint64
	Period     int64
	LastUpdate int64
}

type Lien struct {
	ID              string
	Provider        string
	Balance         uint64
	SettlementAsset string
	Accrual         *Accrual
	// AssetID is 0 while the lien is not attached to any asset.
	AssetID   uint64
	CreatedAt int64
	UpdatedAt int64
}

func NewLien(provider, settlementAsset string, balance uint64, now int64) (*Lien, error) {
	if provider == "" {
		return nil, errors.INVALID_ARGUMENT.New("missing lien provider")
	}
	if settlementAsset == "" {
		return nil, errors.INVALID_ARGUMENT.New("missing settlement asset")
	}
	return &Lien{
		ID:              uuid.New().String(),
		Provider:        provider,
		Balance:         balance,
		SettlementAsset: settlementAsset,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func NewAccruingLien(
	provider, settlementAsset string, balance, perPeriod uint64, period, now int64,
) (*Lien, error) {
	if period <= 0 {
		return nil, errors.INVALID_ARGUMENT.New("accrual period must be positive, got %d", period)
	}
	lien, err := NewLien(provider, settlementAsset, balance, now)
	if err != nil {
		return nil, err
	}
	lien.Accrual = &Accrual{
		PerPeriod:  perPeriod,
		Period:     period,
		LastUpdate: now,
	}
	return lien, nil
}

func (l *Lien) IsAccruing() bool {
	return l.Accrual != nil
}

func (l *Lien) IsAttached() bool {
	return l.AssetID != 0
}

// elapsedPeriods returns the number of whole periods elapsed at now.
func (l *Lien) elapsedPeriods(now int64) int64 {
	if l.Accrual == nil || now <= l.Accrual.LastUpdate {
		return 0
	}
	return (now - l.Accrual.LastUpdate) / l.Accrual.Period
}

// accrued returns the balance after the given number of periods, saturating at MaxUint64.
func (l *Lien) accrued(periods int64) uint64 {
	hi, interest := bits.Mul64(uint64(periods), l.Accrual.PerPeriod)
	if hi != 0 {
		return math.MaxUint64
	}
	balance, carry := bits.Add64(l.Balance, interest, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return balance
}

// BalanceAt returns the owed amount at the given time without persisting any accrual.
func (l *Lien) BalanceAt(now int64) uint64 {
	periods := l.elapsedPeriods(now)
	if periods == 0 {
		return l.Balance
	}
	return l.accrued(periods)
}

// Update credits whole elapsed periods and reports whether the accrual state changed.
// The balance never wraps, it stays at MaxUint64 once reached. LastUpdate is advanced by exactly the credited periods so partial periods keep accruing.
func (l *Lien) Update(now int64) bool {
	periods := l.elapsedPeriods(now)
	if periods == 0 {
		return false
	}
	l.Balance = l.accrued(periods)
	l.Accrual.LastUpdate += periods * l.Accrual.Period
	l.UpdatedAt = now
	return true
}

// Payable returns the part of amount that can be applied to the current balance.
func (l *Lien) Payable(amount uint64) uint64 {
	return min(amount, l.Balance)
}

// Pay debits the payable part of amount and returns it.
// Callers must update an accruing lien before paying it.
func (l *Lien) Pay(amount uint64, now int64) uint64 {
	paid := l.Payable(amount)
	if paid == 0 {
		return 0
	}
	l.Balance -= paid
	l.UpdatedAt = now
	return paid
}

// Attach binds the lien to assetID. A lien sits in one slot of one asset, so attaching an
// already attached lien fails even for the same asset.
func (l *Lien) Attach(assetID uint64, now int64) error {
	if l.IsAttached() {
		return errors.LIEN_ALREADY_ATTACHED.New(
			"lien %s is attached to asset %d", l.ID, l.AssetID,
		).WithMetadata(errors.LienMetadata{LienId: l.ID})
	}
	l.AssetID = assetID
	l.UpdatedAt = now
	return nil
}

func (l *Lien) Detach(now int64) {
	l.AssetID = 0
	l.UpdatedAt = now
}

// Account is the ledger spender identity used when the lien pulls a payment.
func (l *Lien) Account() string {
	return LienAccount(l.ID)
}

func LienAccount(id string) string {
	return "lien:" + id
}
