package domain

import (
	"github.com/zyfty/zyftyd/pkg/errors"
)

type SaleState uint8

const (
	SaleStateNone SaleState = iota
	SaleStateListed
	SaleStateBought
	SaleStateCanceled
	SaleStateExecuted
)

func (s SaleState) String() string {
	switch s {
	case SaleStateNone:
		return "NONE"
	case SaleStateListed:
		return "LISTED"
	case SaleStateBought:
		return "BOUGHT"
	case SaleStateCanceled:
		return "CANCELED"
	case SaleStateExecuted:
		return "EXECUTED"
	default:
		return "UNKNOWN"
	}
}

// IsActive reports whether the sale still holds custody of the asset.
func (s SaleState) IsActive() bool {
	return s == SaleStateListed || s == SaleStateBought
}

// FeeDivisor sets the escrow fee to 0.5% of the price.
const FeeDivisor = 200

type Sale struct {
	AssetID         uint64
	Seller          string
	Buyer           string
	SettlementAsset string
	Price           uint64
	// Window is expressed in seconds and applies both to the listing and to the
	// execution deadline that starts when the asset is bought.
	Window    int64
	ListedAt  int64
	BoughtAt  int64
	State     SaleState
	UpdatedAt int64
}

func NewSale(
	assetID uint64, seller, settlementAsset string, price uint64, window, now int64,
) (*Sale, error) {
	if price == 0 {
		return nil, errors.INVALID_ARGUMENT.New("sale price must be positive")
	}
	if window <= 0 {
		return nil, errors.INVALID_ARGUMENT.New("sale window must be positive, got %d", window)
	}
	return &Sale{
		AssetID:         assetID,
		Seller:          seller,
		SettlementAsset: settlementAsset,
		Price:           price,
		Window:          window,
		ListedAt:        now,
		State:           SaleStateListed,
		UpdatedAt:       now,
	}, nil
}

func (s *Sale) Fee() uint64 {
	return s.Price / FeeDivisor
}

func (s *Sale) ListingDeadline() int64 {
	return s.ListedAt + s.Window
}

func (s *Sale) ExecuteDeadline() int64 {
	return s.BoughtAt + s.Window
}

func (s *Sale) Buy(buyer string, amount *uint64, now int64) error {
	if s.State != SaleStateListed {
		return errors.ALREADY_BOUGHT.New(
			"asset %d sale is %s", s.AssetID, s.State,
		).WithMetadata(errors.StateMetadata{AssetId: s.AssetID, State: s.State.String()})
	}
	if now > s.ListingDeadline() {
		return errors.WINDOW_CLOSED.New("asset %d listing window closed", s.AssetID).
			WithMetadata(s.windowMetadata(s.ListingDeadline(), now))
	}
	if buyer == "" {
		return errors.INVALID_ARGUMENT.New("missing buyer")
	}
	if buyer == s.Seller {
		return errors.UNAUTHORIZED.New("seller cannot buy its own listing").
			WithMetadata(errors.AccountMetadata{Account: buyer})
	}
	if amount != nil && *amount != s.Price {
		return errors.INVALID_ARGUMENT.New(
			"deposit %d does not match price %d", *amount, s.Price,
		)
	}
	s.Buyer = buyer
	s.BoughtAt = now
	s.State = SaleStateBought
	s.UpdatedAt = now
	return nil
}

// CanExecute validates that caller may execute the sale at now.
func (s *Sale) CanExecute(caller string, now int64) error {
	if err := s.requireSeller(caller); err != nil {
		return err
	}
	if s.State != SaleStateBought {
		return s.invalidState("execute")
	}
	if now > s.ExecuteDeadline() {
		return errors.WINDOW_CLOSED.New("asset %d execute window closed", s.AssetID).
			WithMetadata(s.windowMetadata(s.ExecuteDeadline(), now))
	}
	return nil
}

func (s *Sale) Execute(caller string, now int64) error {
	if err := s.CanExecute(caller, now); err != nil {
		return err
	}
	s.State = SaleStateExecuted
	s.UpdatedAt = now
	return nil
}

// RevertSeller checks the seller may take the asset back. A reverted listing is removed,
// leaving the asset with no sale record.
func (s *Sale) RevertSeller(caller string, now int64) error {
	if err := s.requireSeller(caller); err != nil {
		return err
	}
	if s.State != SaleStateListed {
		return s.invalidState("revert seller")
	}
	if now <= s.ListingDeadline() {
		return errors.WINDOW_STILL_OPEN.New("asset %d listing window still open", s.AssetID).
			WithMetadata(s.windowMetadata(s.ListingDeadline(), now))
	}
	s.State = SaleStateNone
	s.UpdatedAt = now
	return nil
}

func (s *Sale) RevertBuyer(caller string, now int64) error {
	if caller != s.Buyer || s.Buyer == "" {
		return errors.UNAUTHORIZED.New(
			"account %s is not the buyer of asset %d", caller, s.AssetID,
		).WithMetadata(errors.AccountMetadata{Account: caller, Expected: s.Buyer})
	}
	if s.State != SaleStateBought {
		return s.invalidState("revert buyer")
	}
	if now <= s.ExecuteDeadline() {
		return errors.WINDOW_STILL_OPEN.New("asset %d execute window still open", s.AssetID).
			WithMetadata(s.windowMetadata(s.ExecuteDeadline(), now))
	}
	s.State = SaleStateCanceled
	s.UpdatedAt = now
	return nil
}

func (s *Sale) requireSeller(caller string) error {
	if caller != s.Seller {
		return errors.UNAUTHORIZED.New(
			"account %s is not the seller of asset %d", caller, s.AssetID,
		).WithMetadata(errors.AccountMetadata{Account: caller, Expected: s.Seller})
	}
	return nil
}

func (s *Sale) invalidState(op string) error {
	return errors.INVALID_STATE.New(
		"cannot %s asset %d sale in state %s", op, s.AssetID, s.State,
	).WithMetadata(errors.StateMetadata{AssetId: s.AssetID, State: s.State.String()})
}

func (s *Sale) windowMetadata(deadline, now int64) errors.WindowMetadata {
	return errors.WindowMetadata{AssetId: s.AssetID, Deadline: deadline, Now: now}
}
