package application

import (
	"context"

	"github.com/zyfty/zyftyd/internal/core/domain"
)

type LienService interface {
	CreateLien(
		ctx context.Context, provider, settlementAsset string, balance uint64,
	) (*domain.Lien, error)
	CreateAccruingLien(
		ctx context.Context, provider, settlementAsset string,
		balance, perPeriod uint64, period int64,
	) (*domain.Lien, error)
	GetLien(ctx context.Context, id string) (*LienInfo, error)
	// Balance returns the amount owed now, including accrual not yet persisted.
	Balance(ctx context.Context, id string) (uint64, error)
	Update(ctx context.Context, id string) (*domain.Lien, error)
	// Pay moves up to amount from caller to the provider and returns the amount paid.
	Pay(ctx context.Context, caller, id string, amount uint64) (uint64, error)
	GetLienEvents(ctx context.Context, id string) ([]domain.Event, error)
}

type RegistryService interface {
	Mint(ctx context.Context, caller string, req MintRequest) (uint64, error)
	GetAsset(ctx context.Context, id uint64) (*domain.Asset, error)
	ListLiens(ctx context.Context, id uint64) ([]LienSlotInfo, error)
	ProposeLien(ctx context.Context, caller string, id uint64, lienID string) error
	AcceptLien(ctx context.Context, caller string, id uint64, lienID string) (int, error)
	RemoveLien(ctx context.Context, caller string, id uint64, slot int) (string, error)
	IncreaseReserve(ctx context.Context, caller string, id, amount uint64) error
	RedeemReserve(ctx context.Context, caller string, id, amount uint64) error
	PayLien(ctx context.Context, caller string, id uint64, slot int, amount uint64) (uint64, error)
	PayLienFull(ctx context.Context, caller string, id uint64, slot int) (uint64, error)
	BalanceAccounts(ctx context.Context, caller string, id uint64) (uint64, error)
	Destroy(ctx context.Context, caller string, id uint64) error
	TransferAsset(ctx context.Context, caller string, id uint64, from, to string) error
	UpdateEscrow(ctx context.Context, caller, authority string) error
	GetSettings(ctx context.Context) (*domain.Settings, error)
	// GetAssetEvents returns the asset and sale history of the asset, oldest first.
	GetAssetEvents(ctx context.Context, id uint64) ([]domain.Event, error)
}

type EscrowService interface {
	SellProperty(ctx context.Context, caller string, id, price uint64, window int64) error
	// BuyProperty deposits the sale price. A non nil amount must match the price.
	BuyProperty(ctx context.Context, caller string, id uint64, amount *uint64) error
	Execute(ctx context.Context, caller string, id uint64) (*SaleReceipt, error)
	RevertSeller(ctx context.Context, caller string, id uint64) error
	RevertBuyer(ctx context.Context, caller string, id uint64) error
	// GetSale returns a record in state NONE when the asset has no sale.
	GetSale(ctx context.Context, id uint64) (*domain.Sale, error)
}

type LedgerService interface {
	BalanceOf(ctx context.Context, asset, account string) (uint64, error)
	Allowance(ctx context.Context, asset, owner, spender string) (uint64, error)
	Approve(ctx context.Context, caller, asset, spender string, amount uint64) error
	// Deposit credits account with new funds, restricted to the registry admin.
	Deposit(ctx context.Context, caller, asset, account string, amount uint64) error
}

type MintRequest struct {
	Owner           string
	MetadataRef     string
	SettlementAsset string
	// PrimaryLien is optional, when set the lien is attached to slot 0.
	PrimaryLien   string
	DeclaredValue uint64
}

type LienInfo struct {
	domain.Lien
	// CurrentBalance includes whole periods elapsed since the last update.
	CurrentBalance uint64
}

type LienSlotInfo struct {
	Slot int
	LienInfo
}

type LienPayoff struct {
	Slot   int
	LienID string
	Amount uint64
}

type SaleReceipt struct {
	Sale     domain.Sale
	Fee      uint64
	Payoffs  []LienPayoff
	Proceeds uint64
}
