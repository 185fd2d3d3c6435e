package restservice

import (
	"github.com/zyfty/zyftyd/internal/core/application"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

type errorResponse struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createLienRequest struct {
	SettlementAsset string `json:"settlement_asset"`
	Balance         uint64 `json:"balance"`
	// An accruing lien is created when period is set.
	PerPeriod uint64 `json:"per_period,omitempty"`
	Period    int64  `json:"period,omitempty"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type mintRequest struct {
	Owner           string `json:"owner"`
	MetadataRef     string `json:"metadata_ref"`
	SettlementAsset string `json:"settlement_asset"`
	PrimaryLien     string `json:"primary_lien,omitempty"`
	DeclaredValue   uint64 `json:"declared_value"`
}

type lienIdRequest struct {
	LienId string `json:"lien_id"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type updateEscrowRequest struct {
	Authority string `json:"authority"`
}

type sellRequest struct {
	Price  uint64 `json:"price"`
	Window int64  `json:"window"`
}

type buyRequest struct {
	Amount *uint64 `json:"amount,omitempty"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

type depositRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type accrual struct {
	PerPeriod  uint64 `json:"per_period"`
	Period     int64  `json:"period"`
	LastUpdate int64  `json:"last_update"`
}

type lien struct {
	Id              string   `json:"id"`
	Provider        string   `json:"provider"`
	SettlementAsset string   `json:"settlement_asset"`
	Balance         uint64   `json:"balance"`
	CurrentBalance  uint64   `json:"current_balance"`
	Accrual         *accrual `json:"accrual,omitempty"`
	AssetId         uint64   `json:"asset_id,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
}

type lienSlot struct {
	Slot int  `json:"slot"`
	Lien lien `json:"lien"`
}

type proposal struct {
	LienId     string `json:"lien_id"`
	ProposedAt int64  `json:"proposed_at"`
}

type asset struct {
	Id              uint64    `json:"id"`
	Owner           string    `json:"owner"`
	MetadataRef     string    `json:"metadata_ref"`
	SettlementAsset string    `json:"settlement_asset"`
	DeclaredValue   uint64    `json:"declared_value"`
	Liens           []string  `json:"liens"`
	Reserve         uint64    `json:"reserve"`
	Proposal        *proposal `json:"proposal,omitempty"`
	CreatedAt       int64     `json:"created_at"`
	UpdatedAt       int64     `json:"updated_at"`
}

type sale struct {
	AssetId         uint64 `json:"asset_id"`
	Seller          string `json:"seller,omitempty"`
	Buyer           string `json:"buyer,omitempty"`
	SettlementAsset string `json:"settlement_asset,omitempty"`
	Price           uint64 `json:"price"`
	Window          int64  `json:"window"`
	ListedAt        int64  `json:"listed_at,omitempty"`
	BoughtAt        int64  `json:"bought_at,omitempty"`
	State           string `json:"state"`
	UpdatedAt       int64  `json:"updated_at,omitempty"`
}

type payoff struct {
	Slot   int    `json:"slot"`
	LienId string `json:"lien_id"`
	Amount uint64 `json:"amount"`
}

type receipt struct {
	Sale     sale     `json:"sale"`
	Fee      uint64   `json:"fee"`
	Payoffs  []payoff `json:"payoffs"`
	Proceeds uint64   `json:"proceeds"`
}

type settings struct {
	Admin           string `json:"admin"`
	EscrowAuthority string `json:"escrow_authority"`
	FeeCollector    string `json:"fee_collector"`
	MintFeeBps      uint32 `json:"mint_fee_bps"`
	UpdatedAt       int64  `json:"updated_at"`
}

type event struct {
	Type      string `json:"type"`
	Topic     string `json:"topic"`
	Id        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

func toLien(l domain.Lien, currentBalance uint64) lien {
	res := lien{
		Id:              l.ID,
		Provider:        l.Provider,
		SettlementAsset: l.SettlementAsset,
		Balance:         l.Balance,
		CurrentBalance:  currentBalance,
		AssetId:         l.AssetID,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
	if l.Accrual != nil {
		res.Accrual = &accrual{
			PerPeriod:  l.Accrual.PerPeriod,
			Period:     l.Accrual.Period,
			LastUpdate: l.Accrual.LastUpdate,
		}
	}
	return res
}

func toAsset(a domain.Asset) asset {
	res := asset{
		Id:              a.ID,
		Owner:           a.Owner,
		MetadataRef:     a.MetadataRef,
		SettlementAsset: a.SettlementAsset,
		DeclaredValue:   a.DeclaredValue,
		Liens:           a.Liens[:],
		Reserve:         a.Reserve,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.Proposal != nil {
		res.Proposal = &proposal{
			LienId:     a.Proposal.LienID,
			ProposedAt: a.Proposal.ProposedAt,
		}
	}
	return res
}

func toSale(s domain.Sale) sale {
	return sale{
		AssetId:         s.AssetID,
		Seller:          s.Seller,
		Buyer:           s.Buyer,
		SettlementAsset: s.SettlementAsset,
		Price:           s.Price,
		Window:          s.Window,
		ListedAt:        s.ListedAt,
		BoughtAt:        s.BoughtAt,
		State:           s.State.String(),
		UpdatedAt:       s.UpdatedAt,
	}
}

func toReceipt(r application.SaleReceipt) receipt {
	payoffs := make([]payoff, 0, len(r.Payoffs))
	for _, p := range r.Payoffs {
		payoffs = append(payoffs, payoff{Slot: p.Slot, LienId: p.LienID, Amount: p.Amount})
	}
	return receipt{
		Sale:     toSale(r.Sale),
		Fee:      r.Fee,
		Payoffs:  payoffs,
		Proceeds: r.Proceeds,
	}
}

func toEvents(events []domain.Event) []event {
	res := make([]event, 0, len(events))
	for _, e := range events {
		res = append(res, event{
			Type:      e.GetType().String(),
			Topic:     e.GetTopic(),
			Id:        e.GetId(),
			Timestamp: e.GetTimestamp(),
			Data:      e,
		})
	}
	return res
}
