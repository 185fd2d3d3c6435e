package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Topics group events by aggregate type. Events of one aggregate share the same Id.
const (
	LienTopic     = "lien"
	AssetTopic    = "asset"
	SaleTopic     = "sale"
	RegistryTopic = "registry"
)

type EventType int

const (
	EventTypeUndefined EventType = iota
	EventTypeLienCreated
	EventTypeLienUpdated
	EventTypeLienPaid
	EventTypeAssetMinted
	EventTypeLienProposed
	EventTypeLienAdded
	EventTypeLienRemoved
	EventTypeReserveIncreased
	EventTypeReserveRedeemed
	EventTypeAssetTransferred
	EventTypeAssetDestroyed
	EventTypeEscrowAuthorityUpdated
	EventTypePropertyListed
	EventTypePropertyBought
	EventTypeSaleExecuted
	EventTypeSaleCanceled
	EventTypeSaleReverted
)

func (t EventType) String() string {
	switch t {
	case EventTypeLienCreated:
		return "LienCreated"
	case EventTypeLienUpdated:
		return "LienUpdated"
	case EventTypeLienPaid:
		return "LienPaid"
	case EventTypeAssetMinted:
		return "AssetMinted"
	case EventTypeLienProposed:
		return "LienProposed"
	case EventTypeLienAdded:
		return "LienAdded"
	case EventTypeLienRemoved:
		return "LienRemoved"
	case EventTypeReserveIncreased:
		return "ReserveIncreased"
	case EventTypeReserveRedeemed:
		return "ReserveRedeemed"
	case EventTypeAssetTransferred:
		return "AssetTransferred"
	case EventTypeAssetDestroyed:
		return "AssetDestroyed"
	case EventTypeEscrowAuthorityUpdated:
		return "EscrowAuthorityUpdated"
	case EventTypePropertyListed:
		return "PropertyListed"
	case EventTypePropertyBought:
		return "PropertyBought"
	case EventTypeSaleExecuted:
		return "SaleExecuted"
	case EventTypeSaleCanceled:
		return "SaleCanceled"
	case EventTypeSaleReverted:
		return "SaleReverted"
	default:
		return "Undefined"
	}
}

type Event interface {
	GetTopic() string
	GetId() string
	GetType() EventType
	GetTimestamp() int64
}

type BaseEvent struct {
	Id        string
	Type      EventType
	Timestamp int64
}

func (e BaseEvent) GetId() string {
	return e.Id
}

func (e BaseEvent) GetType() EventType {
	return e.Type
}

func (e BaseEvent) GetTimestamp() int64 {
	return e.Timestamp
}

type LienEvent struct {
	BaseEvent
}

func (e LienEvent) GetTopic() string { return LienTopic }

type AssetEvent struct {
	BaseEvent
}

func (e AssetEvent) GetTopic() string { return AssetTopic }

type SaleEvent struct {
	BaseEvent
}

func (e SaleEvent) GetTopic() string { return SaleTopic }

func newLienEvent(t EventType, lienID string, now int64) LienEvent {
	return LienEvent{BaseEvent{Id: lienID, Type: t, Timestamp: now}}
}

func newAssetEvent(t EventType, assetID uint64, now int64) AssetEvent {
	return AssetEvent{BaseEvent{Id: AssetEventId(assetID), Type: t, Timestamp: now}}
}

func newSaleEvent(t EventType, assetID uint64, now int64) SaleEvent {
	return SaleEvent{BaseEvent{Id: AssetEventId(assetID), Type: t, Timestamp: now}}
}

// AssetEventId is the aggregate id used for asset and sale events.
func AssetEventId(assetID uint64) string {
	return strconv.FormatUint(assetID, 10)
}

type LienCreated struct {
	LienEvent
	Provider        string
	SettlementAsset string
	Balance         uint64
	Accruing        bool
}

type LienUpdated struct {
	LienEvent
	Balance    uint64
	LastUpdate int64
}

type LienPaid struct {
	LienEvent
	Payer   string
	Amount  uint64
	Balance uint64
}

type AssetMinted struct {
	AssetEvent
	Owner           string
	MetadataRef     string
	SettlementAsset string
	PrimaryLien     string
	Fee             uint64
}

type LienProposed struct {
	AssetEvent
	LienID string
}

type LienAdded struct {
	AssetEvent
	Slot   int
	LienID string
}

type LienRemoved struct {
	AssetEvent
	Slot   int
	LienID string
}

type ReserveIncreased struct {
	AssetEvent
	Amount  uint64
	Reserve uint64
}

type ReserveRedeemed struct {
	AssetEvent
	Amount  uint64
	Reserve uint64
}

type AssetTransferred struct {
	AssetEvent
	From string
	To   string
}

type AssetDestroyed struct {
	AssetEvent
	Owner         string
	DetachedLiens []string
	Refund        uint64
}

type EscrowAuthorityUpdated struct {
	BaseEvent
	Previous string
	Current  string
}

func (e EscrowAuthorityUpdated) GetTopic() string { return RegistryTopic }

type PropertyListed struct {
	SaleEvent
	Seller string
	Price  uint64
	Window int64
}

type PropertyBought struct {
	SaleEvent
	Buyer  string
	Amount uint64
}

type SaleExecuted struct {
	SaleEvent
	Seller      string
	Buyer       string
	Price       uint64
	Fee         uint64
	LienPayoffs uint64
	Proceeds    uint64
}

type SaleCanceled struct {
	SaleEvent
	Buyer  string
	Refund uint64
}

type SaleReverted struct {
	SaleEvent
	Seller string
}

func NewLienCreated(lien Lien) LienCreated {
	return LienCreated{
		LienEvent:       newLienEvent(EventTypeLienCreated, lien.ID, lien.CreatedAt),
		Provider:        lien.Provider,
		SettlementAsset: lien.SettlementAsset,
		Balance:         lien.Balance,
		Accruing:        lien.IsAccruing(),
	}
}

func NewLienUpdated(lien Lien, now int64) LienUpdated {
	ev := LienUpdated{
		LienEvent: newLienEvent(EventTypeLienUpdated, lien.ID, now),
		Balance:   lien.Balance,
	}
	if lien.Accrual != nil {
		ev.LastUpdate = lien.Accrual.LastUpdate
	}
	return ev
}

func NewLienPaid(lien Lien, payer string, amount uint64, now int64) LienPaid {
	return LienPaid{
		LienEvent: newLienEvent(EventTypeLienPaid, lien.ID, now),
		Payer:     payer,
		Amount:    amount,
		Balance:   lien.Balance,
	}
}

func NewAssetMinted(asset Asset, fee uint64) AssetMinted {
	return AssetMinted{
		AssetEvent:      newAssetEvent(EventTypeAssetMinted, asset.ID, asset.CreatedAt),
		Owner:           asset.Owner,
		MetadataRef:     asset.MetadataRef,
		SettlementAsset: asset.SettlementAsset,
		PrimaryLien:     asset.Liens[0],
		Fee:             fee,
	}
}

func NewLienProposed(assetID uint64, lienID string, now int64) LienProposed {
	return LienProposed{
		AssetEvent: newAssetEvent(EventTypeLienProposed, assetID, now),
		LienID:     lienID,
	}
}

func NewLienAdded(assetID uint64, slot int, lienID string, now int64) LienAdded {
	return LienAdded{
		AssetEvent: newAssetEvent(EventTypeLienAdded, assetID, now),
		Slot:       slot,
		LienID:     lienID,
	}
}

func NewLienRemoved(assetID uint64, slot int, lienID string, now int64) LienRemoved {
	return LienRemoved{
		AssetEvent: newAssetEvent(EventTypeLienRemoved, assetID, now),
		Slot:       slot,
		LienID:     lienID,
	}
}

func NewReserveIncreased(asset Asset, amount uint64, now int64) ReserveIncreased {
	return ReserveIncreased{
		AssetEvent: newAssetEvent(EventTypeReserveIncreased, asset.ID, now),
		Amount:     amount,
		Reserve:    asset.Reserve,
	}
}

func NewReserveRedeemed(asset Asset, amount uint64, now int64) ReserveRedeemed {
	return ReserveRedeemed{
		AssetEvent: newAssetEvent(EventTypeReserveRedeemed, asset.ID, now),
		Amount:     amount,
		Reserve:    asset.Reserve,
	}
}

func NewAssetTransferred(assetID uint64, from, to string, now int64) AssetTransferred {
	return AssetTransferred{
		AssetEvent: newAssetEvent(EventTypeAssetTransferred, assetID, now),
		From:       from,
		To:         to,
	}
}

func NewAssetDestroyed(
	assetID uint64, owner string, detached []string, refund uint64, now int64,
) AssetDestroyed {
	return AssetDestroyed{
		AssetEvent:    newAssetEvent(EventTypeAssetDestroyed, assetID, now),
		Owner:         owner,
		DetachedLiens: detached,
		Refund:        refund,
	}
}

func NewEscrowAuthorityUpdated(previous, current string, now int64) EscrowAuthorityUpdated {
	return EscrowAuthorityUpdated{
		BaseEvent: BaseEvent{
			Id: RegistryTopic, Type: EventTypeEscrowAuthorityUpdated, Timestamp: now,
		},
		Previous: previous,
		Current:  current,
	}
}

func NewPropertyListed(sale Sale) PropertyListed {
	return PropertyListed{
		SaleEvent: newSaleEvent(EventTypePropertyListed, sale.AssetID, sale.ListedAt),
		Seller:    sale.Seller,
		Price:     sale.Price,
		Window:    sale.Window,
	}
}

func NewPropertyBought(sale Sale) PropertyBought {
	return PropertyBought{
		SaleEvent: newSaleEvent(EventTypePropertyBought, sale.AssetID, sale.BoughtAt),
		Buyer:     sale.Buyer,
		Amount:    sale.Price,
	}
}

func NewSaleExecuted(sale Sale, lienPayoffs, proceeds uint64) SaleExecuted {
	return SaleExecuted{
		SaleEvent:   newSaleEvent(EventTypeSaleExecuted, sale.AssetID, sale.UpdatedAt),
		Seller:      sale.Seller,
		Buyer:       sale.Buyer,
		Price:       sale.Price,
		Fee:         sale.Fee(),
		LienPayoffs: lienPayoffs,
		Proceeds:    proceeds,
	}
}

func NewSaleCanceled(sale Sale) SaleCanceled {
	return SaleCanceled{
		SaleEvent: newSaleEvent(EventTypeSaleCanceled, sale.AssetID, sale.UpdatedAt),
		Buyer:     sale.Buyer,
		Refund:    sale.Price,
	}
}

func NewSaleReverted(sale Sale) SaleReverted {
	return SaleReverted{
		SaleEvent: newSaleEvent(EventTypeSaleReverted, sale.AssetID, sale.UpdatedAt),
		Seller:    sale.Seller,
	}
}

// DecodeEvent restores a JSON encoded event into its concrete type.
func DecodeEvent(buf []byte) (Event, error) {
	var header struct {
		Type EventType
	}
	if err := json.Unmarshal(buf, &header); err != nil {
		return nil, err
	}

	var event Event
	switch header.Type {
	case EventTypeLienCreated:
		event = &LienCreated{}
	case EventTypeLienUpdated:
		event = &LienUpdated{}
	case EventTypeLienPaid:
		event = &LienPaid{}
	case EventTypeAssetMinted:
		event = &AssetMinted{}
	case EventTypeLienProposed:
		event = &LienProposed{}
	case EventTypeLienAdded:
		event = &LienAdded{}
	case EventTypeLienRemoved:
		event = &LienRemoved{}
	case EventTypeReserveIncreased:
		event = &ReserveIncreased{}
	case EventTypeReserveRedeemed:
		event = &ReserveRedeemed{}
	case EventTypeAssetTransferred:
		event = &AssetTransferred{}
	case EventTypeAssetDestroyed:
		event = &AssetDestroyed{}
	case EventTypeEscrowAuthorityUpdated:
		event = &EscrowAuthorityUpdated{}
	case EventTypePropertyListed:
		event = &PropertyListed{}
	case EventTypePropertyBought:
		event = &PropertyBought{}
	case EventTypeSaleExecuted:
		event = &SaleExecuted{}
	case EventTypeSaleCanceled:
		event = &SaleCanceled{}
	case EventTypeSaleReverted:
		event = &SaleReverted{}
	default:
		return nil, fmt.Errorf("unknown event type %d", header.Type)
	}

	if err := json.Unmarshal(buf, event); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", header.Type, err)
	}
	return derefEvent(event), nil
}

func derefEvent(event Event) Event {
	switch e := event.(type) {
	case *LienCreated:
		return *e
	case *LienUpdated:
		return *e
	case *LienPaid:
		return *e
	case *AssetMinted:
		return *e
	case *LienProposed:
		return *e
	case *LienAdded:
		return *e
	case *LienRemoved:
		return *e
	case *ReserveIncreased:
		return *e
	case *ReserveRedeemed:
		return *e
	case *AssetTransferred:
		return *e
	case *AssetDestroyed:
		return *e
	case *EscrowAuthorityUpdated:
		return *e
	case *PropertyListed:
		return *e
	case *PropertyBought:
		return *e
	case *SaleExecuted:
		return *e
	case *SaleCanceled:
		return *e
	case *SaleReverted:
		return *e
	}
	return event
}
