package domain

import (
	"github.com/zyfty/zyftyd/pkg/errors"
)

// MaxLiens is the capacity of an asset's lien stack. Slot index is payoff precedence.
const MaxLiens = 4

type LienProposal struct {
	LienID     string
	ProposedAt int64
}

type Asset struct {
	ID              uint64
	Owner           string
	MetadataRef     string
	SettlementAsset string
	DeclaredValue   uint64
	// Liens holds lien ids, an empty string marks a free slot.
	Liens     [MaxLiens]string
	Reserve   uint64
	Proposal  *LienProposal
	CreatedAt int64
	UpdatedAt int64
}

type LienSlot struct {
	Slot   int
	LienID string
}

func NewAsset(
	id uint64, owner, metadataRef, settlementAsset string, declaredValue uint64, now int64,
) (*Asset, error) {
	if owner == "" {
		return nil, errors.INVALID_ARGUMENT.New("missing asset owner")
	}
	if settlementAsset == "" {
		return nil, errors.INVALID_ARGUMENT.New("missing settlement asset")
	}
	return &Asset{
		ID:              id,
		Owner:           owner,
		MetadataRef:     metadataRef,
		SettlementAsset: settlementAsset,
		DeclaredValue:   declaredValue,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (a *Asset) RequireOwner(caller string) error {
	if caller != a.Owner {
		return errors.UNAUTHORIZED.New(
			"account %s is not the owner of asset %d", caller, a.ID,
		).WithMetadata(errors.AccountMetadata{Account: caller, Expected: a.Owner})
	}
	return nil
}

// SetPrimaryLien places the lien in slot 0 of a freshly minted asset.
func (a *Asset) SetPrimaryLien(lien *Lien) error {
	if err := a.checkSettlementAsset(lien); err != nil {
		return err
	}
	if err := a.checkUnattached(lien); err != nil {
		return err
	}
	if a.Liens[0] != "" {
		return errors.INVALID_STATE.New("asset %d already has a primary lien", a.ID).
			WithMetadata(errors.StateMetadata{AssetId: a.ID, State: "PRIMARY_LIEN_SET"})
	}
	a.Liens[0] = lien.ID
	return nil
}

// ProposeLien records lienID as the only outstanding proposal, replacing any earlier one.
func (a *Asset) ProposeLien(caller, lienID string, now int64) error {
	if err := a.RequireOwner(caller); err != nil {
		return err
	}
	if lienID == "" {
		return errors.INVALID_ARGUMENT.New("missing lien id")
	}
	a.Proposal = &LienProposal{LienID: lienID, ProposedAt: now}
	a.UpdatedAt = now
	return nil
}

// AcceptLien moves the proposed lien into the lowest free slot and returns the slot index.
func (a *Asset) AcceptLien(caller string, lien *Lien, now int64) (int, error) {
	if caller != lien.Provider {
		return -1, errors.UNAUTHORIZED.New(
			"account %s is not the provider of lien %s", caller, lien.ID,
		).WithMetadata(errors.AccountMetadata{Account: caller, Expected: lien.Provider})
	}
	if a.Proposal == nil || a.Proposal.LienID != lien.ID {
		proposed := ""
		if a.Proposal != nil {
			proposed = a.Proposal.LienID
		}
		return -1, errors.STALE_PROPOSAL.New(
			"lien %s is not the latest proposal for asset %d", lien.ID, a.ID,
		).WithMetadata(errors.ProposalMetadata{AssetId: a.ID, Proposed: proposed, Got: lien.ID})
	}
	if err := a.checkSettlementAsset(lien); err != nil {
		return -1, err
	}
	if err := a.checkUnattached(lien); err != nil {
		return -1, err
	}
	slot := a.freeSlot()
	if slot < 0 {
		return -1, errors.LIEN_STACK_FULL.New(
			"asset %d already holds %d liens", a.ID, MaxLiens,
		).WithMetadata(errors.AssetMetadata{AssetId: a.ID})
	}
	a.Liens[slot] = lien.ID
	a.Proposal = nil
	a.UpdatedAt = now
	return slot, nil
}

// RemoveLien clears the given slot without shifting the others and returns the removed lien id.
func (a *Asset) RemoveLien(caller string, slot int, now int64) (string, error) {
	if err := a.RequireOwner(caller); err != nil {
		return "", err
	}
	lienID, err := a.LienAt(slot)
	if err != nil {
		return "", err
	}
	a.Liens[slot] = ""
	a.UpdatedAt = now
	return lienID, nil
}

// LienAt returns the lien id held in slot.
func (a *Asset) LienAt(slot int) (string, error) {
	if slot < 0 || slot >= MaxLiens {
		return "", errors.INVALID_ARGUMENT.New(
			"slot %d out of range [0, %d)", slot, MaxLiens,
		)
	}
	if a.Liens[slot] == "" {
		return "", errors.SLOT_EMPTY.New("slot %d of asset %d is empty", slot, a.ID).
			WithMetadata(errors.SlotMetadata{AssetId: a.ID, Slot: slot})
	}
	return a.Liens[slot], nil
}

// LienSlots returns the populated slots in priority order.
func (a *Asset) LienSlots() []LienSlot {
	slots := make([]LienSlot, 0, MaxLiens)
	for i, id := range a.Liens {
		if id != "" {
			slots = append(slots, LienSlot{Slot: i, LienID: id})
		}
	}
	return slots
}

func (a *Asset) LienCount() int {
	return len(a.LienSlots())
}

func (a *Asset) IncreaseReserve(caller string, amount uint64, now int64) error {
	if err := a.RequireOwner(caller); err != nil {
		return err
	}
	if amount == 0 {
		return errors.INVALID_ARGUMENT.New("reserve amount must be positive")
	}
	a.Reserve += amount
	a.UpdatedAt = now
	return nil
}

func (a *Asset) RedeemReserve(caller string, amount uint64, now int64) error {
	if err := a.RequireOwner(caller); err != nil {
		return err
	}
	if amount == 0 {
		return errors.INVALID_ARGUMENT.New("reserve amount must be positive")
	}
	return a.DrawReserve(amount, now)
}

// DrawReserve takes amount out of the reserve, failing rather than going below zero.
func (a *Asset) DrawReserve(amount uint64, now int64) error {
	if amount > a.Reserve {
		return errors.INSUFFICIENT_FUNDS.New(
			"asset %d reserve %d is lower than %d", a.ID, a.Reserve, amount,
		).WithMetadata(errors.FundsMetadata{
			Account:   RegistryAccount,
			Asset:     a.SettlementAsset,
			Available: a.Reserve,
			Required:  amount,
		})
	}
	a.Reserve -= amount
	a.UpdatedAt = now
	return nil
}

func (a *Asset) TransferOwnership(to string, now int64) error {
	if to == "" {
		return errors.INVALID_ARGUMENT.New("missing recipient")
	}
	a.Owner = to
	a.UpdatedAt = now
	return nil
}

// Destroy clears owner, liens and reserve together and returns the detached lien ids and the
// reserve to refund.
func (a *Asset) Destroy(caller string, now int64) ([]string, uint64, error) {
	if err := a.RequireOwner(caller); err != nil {
		return nil, 0, err
	}
	detached := make([]string, 0, MaxLiens)
	for _, s := range a.LienSlots() {
		detached = append(detached, s.LienID)
	}
	reserve := a.Reserve

	a.Owner = ""
	a.Liens = [MaxLiens]string{}
	a.Reserve = 0
	a.Proposal = nil
	a.UpdatedAt = now
	return detached, reserve, nil
}

func (a *Asset) freeSlot() int {
	for i, id := range a.Liens {
		if id == "" {
			return i
		}
	}
	return -1
}

func (a *Asset) checkSettlementAsset(lien *Lien) error {
	if lien.SettlementAsset != a.SettlementAsset {
		return errors.ASSET_MISMATCH.New(
			"lien %s settles in %s, asset %d in %s",
			lien.ID, lien.SettlementAsset, a.ID, a.SettlementAsset,
		).WithMetadata(errors.AssetMismatchMetadata{
			Expected: a.SettlementAsset,
			Got:      lien.SettlementAsset,
		})
	}
	return nil
}

func (a *Asset) checkUnattached(lien *Lien) error {
	if lien.IsAttached() || a.holds(lien.ID) {
		attachedTo := lien.AssetID
		if attachedTo == 0 {
			attachedTo = a.ID
		}
		return errors.LIEN_ALREADY_ATTACHED.New(
			"lien %s is attached to asset %d", lien.ID, attachedTo,
		).WithMetadata(errors.LienMetadata{LienId: lien.ID})
	}
	return nil
}

func (a *Asset) holds(lienID string) bool {
	for _, id := range a.Liens {
		if id == lienID {
			return true
		}
	}
	return false
}
