package restservice

import (
	"fmt"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/zyfty/zyftyd/internal/core/application"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

type handler struct {
	liens    application.LienService
	registry application.RegistryService
	escrow   application.EscrowService
	ledger   application.LedgerService
}

func newHandler(
	liens application.LienService, registry application.RegistryService,
	escrow application.EscrowService, ledger application.LedgerService,
) *handler {
	return &handler{liens, registry, escrow, ledger}
}

func (h *handler) register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		path    string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/liens", h.createLien},
		{http.MethodGet, "/v1/liens/{id}", h.getLien},
		{http.MethodPost, "/v1/liens/{id}/update", h.updateLien},
		{http.MethodPost, "/v1/liens/{id}/pay", h.payLien},
		{http.MethodGet, "/v1/liens/{id}/events", h.getLienEvents},

		{http.MethodPost, "/v1/assets", h.mint},
		{http.MethodGet, "/v1/assets/{id}", h.getAsset},
		{http.MethodDelete, "/v1/assets/{id}", h.destroy},
		{http.MethodGet, "/v1/assets/{id}/events", h.getAssetEvents},
		{http.MethodGet, "/v1/assets/{id}/liens", h.listLiens},
		{http.MethodPost, "/v1/assets/{id}/liens/propose", h.proposeLien},
		{http.MethodPost, "/v1/assets/{id}/liens/accept", h.acceptLien},
		{http.MethodDelete, "/v1/assets/{id}/liens/{slot}", h.removeLien},
		{http.MethodPost, "/v1/assets/{id}/liens/{slot}/pay", h.payAssetLien},
		{http.MethodPost, "/v1/assets/{id}/liens/{slot}/payoff", h.payLienFull},
		{http.MethodPost, "/v1/assets/{id}/reserve/increase", h.increaseReserve},
		{http.MethodPost, "/v1/assets/{id}/reserve/redeem", h.redeemReserve},
		{http.MethodPost, "/v1/assets/{id}/balance", h.balanceAccounts},
		{http.MethodPost, "/v1/assets/{id}/transfer", h.transferAsset},

		{http.MethodGet, "/v1/settings", h.getSettings},
		{http.MethodPost, "/v1/settings/escrow", h.updateEscrow},

		{http.MethodGet, "/v1/sales/{id}", h.getSale},
		{http.MethodPost, "/v1/sales/{id}/sell", h.sell},
		{http.MethodPost, "/v1/sales/{id}/buy", h.buy},
		{http.MethodPost, "/v1/sales/{id}/execute", h.execute},
		{http.MethodPost, "/v1/sales/{id}/revert-seller", h.revertSeller},
		{http.MethodPost, "/v1/sales/{id}/revert-buyer", h.revertBuyer},

		{http.MethodGet, "/v1/ledger/{asset}/balance", h.balanceOf},
		{http.MethodGet, "/v1/ledger/{asset}/allowance", h.allowance},
		{http.MethodPost, "/v1/ledger/{asset}/approve", h.approve},
		{http.MethodPost, "/v1/ledger/{asset}/deposit", h.deposit},
	}

	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.path, route.handler); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", route.method, route.path, err)
		}
	}
	return nil
}

func (h *handler) createLien(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createLienRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	var created *domain.Lien
	if req.Period > 0 || req.PerPeriod > 0 {
		created, err = h.liens.CreateAccruingLien(
			ctx, caller, req.SettlementAsset, req.Balance, req.PerPeriod, req.Period,
		)
	} else {
		created, err = h.liens.CreateLien(ctx, caller, req.SettlementAsset, req.Balance)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLien(*created, created.Balance))
}

func (h *handler) getLien(w http.ResponseWriter, r *http.Request, params map[string]string) {
	info, err := h.liens.GetLien(r.Context(), params["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLien(info.Lien, info.CurrentBalance))
}

func (h *handler) updateLien(w http.ResponseWriter, r *http.Request, params map[string]string) {
	updated, err := h.liens.Update(r.Context(), params["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLien(*updated, updated.Balance))
}

func (h *handler) payLien(w http.ResponseWriter, r *http.Request, params map[string]string) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	paid, err := h.liens.Pay(r.Context(), caller, params["id"], req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"paid": paid})
}

func (h *handler) getLienEvents(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	events, err := h.liens.GetLienEvents(r.Context(), params["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]event{"events": toEvents(events)})
}

func (h *handler) mint(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Owner == "" {
		req.Owner = caller
	}

	id, err := h.registry.Mint(r.Context(), caller, application.MintRequest{
		Owner:           req.Owner,
		MetadataRef:     req.MetadataRef,
		SettlementAsset: req.SettlementAsset,
		PrimaryLien:     req.PrimaryLien,
		DeclaredValue:   req.DeclaredValue,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (h *handler) getAsset(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := parseAssetId(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	found, err := h.registry.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAsset(*found))
}

func (h *handler) destroy(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.assetCall(w, r, params, func(caller string, id uint64) (any, error) {
		return nil, h.registry.Destroy(r.Context(), caller, id)
	})
}

func (h *handler) getAssetEvents(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	id, err := parseAssetId(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.registry.GetAssetEvents(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]event{"events": toEvents(events)})
}

func (h *handler) listLiens(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := parseAssetId(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slots, err := h.registry.ListLiens(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := make([]lienSlot, 0, len(slots))
	for _, s := range slots {
		res = append(res, lienSlot{Slot: s.Slot, Lien: toLien(s.Lien, s.CurrentBalance)})
	}
	writeJSON(w, http.StatusOK, map[string][]lienSlot{"liens": res})
}

func (h *handler) proposeLien(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req lienIdRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		return nil, h.registry.ProposeLien(r.Context(), caller, id, req.LienId)
	})
}

func (h *handler) acceptLien(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req lienIdRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		slot, err := h.registry.AcceptLien(r.Context(), caller, id, req.LienId)
		if err != nil {
			return nil, err
		}
		return map[string]int{"slot": slot}, nil
	})
}

func (h *handler) removeLien(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.slotCall(w, r, params, nil, func(caller string, id uint64, slot int) (any, error) {
		lienId, err := h.registry.RemoveLien(r.Context(), caller, id, slot)
		if err != nil {
			return nil, err
		}
		return map[string]string{"lien_id": lienId}, nil
	})
}

func (h *handler) payAssetLien(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	var req amountRequest
	h.slotCall(w, r, params, &req, func(caller string, id uint64, slot int) (any, error) {
		paid, err := h.registry.PayLien(r.Context(), caller, id, slot, req.Amount)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"paid": paid}, nil
	})
}

func (h *handler) payLienFull(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.slotCall(w, r, params, nil, func(caller string, id uint64, slot int) (any, error) {
		paid, err := h.registry.PayLienFull(r.Context(), caller, id, slot)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"paid": paid}, nil
	})
}

func (h *handler) increaseReserve(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	var req amountRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		return nil, h.registry.IncreaseReserve(r.Context(), caller, id, req.Amount)
	})
}

func (h *handler) redeemReserve(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	var req amountRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		return nil, h.registry.RedeemReserve(r.Context(), caller, id, req.Amount)
	})
}

func (h *handler) balanceAccounts(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	h.assetCall(w, r, params, func(caller string, id uint64) (any, error) {
		paid, err := h.registry.BalanceAccounts(r.Context(), caller, id)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"paid": paid}, nil
	})
}

func (h *handler) transferAsset(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	var req transferRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		return nil, h.registry.TransferAsset(r.Context(), caller, id, req.From, req.To)
	})
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s, err := h.registry.GetSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings{
		Admin:           s.Admin,
		EscrowAuthority: s.EscrowAuthority,
		FeeCollector:    s.FeeCollector,
		MintFeeBps:      s.MintFeeBps,
		UpdatedAt:       s.UpdatedAt,
	})
}

func (h *handler) updateEscrow(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateEscrowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.registry.UpdateEscrow(r.Context(), caller, req.Authority); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *handler) getSale(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := parseAssetId(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	found, err := h.escrow.GetSale(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSale(*found))
}

func (h *handler) sell(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req sellRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		return nil, h.escrow.SellProperty(r.Context(), caller, id, req.Price, req.Window)
	})
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req buyRequest
	h.assetCallWithBody(w, r, params, &req, func(caller string, id uint64) (any, error) {
		return nil, h.escrow.BuyProperty(r.Context(), caller, id, req.Amount)
	})
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.assetCall(w, r, params, func(caller string, id uint64) (any, error) {
		res, err := h.escrow.Execute(r.Context(), caller, id)
		if err != nil {
			return nil, err
		}
		return toReceipt(*res), nil
	})
}

func (h *handler) revertSeller(
	w http.ResponseWriter, r *http.Request, params map[string]string,
) {
	h.assetCall(w, r, params, func(caller string, id uint64) (any, error) {
		return nil, h.escrow.RevertSeller(r.Context(), caller, id)
	})
}

func (h *handler) revertBuyer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.assetCall(w, r, params, func(caller string, id uint64) (any, error) {
		return nil, h.escrow.RevertBuyer(r.Context(), caller, id)
	})
}

func (h *handler) balanceOf(w http.ResponseWriter, r *http.Request, params map[string]string) {
	query, err := parseQuery(r, "account")
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.ledger.BalanceOf(r.Context(), params["asset"], query[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (h *handler) allowance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	query, err := parseQuery(r, "owner", "spender")
	if err != nil {
		writeError(w, r, err)
		return
	}
	allowance, err := h.ledger.Allowance(r.Context(), params["asset"], query[0], query[1])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"allowance": allowance})
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request, params map[string]string) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ledger.Approve(
		r.Context(), caller, params["asset"], req.Spender, req.Amount,
	); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request, params map[string]string) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ledger.Deposit(
		r.Context(), caller, params["asset"], req.Account, req.Amount,
	); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// assetCall runs fn for the asset in the path on behalf of the caller. A nil result is
// returned as an empty object.
func (h *handler) assetCall(
	w http.ResponseWriter, r *http.Request, params map[string]string,
	fn func(caller string, id uint64) (any, error),
) {
	h.assetCallWithBody(w, r, params, nil, fn)
}

func (h *handler) assetCallWithBody(
	w http.ResponseWriter, r *http.Request, params map[string]string, body any,
	fn func(caller string, id uint64) (any, error),
) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := parseAssetId(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if body != nil {
		if err := decodeBody(r, body); err != nil {
			writeError(w, r, err)
			return
		}
	}

	res, err := fn(caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res == nil {
		res = struct{}{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) slotCall(
	w http.ResponseWriter, r *http.Request, params map[string]string, body any,
	fn func(caller string, id uint64, slot int) (any, error),
) {
	slot, err := parseSlot(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.assetCallWithBody(w, r, params, body, func(caller string, id uint64) (any, error) {
		return fn(caller, id, slot)
	})
}
