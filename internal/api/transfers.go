package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/prenos/internal/authz"
	"github.com/erazemk/prenos/internal/metrics"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/transfer"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	Service *transfer.Service
	Policy  authz.ResolutionPolicy
	Metrics *metrics.Metrics
}

type createTransferRequest struct {
	ItemID                 int64  `json:"item_id" validate:"required,gt=0"`
	DestinationInventoryID int64  `json:"destination_inventory_id" validate:"required,gt=0"`
	Details                string `json:"details" validate:"max=500"`
}

type approveRequest struct {
	ApprovalNotes string `json:"approval_notes" validate:"max=1000"`
}

type rejectRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[createTransferRequest](w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	t, err := h.Service.Request(r.Context(), transfer.RequestInput{
		UserID:                 claims.UserID,
		Role:                   claims.Role,
		ItemID:                 req.ItemID,
		DestinationInventoryID: req.DestinationInventoryID,
		Details:                req.Details,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.TransfersRequested.WithLabelValues(string(t.Status)).Inc()
	}
	slog.Info("transfer requested", "user", claims.Username,
		"transfer", t.ID, "item", t.ItemID,
		"from", t.SourceInventoryID, "to", t.DestinationInventoryID,
		"status", t.Status)
	jsonResponse(w, http.StatusCreated, t)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	t, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Approve handles POST /api/transfers/{id}/approve.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	t, actor, ok := h.loadForResolution(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest[approveRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Service.Approve(r.Context(), t.ID, actor.UserID, req.ApprovalNotes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("transfer approved", "user", GetClaims(r.Context()).Username,
		"transfer", t.ID, "item", t.ItemID, "to", t.DestinationInventoryID)
	jsonResponse(w, http.StatusOK, t)
}

// Reject handles POST /api/transfers/{id}/reject.
func (h *TransfersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	t, actor, ok := h.loadForResolution(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest[rejectRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Service.Reject(r.Context(), t.ID, actor.UserID, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("transfer rejected", "user", GetClaims(r.Context()).Username,
		"transfer", t.ID, "item", t.ItemID)
	jsonResponse(w, http.StatusOK, t)
}

// Cancel handles POST /api/transfers/{id}/cancel and DELETE /api/transfers/{id}.
// Both routes withdraw the request; no row is ever deleted.
func (h *TransfersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, actor, ok := h.load(w, r)
	if !ok {
		return
	}

	allowed, err := h.Policy.CanCancel(r.Context(), actor, t)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: checking cancel policy: %w", transfer.ErrUnavailable, err))
		return
	}
	if !allowed {
		writeError(w, r, &transfer.PermissionError{
			Reason: "only the requester, privileged users, or the owner, a manager or a signatory of the source inventory may cancel this transfer",
		})
		return
	}

	t, err = h.Service.Cancel(r.Context(), t.ID, actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("transfer cancelled", "user", GetClaims(r.Context()).Username,
		"transfer", t.ID, "item", t.ItemID)
	w.WriteHeader(http.StatusNoContent)
}

// ListByInventory handles GET /api/inventories/{id}/transfers.
// ?status=pending narrows to open requests; ?direction=incoming|outgoing
// narrows to one side.
func (h *TransfersHandler) ListByInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid inventory id")
		return
	}

	q := r.URL.Query()
	direction := model.TransferDirection(strings.ToLower(q.Get("direction")))

	var (
		transfers []model.Transfer
		err       error
	)
	switch strings.ToLower(q.Get("status")) {
	case "pending":
		transfers, err = h.Service.ListPendingByInventory(r.Context(), id, direction)
	case "", "all":
		transfers, err = h.Service.ListByInventory(r.Context(), id, direction)
	default:
		jsonError(w, http.StatusBadRequest, "status must be 'pending' or 'all'")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// ListByItem handles GET /api/items/{id}/transfers.
func (h *TransfersHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	transfers, err := h.Service.ListByItem(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// load fetches the transfer named in the path along with the acting user.
func (h *TransfersHandler) load(w http.ResponseWriter, r *http.Request) (*model.Transfer, authz.Actor, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return nil, authz.Actor{}, false
	}

	t, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, authz.Actor{}, false
	}

	claims := GetClaims(r.Context())
	return t, authz.Actor{UserID: claims.UserID, Role: claims.Role}, true
}

// loadForResolution is load plus the approve/reject policy check.
func (h *TransfersHandler) loadForResolution(w http.ResponseWriter, r *http.Request) (*model.Transfer, authz.Actor, bool) {
	t, actor, ok := h.load(w, r)
	if !ok {
		return nil, actor, false
	}

	allowed, err := h.Policy.CanResolve(r.Context(), actor, t)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: checking approval policy: %w", transfer.ErrUnavailable, err))
		return nil, actor, false
	}
	if !allowed {
		writeError(w, r, &transfer.PermissionError{Reason: h.Policy.Describe()})
		return nil, actor, false
	}
	return t, actor, true
}
