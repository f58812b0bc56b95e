package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"terrier/internal/certification"
	"terrier/internal/platform/middleware"
	"terrier/internal/property"
	propmodels "terrier/internal/property/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/httputil"
	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

// PropertyService is the property surface the handler needs.
type PropertyService interface {
	Get(ctx context.Context, id domain.PropertyID) (*propmodels.Property, error)
	ListByOwner(ctx context.Context, owner domain.ActorRef) ([]*propmodels.Property, error)
	Transfer(ctx context.Context, params property.TransferParams) (*propmodels.Property, error)
}

type PropertyHandler struct {
	properties PropertyService
	logger     *slog.Logger
	validator  middleware.TokenValidator
}

func NewPropertyHandler(properties PropertyService, logger *slog.Logger, validator middleware.TokenValidator) *PropertyHandler {
	return &PropertyHandler{properties: properties, logger: logger, validator: validator}
}

func (h *PropertyHandler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))

		g.Get("/properties", h.handleListMine)
		g.Get("/properties/{id}", h.handleGet)

		g.Group(func(owner chi.Router) {
			owner.Use(middleware.RequireRole(h.logger, domain.RoleCitizen, domain.RoleRegistrar))
			owner.Post("/properties/{id}/transfer", h.handleTransfer)
		})
	})
}

type propertyResponse struct {
	PropertyID   string    `json:"property_id"`
	OwnerRef     string    `json:"owner_ref"`
	Address      string    `json:"address"`
	AreaSqft     float64   `json:"area_sqft"`
	Value        int64     `json:"value"`
	Status       string    `json:"status"`
	LedgerTxHash string    `json:"ledger_tx_hash"`
	BlockRef     string    `json:"block_ref"`
	QRPayload    string    `json:"qr_payload"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toPropertyResponse(p *propmodels.Property) propertyResponse {
	return propertyResponse{
		PropertyID:   p.PropertyID.String(),
		OwnerRef:     p.OwnerRef.String(),
		Address:      p.Address,
		AreaSqft:     p.AreaSqft,
		Value:        p.Value,
		Status:       string(p.Status),
		LedgerTxHash: p.LedgerTx.Hash,
		BlockRef:     p.LedgerTx.BlockRef,
		QRPayload:    certification.QRPayload(p.PropertyID),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (h *PropertyHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParsePropertyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.properties.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}

func (h *PropertyHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	properties, err := h.properties.ListByOwner(ctx, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]propertyResponse, 0, len(properties))
	for _, p := range properties {
		out = append(out, toPropertyResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type transferRequest struct {
	NewOwner  string `json:"new_owner"`
	SalePrice int64  `json:"sale_price,omitempty"`
}

func (h *PropertyHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParsePropertyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	newOwner, err := domain.ParseActorRef(req.NewOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.properties.Transfer(ctx, property.TransferParams{
		PropertyID: id,
		NewOwner:   newOwner,
		SalePrice:  req.SalePrice,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "transfer failed", "property_id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}
