package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"terrier/internal/approval"
	"terrier/internal/platform/middleware"
	"terrier/pkg/domain"
	"terrier/pkg/platform/httputil"

	dErrors "terrier/pkg/domain-errors"
)

// ApprovalService is the admin policy surface the handler needs.
type ApprovalService interface {
	Current(ctx context.Context) (approval.Settings, error)
	Update(ctx context.Context, params approval.UpdateParams) (approval.Settings, error)
}

type AdminHandler struct {
	approvals ApprovalService
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewAdminHandler(approvals ApprovalService, logger *slog.Logger, validator middleware.TokenValidator) *AdminHandler {
	return &AdminHandler{approvals: approvals, logger: logger, validator: validator}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))
		g.Use(middleware.RequireRole(h.logger, domain.RoleAdmin))
		g.Get("/admin/approval-settings", h.handleGet)
		g.Put("/admin/approval-settings", h.handleUpdate)
	})
}

type settingsResponse struct {
	Enabled           bool      `json:"enabled"`
	RequiredApprovals int       `json:"required_approvals"`
	ApprovalType      string    `json:"approval_type"`
	RankSequence      []string  `json:"rank_sequence"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toSettingsResponse(s approval.Settings) settingsResponse {
	return settingsResponse{
		Enabled:           s.Enabled,
		RequiredApprovals: s.RequiredApprovals,
		ApprovalType:      string(s.ApprovalType),
		RankSequence:      s.RankSequence,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (h *AdminHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	settings, err := h.approvals.Current(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSettingsResponse(settings))
}

type updateSettingsRequest struct {
	Enabled           bool     `json:"enabled"`
	RequiredApprovals int      `json:"required_approvals"`
	ApprovalType      string   `json:"approval_type"`
	RankSequence      []string `json:"rank_sequence,omitempty"`
}

func (h *AdminHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	approvalType, err := approval.ParseType(req.ApprovalType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	settings, err := h.approvals.Update(ctx, approval.UpdateParams{
		Enabled:           req.Enabled,
		RequiredApprovals: req.RequiredApprovals,
		ApprovalType:      approvalType,
		RankSequence:      req.RankSequence,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "settings update failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSettingsResponse(settings))
}
