package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"terrier/internal/dispute"
	"terrier/internal/dispute/models"
	"terrier/internal/platform/middleware"
	"terrier/pkg/domain"
	"terrier/pkg/platform/httputil"

	dErrors "terrier/pkg/domain-errors"
)

// DisputeService is the litigation surface the handler needs.
type DisputeService interface {
	Raise(ctx context.Context, params dispute.RaiseParams) (*models.Dispute, error)
	ReferToCourt(ctx context.Context, disputeID domain.DisputeID) (*models.Case, error)
	IssueOrder(ctx context.Context, caseID domain.CaseID, text string) (*models.Case, error)
	ScheduleHearing(ctx context.Context, caseID domain.CaseID, date time.Time, venue string) (*models.Case, error)
	CloseCase(ctx context.Context, caseID domain.CaseID, resolution string) (*models.Case, error)
	Dismiss(ctx context.Context, disputeID domain.DisputeID) (*models.Dispute, error)
	GetDispute(ctx context.Context, id domain.DisputeID) (*models.Dispute, error)
	GetCase(ctx context.Context, id domain.CaseID) (*models.Case, error)
	ListByProperty(ctx context.Context, propertyID domain.PropertyID) ([]*models.Dispute, error)
}

type DisputeHandler struct {
	disputes  DisputeService
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewDisputeHandler(disputes DisputeService, logger *slog.Logger, validator middleware.TokenValidator) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, logger: logger, validator: validator}
}

func (h *DisputeHandler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))

		g.Group(func(raise chi.Router) {
			raise.Use(middleware.RequireRole(h.logger, domain.RoleCitizen, domain.RoleRegistrar, domain.RoleCourt))
			raise.Post("/disputes", h.handleRaise)
		})

		g.Get("/disputes/{id}", h.handleGetDispute)
		g.Get("/properties/{id}/disputes", h.handleListByProperty)
		g.Get("/cases/{id}", h.handleGetCase)

		g.Group(func(registrar chi.Router) {
			registrar.Use(middleware.RequireRole(h.logger, domain.RoleRegistrar))
			registrar.Post("/disputes/{id}/refer", h.handleRefer)
		})

		g.Group(func(court chi.Router) {
			court.Use(middleware.RequireRole(h.logger, domain.RoleCourt))
			court.Post("/disputes/{id}/dismiss", h.handleDismiss)
			court.Post("/cases/{id}/orders", h.handleIssueOrder)
			court.Post("/cases/{id}/hearings", h.handleScheduleHearing)
			court.Post("/cases/{id}/close", h.handleCloseCase)
		})
	})
}

type disputeResponse struct {
	ID         string             `json:"id"`
	PropertyID string             `json:"property_id"`
	RaisedBy   string             `json:"raised_by"`
	Reason     string             `json:"reason"`
	Status     string             `json:"status"`
	CaseRef    string             `json:"case_ref,omitempty"`
	Timeline   []timelineResponse `json:"timeline"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

type timelineResponse struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	TxRef     string    `json:"tx_ref,omitempty"`
}

type caseResponse struct {
	ID         string            `json:"id"`
	DisputeID  string            `json:"dispute_id"`
	PropertyID string            `json:"property_id"`
	Status     string            `json:"status"`
	Orders     []orderResponse   `json:"orders"`
	Hearings   []hearingResponse `json:"hearings"`
	Resolution string            `json:"resolution,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type orderResponse struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type hearingResponse struct {
	Date  time.Time `json:"date"`
	Venue string    `json:"venue,omitempty"`
}

func toDisputeResponse(d *models.Dispute) disputeResponse {
	resp := disputeResponse{
		ID:         d.ID.String(),
		PropertyID: d.PropertyID.String(),
		RaisedBy:   d.RaisedBy.String(),
		Reason:     d.Reason,
		Status:     string(d.Status),
		Timeline:   make([]timelineResponse, 0, len(d.Timeline)),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if !d.CaseRef.IsNil() {
		resp.CaseRef = d.CaseRef.String()
	}
	for _, e := range d.Timeline {
		resp.Timeline = append(resp.Timeline, timelineResponse{
			Type:      e.Type,
			Message:   e.Message,
			Timestamp: e.Timestamp,
			TxRef:     e.TxRef,
		})
	}
	return resp
}

func toCaseResponse(c *models.Case) caseResponse {
	resp := caseResponse{
		ID:         c.ID.String(),
		DisputeID:  c.DisputeID.String(),
		PropertyID: c.PropertyID.String(),
		Status:     string(c.Status),
		Orders:     make([]orderResponse, 0, len(c.Orders)),
		Hearings:   make([]hearingResponse, 0, len(c.Hearings)),
		Resolution: c.Resolution,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	for _, o := range c.Orders {
		resp.Orders = append(resp.Orders, orderResponse{Text: o.Text, Timestamp: o.Timestamp})
	}
	for _, hg := range c.Hearings {
		resp.Hearings = append(resp.Hearings, hearingResponse{Date: hg.Date, Venue: hg.Venue})
	}
	return resp
}

type raiseDisputeRequest struct {
	PropertyID string `json:"property_id"`
	Reason     string `json:"reason"`
}

func (h *DisputeHandler) handleRaise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req raiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	propertyID, err := domain.ParsePropertyID(req.PropertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.disputes.Raise(ctx, dispute.RaiseParams{PropertyID: propertyID, Reason: req.Reason})
	if err != nil {
		h.logger.WarnContext(ctx, "dispute raise failed", "property_id", propertyID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDisputeResponse(d))
}

func (h *DisputeHandler) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.disputes.GetDispute(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDisputeResponse(d))
}

func (h *DisputeHandler) handleListByProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := domain.ParsePropertyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	disputes, err := h.disputes.ListByProperty(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]disputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, toDisputeResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *DisputeHandler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.disputes.GetCase(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(c))
}

func (h *DisputeHandler) handleRefer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.disputes.ReferToCourt(ctx, id)
	if err != nil {
		h.logger.WarnContext(ctx, "court referral failed", "dispute_id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCaseResponse(c))
}

func (h *DisputeHandler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.disputes.Dismiss(ctx, id)
	if err != nil {
		h.logger.WarnContext(ctx, "dispute dismissal failed", "dispute_id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDisputeResponse(d))
}

type issueOrderRequest struct {
	Text string `json:"text"`
}

func (h *DisputeHandler) handleIssueOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req issueOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	c, err := h.disputes.IssueOrder(ctx, id, req.Text)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(c))
}

type scheduleHearingRequest struct {
	Date  time.Time `json:"date"`
	Venue string    `json:"venue,omitempty"`
}

func (h *DisputeHandler) handleScheduleHearing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req scheduleHearingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	c, err := h.disputes.ScheduleHearing(ctx, id, req.Date, req.Venue)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(c))
}

type closeCaseRequest struct {
	Resolution string `json:"resolution"`
}

func (h *DisputeHandler) handleCloseCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req closeCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	c, err := h.disputes.CloseCase(ctx, id, req.Resolution)
	if err != nil {
		h.logger.WarnContext(ctx, "case close failed", "case_id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(c))
}
