// Package httptransport is the thin HTTP layer over the registry services.
// Handlers decode, delegate, and encode; business rules live in the
// services.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appmodels "terrier/internal/application/models"
	"terrier/internal/application/service"
	"terrier/internal/platform/middleware"
	"terrier/pkg/domain"
	"terrier/pkg/platform/httputil"
	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

// ApplicationService is the application lifecycle surface the handler needs.
type ApplicationService interface {
	Submit(ctx context.Context, params service.SubmitParams) (*appmodels.Application, error)
	Get(ctx context.Context, id domain.ApplicationID) (*appmodels.Application, error)
	ListByApplicant(ctx context.Context, applicant domain.ActorRef) ([]*appmodels.Application, error)
	RecordDecision(ctx context.Context, params service.DecisionParams) (service.DecisionResult, error)
}

type ApplicationHandler struct {
	applications ApplicationService
	logger       *slog.Logger
	validator    middleware.TokenValidator
}

func NewApplicationHandler(applications ApplicationService, logger *slog.Logger, validator middleware.TokenValidator) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, logger: logger, validator: validator}
}

func (h *ApplicationHandler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))

		g.Group(func(citizen chi.Router) {
			citizen.Use(middleware.RequireRole(h.logger, domain.RoleCitizen, domain.RoleRegistrar))
			citizen.Post("/applications", h.handleSubmit)
		})

		g.Get("/applications", h.handleListMine)
		g.Get("/applications/{id}", h.handleGet)

		g.Group(func(registrar chi.Router) {
			registrar.Use(middleware.RequireRole(h.logger, domain.RoleRegistrar))
			registrar.Post("/applications/{id}/decision", h.handleDecision)
		})
	})
}

type submitApplicationRequest struct {
	Kind          string   `json:"kind"`
	OwnerName     string   `json:"owner_name"`
	Address       string   `json:"address"`
	AreaSqft      float64  `json:"area_sqft"`
	DeclaredValue int64    `json:"declared_value"`
	PropertyID    string   `json:"property_id,omitempty"`
	DocumentRefs  []string `json:"document_refs,omitempty"`
}

type applicationResponse struct {
	ID              string             `json:"id"`
	Kind            string             `json:"kind"`
	Status          string             `json:"status"`
	ApplicantRef    string             `json:"applicant_ref"`
	OwnerName       string             `json:"owner_name"`
	Address         string             `json:"address"`
	AreaSqft        float64            `json:"area_sqft"`
	DeclaredValue   int64              `json:"declared_value"`
	Approvals       []approvalResponse `json:"approvals"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	PropertyID      string             `json:"property_id,omitempty"`
	LedgerTxHash    string             `json:"ledger_tx_hash,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type approvalResponse struct {
	RegistrarRef string    `json:"registrar_ref"`
	Rank         string    `json:"rank,omitempty"`
	Decision     string    `json:"decision"`
	Comment      string    `json:"comment,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func toApplicationResponse(app *appmodels.Application) applicationResponse {
	resp := applicationResponse{
		ID:              app.ID.String(),
		Kind:            string(app.Kind),
		Status:          string(app.Status),
		ApplicantRef:    app.ApplicantRef.String(),
		OwnerName:       app.Draft.OwnerName,
		Address:         app.Draft.Address,
		AreaSqft:        app.Draft.AreaSqft,
		DeclaredValue:   app.Draft.DeclaredValue,
		Approvals:       make([]approvalResponse, 0, len(app.Approvals)),
		RejectionReason: app.RejectionReason,
		PropertyID:      app.PropertyID.String(),
		LedgerTxHash:    app.LedgerTxHash,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
	for _, a := range app.Approvals {
		resp.Approvals = append(resp.Approvals, approvalResponse{
			RegistrarRef: a.RegistrarRef.String(),
			Rank:         a.Rank,
			Decision:     string(a.Decision),
			Comment:      a.Comment,
			Timestamp:    a.Timestamp,
		})
	}
	return resp
}

func (h *ApplicationHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	kind, err := domain.ParseApplicationKind(req.Kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var propertyID domain.PropertyID
	if req.PropertyID != "" {
		propertyID, err = domain.ParsePropertyID(req.PropertyID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	app, err := h.applications.Submit(ctx, service.SubmitParams{
		Kind: kind,
		Draft: appmodels.PropertyDraft{
			OwnerName:     req.OwnerName,
			Address:       req.Address,
			AreaSqft:      req.AreaSqft,
			DeclaredValue: req.DeclaredValue,
			PropertyID:    propertyID,
			DocumentRefs:  req.DocumentRefs,
		},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "application submission failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *ApplicationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.applications.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *ApplicationHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.applications.ListByApplicant(ctx, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toApplicationResponse(app))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

type decisionResponse struct {
	Application applicationResponse `json:"application"`
	Property    *propertyResponse   `json:"property,omitempty"`
}

func (h *ApplicationHandler) handleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	decision, err := appmodels.ParseDecision(req.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.applications.RecordDecision(ctx, service.DecisionParams{
		ApplicationID: id,
		Decision:      decision,
		Comment:       req.Comment,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "decision failed",
			"application_id", id, "decision", decision, "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := decisionResponse{Application: toApplicationResponse(result.Application)}
	if result.Property != nil {
		p := toPropertyResponse(result.Property)
		resp.Property = &p
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
