package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"terrier/internal/audit"
	"terrier/internal/certification"
	"terrier/internal/platform/middleware"
	"terrier/pkg/domain"
	"terrier/pkg/platform/httputil"
)

// VerifyService answers public certificate verification queries.
type VerifyService interface {
	Verify(ctx context.Context, payload string) (certification.VerifyResult, error)
}

// AuditReader lists the audit trail for one subject.
type AuditReader interface {
	List(ctx context.Context, subjectRef string) ([]audit.Entry, error)
}

// VerifyHandler serves the public verification endpoint and the restricted
// audit trail.
type VerifyHandler struct {
	verifier  VerifyService
	auditLog  AuditReader
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewVerifyHandler(verifier VerifyService, auditLog AuditReader, logger *slog.Logger, validator middleware.TokenValidator) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, auditLog: auditLog, logger: logger, validator: validator}
}

func (h *VerifyHandler) Register(r chi.Router) {
	// Verification is public: it faces QR scans from arbitrary devices.
	r.Get("/verify/{payload}", h.handleVerify)

	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))
		g.Use(middleware.RequireRole(h.logger, domain.RoleAdmin, domain.RoleRegistrar))
		g.Get("/audit/{subjectRef}", h.handleAuditTrail)
	})
}

type verifyResponse struct {
	Valid    bool              `json:"valid"`
	Reason   string            `json:"reason,omitempty"`
	Property *propertyResponse `json:"property,omitempty"`
	OnChain  *onChainResponse  `json:"on_chain,omitempty"`
}

type onChainResponse struct {
	PropertyID  string    `json:"property_id"`
	OwnerRef    string    `json:"owner_ref"`
	ContentHash string    `json:"content_hash"`
	TxHash      string    `json:"tx_hash"`
	BlockRef    string    `json:"block_ref"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func (h *VerifyHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.verifier.Verify(ctx, chi.URLParam(r, "payload"))
	if err != nil {
		h.logger.ErrorContext(ctx, "verification backend failure", "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := verifyResponse{Valid: result.Valid, Reason: result.Reason}
	if result.Property != nil {
		p := toPropertyResponse(result.Property)
		resp.Property = &p
	}
	if result.OnChain != nil {
		resp.OnChain = &onChainResponse{
			PropertyID:  result.OnChain.Payload.PropertyID,
			OwnerRef:    result.OnChain.Payload.OwnerRef,
			ContentHash: result.OnChain.Payload.ContentHash,
			TxHash:      result.OnChain.TxHash,
			BlockRef:    result.OnChain.BlockRef,
			RecordedAt:  result.OnChain.Payload.RecordedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type auditEntryResponse struct {
	ActorRef    string    `json:"actor_ref"`
	Action      string    `json:"action"`
	SubjectRef  string    `json:"subject_ref"`
	Timestamp   time.Time `json:"timestamp"`
	LedgerTxRef string    `json:"ledger_tx_ref,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

func (h *VerifyHandler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.auditLog.List(r.Context(), chi.URLParam(r, "subjectRef"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ActorRef:    e.ActorRef.String(),
			Action:      string(e.Action),
			SubjectRef:  e.SubjectRef,
			Timestamp:   e.Timestamp,
			LedgerTxRef: e.LedgerTxRef,
			RequestID:   e.RequestID,
			Detail:      e.Detail,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
