package models

import (
	"strings"
	"time"

	"terrier/pkg/domain"
	dErrors "terrier/pkg/domain-errors"
)

// Application is the aggregate root for a land-title filing.
//
// Invariants:
//   - Status transitions: pending → under-review → approved|rejected only;
//     approved and rejected are terminal
//   - Approvals never contain two entries from the same registrar
//   - Status=approved implies PropertyID and LedgerTxHash are both set
//   - Terminal applications are retained, never deleted
//
// Concurrency: Version guards every write through compare-and-set in the
// store. Services that observe ErrVersionConflict re-read and retry or
// surface CodeConcurrentModification to the caller.
type Application struct {
	ID              domain.ApplicationID
	Kind            domain.ApplicationKind
	Status          Status
	ApplicantRef    domain.ActorRef
	Draft           PropertyDraft
	Approvals       []Approval
	RejectionReason string
	Certification   Certification
	PropertyID      domain.PropertyID
	LedgerTxHash    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
}

// PropertyDraft carries the facts the applicant declares about the property.
// For transfer and correction filings PropertyID references the certified
// property the filing targets; issue filings leave it empty.
type PropertyDraft struct {
	OwnerName     string
	Address       string
	AreaSqft      float64
	DeclaredValue int64
	PropertyID    domain.PropertyID
	DocumentRefs  []string
}

// Approval records one registrar decision. The rank claim comes from the
// identity collaborator and feeds sequential quorum ordering.
type Approval struct {
	RegistrarRef domain.ActorRef
	Rank         string
	Decision     Decision
	Comment      string
	Timestamp    time.Time
}

// Decision is a registrar's verdict on an application.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision constructs a Decision from external input.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApprove, DecisionReject:
		return Decision(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported decision %q", s)
	}
}

// Certification tracks the saga reservation that makes certify-once safe.
// State in-progress means a ledger submission may exist for this application;
// retries must reuse the reserved property ID and idempotency key instead of
// allocating anew.
type Certification struct {
	State      CertificationState
	PropertyID domain.PropertyID
	ReservedAt time.Time
}

type CertificationState string

const (
	CertificationNone       CertificationState = ""
	CertificationInProgress CertificationState = "in_progress"
	CertificationCompleted  CertificationState = "completed"
)

// New validates the draft and constructs a pending application.
func New(id domain.ApplicationID, kind domain.ApplicationKind, applicant domain.ActorRef, draft PropertyDraft, now time.Time) (*Application, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "application kind is required")
	}
	if applicant.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant ref is required")
	}
	if err := draft.Validate(kind); err != nil {
		return nil, err
	}
	return &Application{
		ID:           id,
		Kind:         kind,
		Status:       StatusPending,
		ApplicantRef: applicant,
		Draft:        draft,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}, nil
}

// Validate enforces the required draft fields: owner name, full address,
// positive area, positive declared value, and a property reference for
// filings that target an existing title.
func (d PropertyDraft) Validate(kind domain.ApplicationKind) error {
	if strings.TrimSpace(d.OwnerName) == "" {
		return dErrors.New(dErrors.CodeValidation, "owner name is required")
	}
	if strings.TrimSpace(d.Address) == "" {
		return dErrors.New(dErrors.CodeValidation, "property address is required")
	}
	if d.AreaSqft <= 0 {
		return dErrors.New(dErrors.CodeValidation, "area must be positive")
	}
	if d.DeclaredValue <= 0 {
		return dErrors.New(dErrors.CodeValidation, "declared value must be positive")
	}
	if kind.RequiresExistingProperty() && d.PropertyID.IsZero() {
		return dErrors.Newf(dErrors.CodeValidation, "%s applications must reference an existing property", kind)
	}
	return nil
}

// IsTerminal reports whether no further decisions are accepted.
func (a *Application) IsTerminal() bool {
	return a.Status.IsTerminal()
}

// HasVoted reports whether the registrar already recorded a decision.
func (a *Application) HasVoted(registrar domain.ActorRef) bool {
	for _, ap := range a.Approvals {
		if ap.RegistrarRef == registrar {
			return true
		}
	}
	return false
}

// ApproveCount returns the number of approve decisions recorded.
func (a *Application) ApproveCount() int {
	n := 0
	for _, ap := range a.Approvals {
		if ap.Decision == DecisionApprove {
			n++
		}
	}
	return n
}

// CanRecordDecision checks that a registrar decision is legal for the current
// state. Use with ApplyDecision/ApplyRejection in store Execute callbacks.
func (a *Application) CanRecordDecision(registrar domain.ActorRef) error {
	if a.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "application is already %s", a.Status)
	}
	if registrar == a.ApplicantRef {
		return dErrors.New(dErrors.CodeSelfApproval, "registrars cannot decide their own applications")
	}
	if a.HasVoted(registrar) {
		return dErrors.New(dErrors.CodeDuplicateApproval, "registrar has already voted on this application")
	}
	return nil
}

// ApplyDecision appends an approval entry and moves a pending application into
// under-review. Call CanRecordDecision first.
func (a *Application) ApplyDecision(approval Approval) {
	a.Approvals = append(a.Approvals, approval)
	if a.Status == StatusPending {
		a.Status = StatusUnderReview
	}
	a.UpdatedAt = approval.Timestamp
}

// ApplyRejection moves the application to its rejected terminal state. A
// single reject is authoritative regardless of quorum configuration.
func (a *Application) ApplyRejection(reason string, now time.Time) {
	a.Status = StatusRejected
	a.RejectionReason = reason
	a.UpdatedAt = now
}

// CanReserveCertification checks the idempotency guard before a ledger
// submission. An existing in-progress reservation is not an error for the
// saga: the caller resumes with the reserved property ID.
func (a *Application) CanReserveCertification() error {
	if a.Status != StatusUnderReview {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot certify an application in state %s", a.Status)
	}
	if a.Certification.State == CertificationCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "application is already certified")
	}
	return nil
}

// ApplyCertificationReservation marks the saga in progress and pins the
// property ID so retries never allocate a second one.
func (a *Application) ApplyCertificationReservation(propertyID domain.PropertyID, now time.Time) {
	a.Certification = Certification{
		State:      CertificationInProgress,
		PropertyID: propertyID,
		ReservedAt: now,
	}
	a.UpdatedAt = now
}

// ApplyCertified binds the confirmed ledger transaction and completes the
// application lifecycle.
func (a *Application) ApplyCertified(propertyID domain.PropertyID, txHash string, now time.Time) {
	a.Status = StatusApproved
	a.PropertyID = propertyID
	a.LedgerTxHash = txHash
	a.Certification.State = CertificationCompleted
	a.Certification.PropertyID = propertyID
	a.UpdatedAt = now
}

// ClearCertificationReservation releases the reservation after a definitive
// ledger failure so the next quorum trigger starts a fresh submission.
func (a *Application) ClearCertificationReservation(now time.Time) {
	a.Certification = Certification{}
	a.UpdatedAt = now
}
