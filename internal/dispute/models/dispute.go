// Package models holds the Dispute and Case aggregates backing the
// litigation workflow over certified titles.
package models

import (
	"strings"
	"time"

	"terrier/pkg/domain"

	dErrors "terrier/pkg/domain-errors"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusInCourt   Status = "in-court"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Active statuses keep the property frozen and block a second dispute.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusInCourt
}

// Timeline event types.
const (
	EventRaised    = "raised"
	EventReferred  = "referred"
	EventOrder     = "order"
	EventHearing   = "hearing"
	EventResolved  = "resolved"
	EventDismissed = "dismissed"
)

// TimelineEvent is one append-only entry in a dispute's history.
type TimelineEvent struct {
	Type      string
	Message   string
	Timestamp time.Time
	TxRef     string
}

// Dispute is raised against a certified property and freezes it while
// active. At most one active dispute exists per property; the store enforces
// that with a uniqueness constraint, not application-level locking.
type Dispute struct {
	ID         domain.DisputeID
	PropertyID domain.PropertyID
	RaisedBy   domain.ActorRef
	Reason     string
	Status     Status
	Timeline   []TimelineEvent
	CaseRef    domain.CaseID
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
}

func New(id domain.DisputeID, propertyID domain.PropertyID, raisedBy domain.ActorRef, reason string, now time.Time) (*Dispute, error) {
	if propertyID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "property id is required")
	}
	if raisedBy.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "raised-by actor is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "dispute reason is required")
	}
	d := &Dispute{
		ID:         id,
		PropertyID: propertyID,
		RaisedBy:   raisedBy,
		Reason:     reason,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	d.appendEvent(EventRaised, reason, now, "")
	return d, nil
}

func (d *Dispute) IsActive() bool {
	return d.Status.IsActive()
}

func (d *Dispute) CanRefer() error {
	if d.Status != StatusOpen {
		return dErrors.Newf(dErrors.CodeInvalidState, "only an open dispute can be referred to court, current state is %s", d.Status)
	}
	return nil
}

// ApplyReferral binds the court case and moves the dispute in-court.
func (d *Dispute) ApplyReferral(caseID domain.CaseID, now time.Time) {
	d.Status = StatusInCourt
	d.CaseRef = caseID
	d.appendEvent(EventReferred, "referred to court", now, "")
	d.UpdatedAt = now
}

func (d *Dispute) CanResolve() error {
	if d.Status != StatusInCourt {
		return dErrors.Newf(dErrors.CodeInvalidState, "only an in-court dispute can be resolved, current state is %s", d.Status)
	}
	return nil
}

// ApplyResolution closes the dispute with the court's resolution summary.
// Irreversible; reopening requires a new dispute.
func (d *Dispute) ApplyResolution(summary string, now time.Time) {
	d.Status = StatusResolved
	d.appendEvent(EventResolved, summary, now, "")
	d.UpdatedAt = now
}

func (d *Dispute) CanDismiss() error {
	if !d.IsActive() {
		return dErrors.Newf(dErrors.CodeInvalidState, "dispute is already %s", d.Status)
	}
	return nil
}

// ApplyDismissal terminates an active dispute without a court resolution.
func (d *Dispute) ApplyDismissal(now time.Time) {
	d.Status = StatusDismissed
	d.appendEvent(EventDismissed, "dispute dismissed", now, "")
	d.UpdatedAt = now
}

// RecordEvent appends an informational timeline entry for court activity.
func (d *Dispute) RecordEvent(eventType, message string, now time.Time) {
	d.appendEvent(eventType, message, now, "")
	d.UpdatedAt = now
}

func (d *Dispute) appendEvent(eventType, message string, now time.Time, txRef string) {
	d.Timeline = append(d.Timeline, TimelineEvent{
		Type:      eventType,
		Message:   message,
		Timestamp: now,
		TxRef:     txRef,
	})
}
