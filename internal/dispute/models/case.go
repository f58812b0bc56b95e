package models

import (
	"strings"
	"time"

	"terrier/pkg/domain"

	dErrors "terrier/pkg/domain-errors"
)

type CaseStatus string

const (
	CaseActive CaseStatus = "active"
	CaseClosed CaseStatus = "closed"
)

// Order is one court directive recorded against a case.
type Order struct {
	Text      string
	Timestamp time.Time
}

// Hearing is a scheduled court sitting.
type Hearing struct {
	Date  time.Time
	Venue string
}

// Case is the court-side record for a referred dispute, 1:1 with the active
// dispute. Closing a case is the only action that resolves its dispute and
// unfreezes the property.
type Case struct {
	ID         domain.CaseID
	DisputeID  domain.DisputeID
	PropertyID domain.PropertyID
	Status     CaseStatus
	Orders     []Order
	Hearings   []Hearing
	Resolution string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
}

func NewCase(id domain.CaseID, disputeID domain.DisputeID, propertyID domain.PropertyID, now time.Time) *Case {
	return &Case{
		ID:         id,
		DisputeID:  disputeID,
		PropertyID: propertyID,
		Status:     CaseActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
}

func (c *Case) CanAmend() error {
	if c.Status != CaseActive {
		return dErrors.New(dErrors.CodeInvalidState, "case is closed")
	}
	return nil
}

func (c *Case) ApplyOrder(text string, now time.Time) error {
	if err := c.CanAmend(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return dErrors.New(dErrors.CodeValidation, "order text is required")
	}
	c.Orders = append(c.Orders, Order{Text: text, Timestamp: now})
	c.UpdatedAt = now
	return nil
}

func (c *Case) ApplyHearing(date time.Time, venue string, now time.Time) error {
	if err := c.CanAmend(); err != nil {
		return err
	}
	if date.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "hearing date is required")
	}
	c.Hearings = append(c.Hearings, Hearing{Date: date, Venue: venue})
	c.UpdatedAt = now
	return nil
}

// ApplyClose seals the case. Resolution may be empty when the underlying
// dispute is dismissed rather than resolved.
func (c *Case) ApplyClose(resolution string, now time.Time) error {
	if err := c.CanAmend(); err != nil {
		return err
	}
	c.Status = CaseClosed
	c.Resolution = resolution
	c.UpdatedAt = now
	return nil
}
