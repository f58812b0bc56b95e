// Package models holds the Property aggregate. A Property only comes into
// existence through certification, so every record here is ledger-bound.
package models

import (
	"time"

	"terrier/pkg/domain"

	dErrors "terrier/pkg/domain-errors"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusDisputed Status = "disputed"
)

// LedgerTx is the on-chain anchor for a property's latest certification or
// transfer event.
type LedgerTx struct {
	Hash     string
	BlockRef string
}

type Property struct {
	PropertyID   domain.PropertyID
	OwnerRef     domain.ActorRef
	Address      string
	AreaSqft     float64
	Value        int64
	Status       Status
	ContentHash  string
	LedgerTx     LedgerTx
	DocumentRefs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

func New(id domain.PropertyID, owner domain.ActorRef, address string, areaSqft float64, value int64, hash string, tx LedgerTx, docs []string, now time.Time) *Property {
	return &Property{
		PropertyID:   id,
		OwnerRef:     owner,
		Address:      address,
		AreaSqft:     areaSqft,
		Value:        value,
		Status:       StatusApproved,
		ContentHash:  hash,
		LedgerTx:     tx,
		DocumentRefs: docs,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}

func (p *Property) IsFrozen() bool {
	return p.Status == StatusDisputed
}

// ApplyFreeze marks the property disputed. Freezing an already-frozen
// property is a no-op so dispute retries stay safe.
func (p *Property) ApplyFreeze(now time.Time) {
	if p.Status == StatusDisputed {
		return
	}
	p.Status = StatusDisputed
	p.UpdatedAt = now
}

func (p *Property) ApplyUnfreeze(now time.Time) {
	if p.Status != StatusDisputed {
		return
	}
	p.Status = StatusApproved
	p.UpdatedAt = now
}

func (p *Property) CanTransfer() error {
	if p.Status == StatusDisputed {
		return dErrors.New(dErrors.CodePropertyFrozen, "property is under dispute and cannot be transferred")
	}
	return nil
}

// ApplyTransfer records the new owner and value along with the ledger
// transaction the transfer was anchored with.
func (p *Property) ApplyTransfer(newOwner domain.ActorRef, newValue int64, hash string, tx LedgerTx, now time.Time) {
	p.OwnerRef = newOwner
	if newValue > 0 {
		p.Value = newValue
	}
	p.ContentHash = hash
	p.LedgerTx = tx
	p.UpdatedAt = now
}

// BindLedgerTx sets the ledger anchor for a certification event. An existing
// anchor with a different hash is never overwritten; certification retries
// must converge on the first confirmed transaction.
func (p *Property) BindLedgerTx(hash string, tx LedgerTx) error {
	if p.LedgerTx.Hash != "" && p.LedgerTx.Hash != tx.Hash {
		return dErrors.New(dErrors.CodeInvariantViolation, "property is already bound to a different ledger transaction")
	}
	p.ContentHash = hash
	p.LedgerTx = tx
	return nil
}
