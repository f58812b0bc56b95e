package approval

import (
	"terrier/internal/application/models"
)

// Coordinator answers the single question "has this application met quorum
// under this policy". It is pure: no hidden counters, no store access, so
// re-evaluating the same state always yields the same answer.
type Coordinator struct {
	orderer SlotOrderer
}

// SlotOrderer decides how many recorded approvals count toward a sequential
// quorum. Pluggable because the ordering rule is a product decision; the
// default orders by registrar rank.
type SlotOrderer interface {
	// CountedApprovals returns how many approvals count toward quorum given
	// the configured sequence.
	CountedApprovals(approvals []models.Approval, sequence []string, required int) int
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{orderer: RankSlotOrderer{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*Coordinator)

// WithSlotOrderer swaps the sequential ordering rule.
func WithSlotOrderer(o SlotOrderer) Option {
	return func(c *Coordinator) { c.orderer = o }
}

// QuorumMet reports whether the application's recorded approvals satisfy the
// policy. A rejected or approved application never re-enters quorum checking;
// callers guard on status before asking.
func (c *Coordinator) QuorumMet(app *models.Application, settings Settings) bool {
	required := settings.EffectiveQuorum()
	if settings.Enabled && settings.ApprovalType == TypeSequential {
		return c.orderer.CountedApprovals(approvesOnly(app.Approvals), settings.RankSequence, required) >= required
	}
	return app.ApproveCount() >= required
}

// RankSlotOrderer fills sequence slots in order: slot i counts only when an
// unused approval carrying rank sequence[i] exists and every predecessor slot
// is filled. Out-of-order approvals stay recorded but dormant until their
// predecessors arrive, which forces a deterministic completion order.
type RankSlotOrderer struct{}

func (RankSlotOrderer) CountedApprovals(approvals []models.Approval, sequence []string, required int) int {
	if required > len(sequence) {
		required = len(sequence)
	}
	used := make([]bool, len(approvals))
	counted := 0
	for slot := 0; slot < required; slot++ {
		filled := false
		for i, a := range approvals {
			if used[i] || a.Rank != sequence[slot] {
				continue
			}
			used[i] = true
			filled = true
			break
		}
		if !filled {
			return counted
		}
		counted++
	}
	return counted
}

func approvesOnly(approvals []models.Approval) []models.Approval {
	out := make([]models.Approval, 0, len(approvals))
	for _, a := range approvals {
		if a.Decision == models.DecisionApprove {
			out = append(out, a)
		}
	}
	return out
}
