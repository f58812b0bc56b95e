// Package approval owns the quorum policy: how many registrar approvals an
// application needs and in what order they count.
package approval

import (
	"time"

	dErrors "terrier/pkg/domain-errors"
)

// Type selects how recorded approvals count toward quorum.
type Type string

const (
	// TypeParallel counts approve decisions regardless of order.
	TypeParallel Type = "parallel"
	// TypeSequential counts approvals only when they fill rank slots in the
	// configured order.
	TypeSequential Type = "sequential"
)

func (t Type) IsValid() bool { return t == TypeParallel || t == TypeSequential }

// ParseType constructs a Type from external input.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported approval type %q", s)
	}
	return t, nil
}

// DefaultRankSequence orders registrar ranks for sequential mode. The business
// rule behind "sequential" was never pinned down by the product owner, so the
// sequence is configuration, not code; this default covers the maximum quorum.
var DefaultRankSequence = []string{"junior", "senior", "chief", "registrar_general", "commissioner"}

// Settings is the process-wide approval policy. It is loaded fresh on every
// decision so an admin update applies to the next quorum check, never
// retroactively to approvals already recorded.
type Settings struct {
	Enabled           bool
	RequiredApprovals int
	ApprovalType      Type
	RankSequence      []string
	UpdatedAt         time.Time
	Version           int64
}

// Default returns the policy used before an admin ever touches it.
func Default() Settings {
	return Settings{
		Enabled:           true,
		RequiredApprovals: 2,
		ApprovalType:      TypeParallel,
		RankSequence:      append([]string(nil), DefaultRankSequence...),
	}
}

// Validate enforces the policy invariants: 1–5 required approvals and, for
// sequential mode, a rank sequence long enough to fill every slot.
func (s Settings) Validate() error {
	if s.RequiredApprovals < 1 || s.RequiredApprovals > 5 {
		return dErrors.New(dErrors.CodeValidation, "required approvals must be between 1 and 5")
	}
	if !s.ApprovalType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "approval type must be parallel or sequential")
	}
	if s.ApprovalType == TypeSequential && len(s.RankSequence) < s.RequiredApprovals {
		return dErrors.New(dErrors.CodeValidation, "rank sequence must cover every required approval slot")
	}
	return nil
}

// EffectiveQuorum is the approval count the current policy demands. A
// disabled policy degrades to single-registrar authority.
func (s Settings) EffectiveQuorum() int {
	if !s.Enabled {
		return 1
	}
	return s.RequiredApprovals
}
