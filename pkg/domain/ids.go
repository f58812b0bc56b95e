// Package domain holds shared value types used across the registry: typed
// identifiers, actor roles, and application kinds.
//
// Typed IDs prevent accidental cross-assignment (an ApplicationID can never be
// passed where a DisputeID is expected) and centralize parsing at trust
// boundaries. Construct via the Parse* functions when the value comes from
// external input; direct conversion is reserved for internal code that already
// holds a valid value.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "terrier/pkg/domain-errors"
)

// ApplicationID identifies a land-title application.
type ApplicationID uuid.UUID

// DisputeID identifies a dispute raised against a property.
type DisputeID uuid.UUID

// CaseID identifies a court case opened for a dispute.
type CaseID uuid.UUID

// NewApplicationID allocates a fresh application ID.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// NewDisputeID allocates a fresh dispute ID.
func NewDisputeID() DisputeID { return DisputeID(uuid.New()) }

// NewCaseID allocates a fresh case ID.
func NewCaseID() CaseID { return CaseID(uuid.New()) }

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id DisputeID) String() string     { return uuid.UUID(id).String() }
func (id CaseID) String() string        { return uuid.UUID(id).String() }

func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CaseID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// ParseApplicationID constructs an ApplicationID from external input.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

// ParseDisputeID constructs a DisputeID from external input.
func ParseDisputeID(s string) (DisputeID, error) {
	u, err := parseUUID(s, "dispute id")
	return DisputeID(u), err
}

// ParseCaseID constructs a CaseID from external input.
func ParseCaseID(s string) (CaseID, error) {
	u, err := parseUUID(s, "case id")
	return CaseID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", what)
	}
	return u, nil
}

// PropertyID is the ledger-addressable identifier of a property record.
// Format: "PROP-" followed by twelve lowercase hex characters.
type PropertyID string

const propertyIDPrefix = "PROP-"

// NewPropertyID allocates a property ID from fresh UUID entropy.
func NewPropertyID() PropertyID {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return PropertyID(propertyIDPrefix + raw[:12])
}

func (id PropertyID) String() string { return string(id) }

// IsZero reports whether the ID is unset.
func (id PropertyID) IsZero() bool { return id == "" }

// ParsePropertyID constructs a PropertyID from external input.
func ParsePropertyID(s string) (PropertyID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "property id cannot be empty")
	}
	if !strings.HasPrefix(s, propertyIDPrefix) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "property id must start with PROP-")
	}
	suffix := strings.TrimPrefix(s, propertyIDPrefix)
	if len(suffix) == 0 || len(suffix) > 32 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "property id has malformed suffix")
	}
	for _, r := range suffix {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "property id has malformed suffix")
		}
	}
	return PropertyID(s), nil
}

// ActorRef is an opaque reference to an authenticated actor (citizen,
// registrar, admin, or court official). The identity provider owns its shape;
// the registry only requires it to be non-empty.
type ActorRef string

func (a ActorRef) String() string { return string(a) }
func (a ActorRef) IsZero() bool   { return a == "" }

// ParseActorRef constructs an ActorRef from external input.
func ParseActorRef(s string) (ActorRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor ref cannot be empty")
	}
	if len(s) > 255 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor ref must be 255 characters or less")
	}
	return ActorRef(s), nil
}
