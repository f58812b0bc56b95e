package domain

import dErrors "terrier/pkg/domain-errors"

// ApplicationKind labels what a land-title application asks for. Kind decides
// whether certification allocates a new property or mutates an existing one.
type ApplicationKind string

const (
	// KindIssue requests a first-time title for an unregistered property.
	KindIssue ApplicationKind = "issue"
	// KindTransfer requests an ownership change on a certified property.
	KindTransfer ApplicationKind = "transfer"
	// KindCorrection requests a correction of recorded property facts.
	KindCorrection ApplicationKind = "correction"
)

var validKinds = map[ApplicationKind]bool{
	KindIssue:      true,
	KindTransfer:   true,
	KindCorrection: true,
}

func (k ApplicationKind) IsValid() bool { return validKinds[k] }

func (k ApplicationKind) String() string { return string(k) }

// RequiresExistingProperty reports whether applications of this kind must
// reference a certified property at submission time.
func (k ApplicationKind) RequiresExistingProperty() bool {
	return k == KindTransfer || k == KindCorrection
}

// ParseApplicationKind constructs an ApplicationKind from external input.
func ParseApplicationKind(s string) (ApplicationKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "application kind cannot be empty")
	}
	k := ApplicationKind(s)
	if !k.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported application kind %q", s)
	}
	return k, nil
}
