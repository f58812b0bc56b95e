package certification

import (
	"context"
	"errors"
	"strings"

	"terrier/internal/ledger"
	propmodels "terrier/internal/property/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"

	dErrors "terrier/pkg/domain-errors"
)

// qrScheme prefixes the payload encoded into certificate QR codes.
const qrScheme = "terrier://verify/"

// QRPayload renders the scannable payload for a certified property.
func QRPayload(id domain.PropertyID) string {
	return qrScheme + id.String()
}

// Verification reason codes. Returned instead of errors: verification faces
// adversarial public input and must never throw for bad payloads.
const (
	ReasonMalformedPayload     = "malformed_payload"
	ReasonUnknownProperty      = "unknown_property"
	ReasonPropertyNotCertified = "property_not_certified"
	ReasonNoLedgerRecord       = "no_ledger_record"
	ReasonHashMismatch         = "hash_mismatch"
)

type VerifyResult struct {
	Valid    bool
	Reason   string
	Property *propmodels.Property
	OnChain  *ledger.Record
}

// Verify checks a property ID or QR payload against both the registry and
// the ledger. Valid means the off-chain record and the on-chain transaction
// agree on the property ID and the content hash of the core fields. Internal
// failures (store or ledger transport) still return an error; adversarial
// input never does.
func (s *Service) Verify(ctx context.Context, payload string) (VerifyResult, error) {
	id, ok := parseVerifyPayload(payload)
	if !ok {
		return s.invalid(ReasonMalformedPayload), nil
	}

	property, err := s.properties.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.invalid(ReasonUnknownProperty), nil
	}
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}

	if property.LedgerTx.Hash == "" {
		return s.invalid(ReasonPropertyNotCertified), nil
	}

	record, err := s.gateway.Lookup(ctx, id.String())
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.invalid(ReasonNoLedgerRecord), nil
	}
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger lookup failed")
	}

	computed := propmodels.ContentHash(property.OwnerRef, property.Address, property.AreaSqft, property.Value)
	if record.Payload.PropertyID != id.String() ||
		record.Payload.ContentHash != computed ||
		record.TxHash != property.LedgerTx.Hash {
		s.metrics.IncVerifyRequests(false)
		return VerifyResult{
			Reason:   ReasonHashMismatch,
			Property: property,
			OnChain:  &record,
		}, nil
	}

	s.metrics.IncVerifyRequests(true)
	return VerifyResult{
		Valid:    true,
		Property: property,
		OnChain:  &record,
	}, nil
}

func (s *Service) invalid(reason string) VerifyResult {
	s.metrics.IncVerifyRequests(false)
	return VerifyResult{Reason: reason}
}

// parseVerifyPayload accepts a bare property ID or a QR payload.
func parseVerifyPayload(payload string) (domain.PropertyID, bool) {
	raw := strings.TrimSpace(payload)
	raw = strings.TrimPrefix(raw, qrScheme)
	id, err := domain.ParsePropertyID(raw)
	if err != nil {
		return "", false
	}
	return id, true
}
