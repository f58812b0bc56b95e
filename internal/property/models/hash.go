package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"terrier/pkg/domain"
)

// ContentHash fingerprints a property's core fields. The same hash is
// written into the ledger payload, so verification can detect any drift
// between the off-chain record and the on-chain transaction.
func ContentHash(owner domain.ActorRef, address string, areaSqft float64, value int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%g|%d", owner, address, areaSqft, value))
	return hex.EncodeToString(sum[:])
}
