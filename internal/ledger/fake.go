package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"terrier/pkg/platform/sentinel"
)

// Fake is an in-memory ledger. It backs unit tests and the standalone
// (no LEDGER_URL) server mode, where it behaves as an always-confirming
// single-node chain.
type Fake struct {
	mu           sync.Mutex
	submissions  map[string]*fakeSubmission
	records      map[string]Record
	blockHeight  int
	confirmAfter int
	failNext     bool
	submitted    int
}

type fakeSubmission struct {
	payload  Payload
	polls    int
	failed   bool
	txHash   string
	blockRef string
}

func NewFake() *Fake {
	return &Fake{
		submissions: make(map[string]*fakeSubmission),
		records:     make(map[string]Record),
	}
}

// ConfirmAfter delays confirmation until the nth Status call. Zero confirms
// on the first poll.
func (f *Fake) ConfirmAfter(polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmAfter = polls
}

// FailNext makes the next submission resolve to StatusFailed.
func (f *Fake) FailNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

// SubmissionCount reports how many times Submit was called.
func (f *Fake) SubmissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// Corrupt overwrites the stored content hash for a property, simulating
// off-chain and on-chain state drifting apart.
func (f *Fake) Corrupt(propertyID, contentHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[propertyID]
	if !ok {
		return
	}
	rec.Payload.ContentHash = contentHash
	f.records[propertyID] = rec
}

func (f *Fake) Submit(_ context.Context, payload Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted++
	id := uuid.NewString()
	sum := sha256.Sum256([]byte(id + payload.PropertyID + payload.ContentHash))
	f.submissions[id] = &fakeSubmission{
		payload: payload,
		failed:  f.failNext,
		txHash:  hex.EncodeToString(sum[:]),
	}
	f.failNext = false
	return id, nil
}

func (f *Fake) Status(_ context.Context, submissionID string) (Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.submissions[submissionID]
	if !ok {
		return Submission{}, sentinel.ErrNotFound
	}
	if sub.failed {
		return Submission{ID: submissionID, Status: StatusFailed}, nil
	}

	sub.polls++
	if sub.polls <= f.confirmAfter {
		return Submission{ID: submissionID, Status: StatusPending}, nil
	}

	if sub.blockRef == "" {
		f.blockHeight++
		sub.blockRef = fmt.Sprintf("block-%06d", f.blockHeight)
		f.records[sub.payload.PropertyID] = Record{
			TxHash:   sub.txHash,
			BlockRef: sub.blockRef,
			Payload:  sub.payload,
		}
	}
	return Submission{
		ID:       submissionID,
		Status:   StatusConfirmed,
		TxHash:   sub.txHash,
		BlockRef: sub.blockRef,
	}, nil
}

func (f *Fake) Record(_ context.Context, propertyID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[propertyID]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}
