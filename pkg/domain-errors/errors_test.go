package dErrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeNotFound, "application not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches wrapped code", func(t *testing.T) {
		inner := New(CodePropertyFrozen, "property is disputed")
		outer := Wrap(inner, CodeInternal, "transfer failed")
		assert.True(t, HasCode(outer, CodePropertyFrozen))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeLedgerTimeout, "confirm deadline exceeded"))
		assert.True(t, HasCode(err, CodeLedgerTimeout))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil passthrough", func(t *testing.T) {
		require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("preserves cause for errors.Is", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeLedgerUnavailable, "ledger submit failed")
		assert.ErrorIs(t, err, cause)
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeDuplicateApproval, CodeOf(New(CodeDuplicateApproval, "registrar already voted")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))

	outer := Wrap(New(CodeNotFound, "missing"), CodeInternal, "lookup failed")
	assert.Equal(t, CodeInternal, CodeOf(outer), "outermost code wins")
}
