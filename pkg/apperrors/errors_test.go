package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(E(KindConflict, "taken")))
	assert.Equal(t, KindNotFound, KindOf(Ef(KindNotFound, "no donation %d", 7)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindOfWrapped(t *testing.T) {
	inner := E(KindSelfClaim, "own donation")
	outer := fmt.Errorf("claiming: %w", inner)
	assert.Equal(t, KindSelfClaim, KindOf(outer))
	assert.True(t, Is(outer, KindSelfClaim))
	assert.False(t, Is(outer, KindConflict))
}

func TestStorageWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage("update failed", cause)

	assert.Equal(t, KindStorage, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "update failed")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindString(t *testing.T) {
	require.Equal(t, "invalid_input", KindInvalidInput.String())
	require.Equal(t, "self_claim", KindSelfClaim.String())
	require.Equal(t, "unknown", Kind(99).String())
}
