package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(Conflict("insufficient stock: %s", "Widget")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("cart not found")))
	assert.Equal(t, KindValidation, KindOf(Validation("shippingAddress is required")))
	assert.Equal(t, KindConcurrency, KindOf(Concurrency("lock timeout")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := Conflict("cart is empty")
	wrapped := fmt.Errorf("checkout failed: %w", err)

	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := Wrap(KindConcurrency, cause, "checkout contention")

	assert.True(t, IsConcurrency(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "checkout contention")
	assert.Contains(t, err.Error(), "deadlock")
}
