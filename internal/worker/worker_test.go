package worker

import (
	"context"
	"errors"
	"testing"

	"commerce-core/internal/apperr"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropNonRetryable(t *testing.T) {
	w := &Worker{logger: util.GetLogger()}

	assert.NoError(t, w.dropNonRetryable(nil, "payment webhook", "e1"))
	assert.NoError(t, w.dropNonRetryable(apperr.Conflict("already applied"), "payment webhook", "e2"))
	assert.NoError(t, w.dropNonRetryable(apperr.NotFound("no such order"), "payment webhook", "e3"))
	assert.NoError(t, w.dropNonRetryable(apperr.Validation("bad status"), "payment webhook", "e4"))

	infra := errors.New("connection reset")
	assert.Equal(t, infra, w.dropNonRetryable(infra, "payment webhook", "e5"))
	assert.Error(t, w.dropNonRetryable(apperr.Concurrency("lock timeout"), "payment webhook", "e6"))
}

func TestHandleOnceMarksSeenOnlyAfterSuccess(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client, err := redisclient.NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	w := &Worker{redis: client, logger: util.GetLogger()}
	ctx := context.Background()
	const eventID = "evt-retryable-then-ok"

	// A retryable failure must leave the event unmarked so the broker
	// redelivery is processed instead of skipped.
	err = w.handleOnce(ctx, eventID, "payment webhook", func() error {
		return errors.New("database unavailable")
	})
	assert.Error(t, err)
	assert.False(t, w.wasSeen(ctx, eventID))

	calls := 0
	err = w.handleOnce(ctx, eventID, "payment webhook", func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, w.wasSeen(ctx, eventID))

	// Replay of a settled event never reaches the handler.
	err = w.handleOnce(ctx, eventID, "payment webhook", func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
