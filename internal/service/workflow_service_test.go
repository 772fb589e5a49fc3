package service

import (
	"context"
	"testing"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeStatusFromHold(t *testing.T) {
	total := decimal.NewFromInt(100)

	assert.Equal(t, models.StatusPending, ResumeStatusFromHold(decimal.Zero, total))
	assert.Equal(t, models.StatusPending, ResumeStatusFromHold(decimal.NewFromInt(-5), total))
	assert.Equal(t, models.StatusConfirmed, ResumeStatusFromHold(decimal.NewFromInt(100), total))
	assert.Equal(t, models.StatusConfirmed, ResumeStatusFromHold(decimal.NewFromInt(150), total))
	assert.Equal(t, models.StatusProcessing, ResumeStatusFromHold(decimal.NewFromInt(40), total))
}

func TestResumeStatusFromHoldExactCents(t *testing.T) {
	total := decimal.RequireFromString("99.99")

	assert.Equal(t, models.StatusProcessing, ResumeStatusFromHold(decimal.RequireFromString("99.98"), total))
	assert.Equal(t, models.StatusConfirmed, ResumeStatusFromHold(decimal.RequireFromString("99.99"), total))
}

func TestAttachNotesRejectsBlankNotes(t *testing.T) {
	ws := NewWorkflowService(nil, nil)

	err := ws.AttachNotes(context.Background(), 1, "   ")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

// Notes land on the latest history row, read under the same order lock
// that guards the transition itself.
func TestAttachNotesTargetsLatestTransition(t *testing.T) {
	t.Skip("Integration test - requires database")

	st, err := store.NewStore(testDatabaseURL, 3000)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ws := NewWorkflowService(st, nil)
	ctx := context.Background()

	order := &models.Order{
		OrderNumber:     "ORD-20260901-NOTES001",
		UserID:          8000,
		Status:          models.StatusPending,
		TotalAmount:     decimal.NewFromInt(25),
		ShippingAddress: "1 Notes Street",
	}
	require.NoError(t, st.WithTx(ctx, func(tx *sqlx.Tx) error {
		return st.CreateOrderTx(ctx, tx, order)
	}))

	err = ws.AttachNotes(ctx, order.ID, "too early")
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err), "no transitions to annotate yet")

	require.NoError(t, ws.MarkOrderAsPaid(ctx, order.ID, "4242"))
	require.NoError(t, ws.AttachNotes(ctx, order.ID, "verified manually"))

	latest, err := st.GetLatestStatusChange(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.Notes)
	assert.Equal(t, "verified manually", *latest.Notes)
	assert.Equal(t, models.StatusPaid, latest.NewStatus)
}
