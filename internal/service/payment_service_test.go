package service

import (
	"context"
	"testing"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	store *store.Store
	svc   *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	st, err := store.NewStore(testDatabaseURL, 3000)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &paymentFixture{
		store: st,
		svc:   NewPaymentService(st, NewWorkflowService(st, nil)),
	}
}

func (f *paymentFixture) seedPendingOrder(t *testing.T, orderNumber string, total decimal.Decimal) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:     orderNumber,
		UserID:          7000,
		Status:          models.StatusPending,
		Subtotal:        total,
		TotalAmount:     total,
		ShippingAddress: "1 Payment Street",
	}
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return f.store.CreateOrderTx(ctx, tx, order)
	}))
	return order
}

// Replaying the identical payment-completed webhook leaves the order
// PAID with exactly one reference-tagged history row.
func TestPaymentWebhookReplayIsIdempotent(t *testing.T) {
	t.Skip("Integration test - requires database")

	f := newPaymentFixture(t)
	ctx := context.Background()

	total := decimal.RequireFromString("120.00")
	order := f.seedPendingOrder(t, "ORD-20260901-WEBHOOK1", total)

	payment, err := f.svc.CreatePayment(ctx, order.ID, total)
	require.NoError(t, err)

	txID := "txn-replay-1"
	event := &models.PaymentWebhookEvent{
		PaymentID:     payment.ID,
		TransactionID: txID,
		Status:        models.PaymentStatusCompleted,
	}

	require.NoError(t, f.svc.HandleWebhook(ctx, event))
	require.NoError(t, f.svc.HandleWebhook(ctx, event))

	reloaded, err := f.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, reloaded.Status)

	history, err := f.store.GetStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "one transition, not one per delivery")
	require.NotNil(t, history[0].ExternalReference)
	assert.Contains(t, *history[0].ExternalReference, "PAYMENT_")
}

// A webhook replay must still move the order to PAID when the first
// delivery committed the payment but lost the order transition.
func TestPaymentWebhookReplayCompletesStrandedOrder(t *testing.T) {
	t.Skip("Integration test - requires database")

	f := newPaymentFixture(t)
	ctx := context.Background()

	total := decimal.RequireFromString("80.00")
	order := f.seedPendingOrder(t, "ORD-20260901-STRANDED", total)

	payment, err := f.svc.CreatePayment(ctx, order.ID, total)
	require.NoError(t, err)

	// The payment settles but the order transition never ran, as after
	// a lock timeout on the order row.
	now := time.Now().UTC()
	require.NoError(t, f.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := f.store.LockPaymentTx(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		locked.Status = models.PaymentStatusCompleted
		locked.PaidAt = &now
		return f.store.MarkPaymentCompletedTx(ctx, tx, locked)
	}))

	event := &models.PaymentWebhookEvent{
		PaymentID: payment.ID,
		Status:    models.PaymentStatusCompleted,
	}
	require.NoError(t, f.svc.HandleWebhook(ctx, event))

	reloaded, err := f.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, reloaded.Status)
}

func TestPaymentWebhookRejectsDuplicateTransactionID(t *testing.T) {
	t.Skip("Integration test - requires database")

	f := newPaymentFixture(t)
	ctx := context.Background()

	total := decimal.RequireFromString("60.00")
	first := f.seedPendingOrder(t, "ORD-20260901-DUPTXN1", total)
	second := f.seedPendingOrder(t, "ORD-20260901-DUPTXN2", total)

	p1, err := f.svc.CreatePayment(ctx, first.ID, total)
	require.NoError(t, err)
	p2, err := f.svc.CreatePayment(ctx, second.ID, total)
	require.NoError(t, err)

	txID := "txn-shared"
	require.NoError(t, f.svc.HandleWebhook(ctx, &models.PaymentWebhookEvent{
		PaymentID:     p1.ID,
		TransactionID: txID,
		Status:        models.PaymentStatusCompleted,
	}))

	err = f.svc.HandleWebhook(ctx, &models.PaymentWebhookEvent{
		PaymentID:     p2.ID,
		TransactionID: txID,
		Status:        models.PaymentStatusCompleted,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestCreatePaymentRejectsAmountMismatch(t *testing.T) {
	t.Skip("Integration test - requires database")

	f := newPaymentFixture(t)
	ctx := context.Background()

	order := f.seedPendingOrder(t, "ORD-20260901-MISMATCH", decimal.RequireFromString("50.00"))

	_, err := f.svc.CreatePayment(ctx, order.ID, decimal.RequireFromString("49.99"))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}
