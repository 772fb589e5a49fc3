package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService records payment attempts and applies gateway webhook
// results. A completed payment drives the order to PAID through the
// workflow; the PAYMENT_<id> reference makes webhook replays no-ops.
type PaymentService struct {
	store    *store.Store
	workflow *WorkflowService
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store, workflow *WorkflowService) *PaymentService {
	return &PaymentService{
		store:    store,
		workflow: workflow,
		logger:   util.GetLogger(),
	}
}

// CreatePayment opens a pending payment attempt for an order. The
// amount must match the order total exactly.
func (ps *PaymentService) CreatePayment(ctx context.Context, orderID int64, amount decimal.Decimal) (*models.Payment, error) {
	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.StatusPending {
		return nil, apperr.Conflict("order %s is not awaiting payment", order.OrderNumber)
	}
	if !amount.Equal(order.TotalAmount) {
		return nil, apperr.Validation("payment amount %s does not match order total %s",
			amount.String(), order.TotalAmount.String())
	}

	payment := &models.Payment{
		OrderID: orderID,
		Amount:  amount,
		Status:  models.PaymentStatusPending,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	ps.logger.Info("Payment created",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", orderID),
		zap.String("amount", amount.String()))
	return payment, nil
}

// GetPayment retrieves a payment by id.
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	return ps.store.GetPaymentByID(ctx, paymentID)
}

// ListPayments returns all payment attempts against an order, newest
// first.
func (ps *PaymentService) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	if _, err := ps.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return ps.store.GetPaymentsByOrderID(ctx, orderID)
}

// HandleWebhook applies a gateway result to a payment. Delivery is at
// least once: replays of a settled payment succeed without effect.
func (ps *PaymentService) HandleWebhook(ctx context.Context, event *models.PaymentWebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	status := strings.ToUpper(event.Status)
	util.PaymentWebhooksTotal.WithLabelValues(status).Inc()

	switch status {
	case models.PaymentStatusCompleted:
		return ps.applyCompleted(ctx, event)
	case models.PaymentStatusFailed:
		return ps.applyFailed(ctx, event)
	default:
		return apperr.Validation("unknown payment webhook status: %s", event.Status)
	}
}

func (ps *PaymentService) applyCompleted(ctx context.Context, event *models.PaymentWebhookEvent) error {
	var orderID int64

	err := ps.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		payment, err := ps.store.LockPaymentTx(ctx, tx, event.PaymentID)
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusCompleted {
			// Replayed webhook for an already settled payment. The
			// order transition below still runs: the first attempt may
			// have committed the payment and then lost the order lock,
			// leaving the PAID transition to a replay.
			orderID = payment.OrderID
			return nil
		}
		if payment.Status == models.PaymentStatusFailed {
			return apperr.Conflict("payment %d already failed", payment.ID)
		}

		if event.TransactionID != "" {
			duplicate, err := ps.store.TransactionIDExistsTx(ctx, tx, event.TransactionID, payment.ID)
			if err != nil {
				return err
			}
			if duplicate {
				return apperr.Conflict("transaction %s already recorded", event.TransactionID)
			}
		}

		paidAt := event.PaidAt
		if paidAt == nil {
			now := time.Now().UTC()
			paidAt = &now
		}
		payment.Status = models.PaymentStatusCompleted
		payment.PaidAt = paidAt
		if event.TransactionID != "" {
			payment.TransactionID = &event.TransactionID
		}
		if err := ps.store.MarkPaymentCompletedTx(ctx, tx, payment); err != nil {
			return err
		}

		orderID = payment.OrderID
		return nil
	})
	if err != nil {
		return err
	}
	if orderID == 0 {
		return nil
	}

	ps.logger.Info("Payment completed",
		zap.Int64("payment_id", event.PaymentID),
		zap.Int64("order_id", orderID))

	// Reference-tagged so a replay that raced past the payment check
	// still cannot move the order twice.
	return ps.workflow.MarkOrderAsPaid(ctx, orderID, strconv.FormatInt(event.PaymentID, 10))
}

func (ps *PaymentService) applyFailed(ctx context.Context, event *models.PaymentWebhookEvent) error {
	return ps.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		payment, err := ps.store.LockPaymentTx(ctx, tx, event.PaymentID)
		if err != nil {
			return err
		}

		if payment.Status != models.PaymentStatusPending {
			// Settled payments are immutable; replays succeed quietly.
			return nil
		}

		reason := "Payment rejected by gateway"
		if err := ps.store.MarkPaymentFailedTx(ctx, tx, payment.ID, reason); err != nil {
			return err
		}

		ps.logger.Warn("Payment failed",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("order_id", payment.OrderID))
		return nil
	})
}
