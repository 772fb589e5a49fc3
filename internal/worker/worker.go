package worker

import (
	"context"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/service"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

const eventDedupTTL = 24 * time.Hour

// Worker consumes external payment and shipment events from Kafka and
// applies them to orders. Delivery is at least once; the services'
// reference-tagged transitions keep replays harmless, and Redis
// short-circuits recently seen event ids before they reach the
// database.
type Worker struct {
	paymentConsumer  *broker.Consumer
	shipmentConsumer *broker.Consumer
	payments         *service.PaymentService
	shipments        *service.ShipmentService
	redis            *redisclient.Client
	logger           *zap.Logger
}

// NewWorker creates a new worker
func NewWorker(paymentConsumer, shipmentConsumer *broker.Consumer, payments *service.PaymentService, shipments *service.ShipmentService, redis *redisclient.Client) *Worker {
	return &Worker{
		paymentConsumer:  paymentConsumer,
		shipmentConsumer: shipmentConsumer,
		payments:         payments,
		shipments:        shipments,
		redis:            redis,
		logger:           util.GetLogger(),
	}
}

// Start runs both consumers until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go w.consumePayments(ctx)
	go w.consumeShipments(ctx)
}

func (w *Worker) consumePayments(ctx context.Context) {
	handler := broker.NewEventHandler()
	handler.OnPaymentWebhook(func(ctx context.Context, event *models.PaymentWebhookEvent) error {
		return w.handleOnce(ctx, event.EventID, "payment webhook", func() error {
			return w.payments.HandleWebhook(ctx, event)
		})
	})

	if err := w.paymentConsumer.StartConsuming(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
		w.logger.Error("Payment consumer stopped", zap.Error(err))
	}
}

func (w *Worker) consumeShipments(ctx context.Context) {
	handler := broker.NewEventHandler()
	handler.OnShipmentStatus(func(ctx context.Context, event *models.ShipmentStatusEvent) error {
		return w.handleOnce(ctx, event.EventID, "shipment status", func() error {
			return w.shipments.UpdateStatus(ctx, event.ShipmentID, event.NewStatus, event.Notes)
		})
	})

	if err := w.shipmentConsumer.StartConsuming(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
		w.logger.Error("Shipment consumer stopped", zap.Error(err))
	}
}

// handleOnce runs fn unless the event id was already processed. The
// seen marker is written only after fn settles the event, so a
// retryable failure leaves the id unmarked and the redelivery is
// processed, not skipped.
func (w *Worker) handleOnce(ctx context.Context, eventID, kind string, fn func() error) error {
	if w.wasSeen(ctx, eventID) {
		return nil
	}
	if err := w.dropNonRetryable(fn(), kind, eventID); err != nil {
		return err
	}
	w.markSeen(ctx, eventID)
	return nil
}

// wasSeen reports whether this event id was processed recently.
// Best-effort: on any cache failure the event is processed anyway and
// the database-level idempotency takes over.
func (w *Worker) wasSeen(ctx context.Context, eventID string) bool {
	if w.redis == nil || eventID == "" {
		return false
	}
	seen, err := w.redis.EventSeen(ctx, eventID)
	if err != nil {
		w.logger.Warn("Event dedup check failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return seen
}

func (w *Worker) markSeen(ctx context.Context, eventID string) {
	if w.redis == nil || eventID == "" {
		return
	}
	if _, err := w.redis.MarkEventSeen(ctx, eventID, eventDedupTTL); err != nil {
		w.logger.Warn("Event dedup mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// dropNonRetryable commits messages whose failure will not change on
// redelivery. Only infrastructure errors propagate back to the
// consumer for retry.
func (w *Worker) dropNonRetryable(err error, kind, eventID string) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict:
		w.logger.Warn("Dropping unprocessable event",
			zap.String("kind", kind),
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil
	default:
		return err
	}
}
