package service

import (
	"context"
	"strings"

	"commerce-core/internal/apperr"
	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WorkflowService governs the order status state machine. Every
// transition is checked against the adjacency table and recorded in
// the append-only history, atomically with the status update.
type WorkflowService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(store *store.Store, eventPublisher *broker.EventPublisher) *WorkflowService {
	return &WorkflowService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// transition carries everything recorded about one status change.
type transition struct {
	newStatus         models.OrderStatus
	reason            string
	actorID           *int64
	actorRole         string
	externalReference *string
	notes             *string
}

// ChangeStatus moves an order to newStatus on behalf of an actor.
// Illegal transitions fail with a Conflict and leave the order and its
// history untouched.
func (ws *WorkflowService) ChangeStatus(ctx context.Context, orderID int64, newStatus models.OrderStatus, reason string, actorID *int64, actorRole string) error {
	return ws.applyTransition(ctx, orderID, transition{
		newStatus: newStatus,
		reason:    reason,
		actorID:   actorID,
		actorRole: actorRole,
	})
}

// ChangeStatusAutomatically is the system-actor variant used for
// payment- and shipment-triggered transitions.
func (ws *WorkflowService) ChangeStatusAutomatically(ctx context.Context, orderID int64, newStatus models.OrderStatus, reason string) error {
	return ws.applyTransition(ctx, orderID, transition{
		newStatus: newStatus,
		reason:    reason,
		actorRole: models.RoleSystem,
	})
}

// ChangeStatusWithReference additionally tags the history row with an
// external reference (e.g. PAYMENT_<id>, TRACKING_<number>). Replays
// carrying a reference already recorded for the order are no-ops.
func (ws *WorkflowService) ChangeStatusWithReference(ctx context.Context, orderID int64, newStatus models.OrderStatus, reason string, actorID *int64, actorRole, externalReference string) error {
	return ws.applyTransition(ctx, orderID, transition{
		newStatus:         newStatus,
		reason:            reason,
		actorID:           actorID,
		actorRole:         actorRole,
		externalReference: &externalReference,
	})
}

// applyTransition performs the per-order locked read-check-write and
// history append in one transaction, then publishes the change.
func (ws *WorkflowService) applyTransition(ctx context.Context, orderID int64, t transition) error {
	ctx, span := util.StartSpan(ctx, "WorkflowService.ChangeStatus")
	defer span.End()

	var previous models.OrderStatus
	var applied bool

	err := ws.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := ws.store.LockOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if t.externalReference != nil {
			seen, err := ws.store.HasHistoryWithReferenceTx(ctx, tx, orderID, *t.externalReference)
			if err != nil {
				return err
			}
			if seen {
				// Replay of an already-applied external event.
				return nil
			}
		}

		if !order.Status.CanTransitionTo(t.newStatus) {
			util.StatusTransitionsRejected.WithLabelValues(string(order.Status), string(t.newStatus)).Inc()
			return apperr.Conflict("invalid status transition: %s -> %s", order.Status, t.newStatus)
		}

		previous = order.Status
		if err := ws.store.UpdateOrderStatusTx(ctx, tx, orderID, t.newStatus); err != nil {
			return err
		}

		history := &models.OrderStatusHistory{
			OrderID:           orderID,
			PreviousStatus:    previous,
			NewStatus:         t.newStatus,
			Reason:            t.reason,
			ChangedBy:         t.actorID,
			ChangedByRole:     t.actorRole,
			ExternalReference: t.externalReference,
			Notes:             t.notes,
		}
		if err := ws.store.InsertStatusHistoryTx(ctx, tx, history); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	util.StatusTransitionsTotal.WithLabelValues(string(previous), string(t.newStatus)).Inc()
	ws.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(t.newStatus)),
		zap.String("role", t.actorRole))

	ws.publishStatusChanged(ctx, orderID, previous, t)
	return nil
}

func (ws *WorkflowService) publishStatusChanged(ctx context.Context, orderID int64, previous models.OrderStatus, t transition) {
	if ws.eventPublisher == nil {
		return
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        orderID,
		PreviousStatus: previous,
		NewStatus:      t.newStatus,
		Reason:         t.reason,
		ChangedByRole:  t.actorRole,
	}
	if t.externalReference != nil {
		event.ExternalReference = *t.externalReference
	}

	if err := ws.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		ws.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}

// AllowedTransitions returns the legal next statuses for an order.
func (ws *WorkflowService) AllowedTransitions(ctx context.Context, orderID int64) ([]models.OrderStatus, error) {
	order, err := ws.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.Status.AllowedTransitions(), nil
}

// CanTransitionTo reports whether the order may move to newStatus.
func (ws *WorkflowService) CanTransitionTo(ctx context.Context, orderID int64, newStatus models.OrderStatus) (bool, error) {
	order, err := ws.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Status.CanTransitionTo(newStatus), nil
}

// StatusHistory returns the full transition log, newest first.
func (ws *WorkflowService) StatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	if _, err := ws.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return ws.store.GetStatusHistory(ctx, orderID)
}

// LatestStatusChange returns the most recent transition, or nil.
func (ws *WorkflowService) LatestStatusChange(ctx context.Context, orderID int64) (*models.OrderStatusHistory, error) {
	if _, err := ws.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return ws.store.GetLatestStatusChange(ctx, orderID)
}

// AttachNotes adds free-text notes to the most recent transition of an
// order. History rows are otherwise immutable.
func (ws *WorkflowService) AttachNotes(ctx context.Context, orderID int64, notes string) error {
	if strings.TrimSpace(notes) == "" {
		return apperr.Validation("notes must not be empty")
	}

	return ws.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := ws.store.LockOrderTx(ctx, tx, orderID); err != nil {
			return err
		}

		latest, err := ws.store.GetLatestStatusChangeTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if latest == nil {
			return apperr.Conflict("order %d has no recorded transitions", orderID)
		}
		return ws.store.AttachNotesToHistoryTx(ctx, tx, latest.ID, notes)
	})
}

// MarkOrderAsPaid transitions an order to PAID on behalf of the
// payment system, tagged with the payment reference so webhook replays
// are idempotent.
func (ws *WorkflowService) MarkOrderAsPaid(ctx context.Context, orderID int64, paymentRef string) error {
	return ws.ChangeStatusWithReference(ctx, orderID, models.StatusPaid,
		"Payment completed", nil, models.RoleSystem, "PAYMENT_"+paymentRef)
}

// ConfirmOrder confirms an order on behalf of a merchant, optionally
// attaching notes to the recorded transition.
func (ws *WorkflowService) ConfirmOrder(ctx context.Context, orderID, merchantID int64, notes string) error {
	t := transition{
		newStatus: models.StatusConfirmed,
		reason:    "Order confirmed by merchant",
		actorID:   &merchantID,
		actorRole: models.RoleMerchant,
	}
	if notes != "" {
		t.notes = &notes
	}
	return ws.applyTransition(ctx, orderID, t)
}

// MarkReadyToShip marks an order's items as prepared for shipment.
func (ws *WorkflowService) MarkReadyToShip(ctx context.Context, orderID, merchantID int64) error {
	return ws.ChangeStatus(ctx, orderID, models.StatusReadyToShip,
		"Items prepared and ready for shipment", &merchantID, models.RoleMerchant)
}

// MarkAsShipped marks an order shipped, tagged with the tracking
// number.
func (ws *WorkflowService) MarkAsShipped(ctx context.Context, orderID int64, trackingNumber string, merchantID int64) error {
	return ws.ChangeStatusWithReference(ctx, orderID, models.StatusShipped,
		"Order shipped", &merchantID, models.RoleMerchant, "TRACKING_"+trackingNumber)
}

// MarkAsDelivered marks an order delivered, tagged with the delivery
// proof reference.
func (ws *WorkflowService) MarkAsDelivered(ctx context.Context, orderID int64, deliveryProof string) error {
	return ws.ChangeStatusWithReference(ctx, orderID, models.StatusDelivered,
		"Order delivered to customer", nil, models.RoleSystem, "DELIVERY_"+deliveryProof)
}

// CompleteOrder completes a delivered order on behalf of the customer.
func (ws *WorkflowService) CompleteOrder(ctx context.Context, orderID, customerID int64) error {
	return ws.ChangeStatus(ctx, orderID, models.StatusCompleted,
		"Order completed successfully", &customerID, models.RoleCustomer)
}

// CancelOrder cancels an order.
func (ws *WorkflowService) CancelOrder(ctx context.Context, orderID int64, reason string, actorID *int64, actorRole string) error {
	return ws.ChangeStatus(ctx, orderID, models.StatusCancelled, reason, actorID, actorRole)
}

// PutOrderOnHold suspends an order.
func (ws *WorkflowService) PutOrderOnHold(ctx context.Context, orderID int64, reason string, adminID int64) error {
	return ws.ChangeStatus(ctx, orderID, models.StatusOnHold, reason, &adminID, models.RoleAdmin)
}

// ResumeOrderFromHold resumes a held order. The status it resumes to
// is re-derived from the order's current payment facts rather than
// restored from history.
func (ws *WorkflowService) ResumeOrderFromHold(ctx context.Context, orderID int64, resumeReason string, adminID int64) error {
	order, err := ws.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusOnHold {
		return apperr.Conflict("order %d is not on hold", orderID)
	}

	paid, err := ws.completedPaymentTotal(ctx, orderID)
	if err != nil {
		return err
	}

	resumeTo := ResumeStatusFromHold(paid, order.TotalAmount)
	return ws.ChangeStatus(ctx, orderID, resumeTo, resumeReason, &adminID, models.RoleAdmin)
}

func (ws *WorkflowService) completedPaymentTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	payments, err := ws.store.GetPaymentsByOrderID(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}

	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == models.PaymentStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	return paid, nil
}

// ResumeStatusFromHold decides where a held order resumes based on how
// much of its total has been paid: nothing paid resumes to PENDING,
// fully paid to CONFIRMED, partially paid to PROCESSING.
func ResumeStatusFromHold(paidAmount, totalAmount decimal.Decimal) models.OrderStatus {
	switch {
	case paidAmount.LessThanOrEqual(decimal.Zero):
		return models.StatusPending
	case paidAmount.GreaterThanOrEqual(totalAmount):
		return models.StatusConfirmed
	default:
		return models.StatusProcessing
	}
}

// ValidateWorkflow replays an order's history and checks every
// recorded transition was legal and the current status matches the
// newest entry. Diagnostic only: it returns false on inconsistency and
// never blocks operations.
func (ws *WorkflowService) ValidateWorkflow(ctx context.Context, orderID int64) bool {
	order, err := ws.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return false
	}

	history, err := ws.store.GetStatusHistory(ctx, orderID)
	if err != nil {
		return false
	}

	for _, h := range history {
		if !h.PreviousStatus.CanTransitionTo(h.NewStatus) {
			ws.logger.Error("Invalid transition found in order history",
				zap.Int64("order_id", orderID),
				zap.String("from", string(h.PreviousStatus)),
				zap.String("to", string(h.NewStatus)))
			return false
		}
	}

	if len(history) > 0 {
		latest := history[0]
		if order.Status != latest.NewStatus {
			ws.logger.Error("Order status does not match latest history entry",
				zap.Int64("order_id", orderID),
				zap.String("status", string(order.Status)),
				zap.String("latest", string(latest.NewStatus)))
			return false
		}
	}

	return true
}
