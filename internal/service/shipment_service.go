package service

import (
	"context"
	"strings"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ShipmentService tracks physical fulfillment. Carrier updates move a
// shipment forward only, and the milestones feed the order workflow:
// pickup marks the order SHIPPED, delivery marks it DELIVERED.
type ShipmentService struct {
	store    *store.Store
	workflow *WorkflowService
	logger   *zap.Logger
}

// NewShipmentService creates a new shipment service
func NewShipmentService(store *store.Store, workflow *WorkflowService) *ShipmentService {
	return &ShipmentService{
		store:    store,
		workflow: workflow,
		logger:   util.GetLogger(),
	}
}

// CreateForOrder hands a ready order to a carrier. The shipment starts
// picked up and the order transitions to SHIPPED under the tracking
// number reference.
func (ss *ShipmentService) CreateForOrder(ctx context.Context, orderID int64, trackingNumber, carrier string, merchantID int64) (*models.Shipment, error) {
	ctx, span := util.StartSpan(ctx, "ShipmentService.CreateForOrder")
	defer span.End()

	if strings.TrimSpace(trackingNumber) == "" {
		return nil, apperr.Validation("tracking number is required")
	}

	order, err := ss.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusReadyToShip {
		return nil, apperr.Conflict("order %s is not ready to ship", order.OrderNumber)
	}

	now := time.Now().UTC()
	shipment := &models.Shipment{
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
		Status:         models.ShipmentStatusPickedUp,
		ShippedAt:      &now,
	}
	if err := ss.store.CreateShipment(ctx, shipment); err != nil {
		return nil, err
	}

	util.ShipmentUpdatesTotal.WithLabelValues(shipment.Status).Inc()
	ss.logger.Info("Shipment created",
		zap.Int64("shipment_id", shipment.ID),
		zap.Int64("order_id", orderID),
		zap.String("tracking_number", trackingNumber))

	if err := ss.workflow.MarkAsShipped(ctx, orderID, trackingNumber, merchantID); err != nil {
		return nil, err
	}
	return shipment, nil
}

// GetShipment retrieves a shipment by id.
func (ss *ShipmentService) GetShipment(ctx context.Context, shipmentID int64) (*models.Shipment, error) {
	return ss.store.GetShipmentByID(ctx, shipmentID)
}

// UpdateStatus applies a carrier status update. Updates only move the
// shipment forward; failed is reachable from any non-delivered state.
// Replays of the current status are no-ops.
func (ss *ShipmentService) UpdateStatus(ctx context.Context, shipmentID int64, newStatus, notes string) error {
	ctx, span := util.StartSpan(ctx, "ShipmentService.UpdateStatus")
	defer span.End()

	if !models.ValidShipmentStatus(newStatus) {
		return apperr.Validation("unknown shipment status: %s", newStatus)
	}

	var orderID int64
	var trackingNumber string
	var applied bool

	err := ss.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		shipment, err := ss.store.LockShipmentTx(ctx, tx, shipmentID)
		if err != nil {
			return err
		}

		if shipment.Status == newStatus {
			return nil
		}
		if !CanAdvanceShipment(shipment.Status, newStatus) {
			return apperr.Conflict("shipment cannot move from %s to %s", shipment.Status, newStatus)
		}

		shipment.Status = newStatus
		if notes != "" {
			shipment.Notes = &notes
		}
		if newStatus == models.ShipmentStatusDelivered {
			now := time.Now().UTC()
			shipment.DeliveredAt = &now
		}
		if err := ss.store.UpdateShipmentTx(ctx, tx, shipment); err != nil {
			return err
		}

		orderID = shipment.OrderID
		trackingNumber = shipment.TrackingNumber
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	util.ShipmentUpdatesTotal.WithLabelValues(newStatus).Inc()
	ss.logger.Info("Shipment status updated",
		zap.Int64("shipment_id", shipmentID),
		zap.String("status", newStatus))

	// Carrier milestones drive the order forward; the tracking-number
	// reference absorbs replays and repeated milestones.
	switch newStatus {
	case models.ShipmentStatusPickedUp, models.ShipmentStatusInTransit:
		return ss.workflow.ChangeStatusWithReference(ctx, orderID, models.StatusShipped,
			"Carrier picked up the order", nil, models.RoleSystem, "TRACKING_"+trackingNumber)
	case models.ShipmentStatusDelivered:
		return ss.workflow.MarkAsDelivered(ctx, orderID, trackingNumber)
	}
	return nil
}

// CanAdvanceShipment reports whether a shipment may move from one
// carrier status to another. Progress is strictly forward; failed is
// reachable from anywhere except delivered.
func CanAdvanceShipment(from, to string) bool {
	fromRank := models.ShipmentRank(from)
	toRank := models.ShipmentRank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	if from == models.ShipmentStatusDelivered {
		return false
	}
	if to == models.ShipmentStatusFailed {
		return true
	}
	return toRank > fromRank
}
