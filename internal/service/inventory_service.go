package service

import (
	"context"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const availabilityCacheTTL = 30 * time.Second

// InventoryService owns the per-variant stock ledger. Reservations
// move quantity from available to reserved without touching on-hand;
// commit and release settle them exactly once.
type InventoryService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service. The redis
// client is optional; without it every availability read hits the
// database.
func NewInventoryService(store *store.Store, redis *redisclient.Client) *InventoryService {
	return &InventoryService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// GetAvailable returns on-hand minus reserved for a variant, serving
// from the cache when possible. Unknown variants degrade to zero stock
// rather than erroring.
func (is *InventoryService) GetAvailable(ctx context.Context, variantID int64) (int, error) {
	if is.redis != nil {
		available, hit, err := is.redis.GetAvailable(ctx, variantID)
		if err != nil {
			is.logger.Warn("Availability cache read failed",
				zap.Int64("variant_id", variantID),
				zap.Error(err))
		} else if hit {
			return available, nil
		}
	}

	inv, err := is.store.GetInventory(ctx, variantID)
	if err != nil {
		return 0, err
	}
	if inv == nil {
		return 0, nil
	}

	is.refreshCache(ctx, variantID, inv.AvailableQuantity())
	return inv.AvailableQuantity(), nil
}

// ReserveStock places a hold of quantity units on a variant under the
// caller's reservation key. Each key is single use; replaying one
// fails rather than moving stock twice.
func (is *InventoryService) ReserveStock(ctx context.Context, variantID int64, quantity int, reservationID string) (*models.InventoryReservation, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ReserveStock")
	defer span.End()

	if quantity <= 0 {
		return nil, apperr.Validation("reservation quantity must be positive")
	}
	if reservationID == "" {
		return nil, apperr.Validation("reservation id is required")
	}

	start := time.Now()
	defer func() {
		util.StockReservationLatency.Observe(time.Since(start).Seconds())
	}()

	var reservation *models.InventoryReservation
	err := is.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := is.store.LockReservationTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if existing != nil {
			util.StockReservationsFailed.WithLabelValues("duplicate_reservation").Inc()
			return apperr.Conflict("reservation %s already exists", reservationID)
		}

		inv, err := is.store.LockInventoryTx(ctx, tx, variantID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.NotFound("inventory for variant %d not found", variantID)
		}
		if inv.AvailableQuantity() < quantity {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return apperr.Conflict("insufficient stock for variant %d: available %d, requested %d",
				variantID, inv.AvailableQuantity(), quantity)
		}

		if err := is.store.UpdateInventoryCountsTx(ctx, tx,
			variantID, inv.QuantityOnHand, inv.QuantityReserved+quantity); err != nil {
			return err
		}

		res := &models.InventoryReservation{
			ReservationID: reservationID,
			VariantID:     variantID,
			Quantity:      quantity,
			Status:        models.ReservationStatusReserved,
		}
		if err := is.store.InsertReservationTx(ctx, tx, res); err != nil {
			return err
		}

		if inv.AvailableQuantity()-quantity <= inv.LowStockThreshold {
			is.logger.Warn("Variant is low on stock",
				zap.Int64("variant_id", variantID),
				zap.Int("available", inv.AvailableQuantity()-quantity),
				zap.Int("threshold", inv.LowStockThreshold))
		}

		reservation = res
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			util.StockReservationsFailed.WithLabelValues("internal").Inc()
		}
		return nil, err
	}

	util.StockReservationsTotal.Inc()
	is.invalidateCache(ctx, variantID)
	return reservation, nil
}

// GetReservation returns a reservation by its idempotency key.
func (is *InventoryService) GetReservation(ctx context.Context, reservationID string) (*models.InventoryReservation, error) {
	res, err := is.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperr.NotFound("reservation %s not found", reservationID)
	}
	return res, nil
}

// ReleaseStock returns a reservation's quantity to the available pool.
// A reservation settles exactly once: releasing one that already left
// RESERVED fails without touching the counters.
func (is *InventoryService) ReleaseStock(ctx context.Context, reservationID string) error {
	return is.settleReservation(ctx, reservationID, models.ReservationStatusReleased)
}

// CommitStock consumes a reservation: on-hand and reserved both drop
// by the reserved quantity. Fails if the reservation already settled
// or on-hand no longer covers it.
func (is *InventoryService) CommitStock(ctx context.Context, reservationID string) error {
	return is.settleReservation(ctx, reservationID, models.ReservationStatusCommitted)
}

func (is *InventoryService) settleReservation(ctx context.Context, reservationID, finalStatus string) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.SettleReservation")
	defer span.End()

	var variantID int64

	err := is.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := is.store.LockReservationTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res == nil {
			return apperr.NotFound("reservation %s not found", reservationID)
		}
		if res.Status != models.ReservationStatusReserved {
			return apperr.Conflict("reservation %s already settled as %s", reservationID, res.Status)
		}

		inv, err := is.store.LockInventoryTx(ctx, tx, res.VariantID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.NotFound("inventory for variant %d not found", res.VariantID)
		}
		if finalStatus == models.ReservationStatusCommitted && inv.QuantityOnHand < res.Quantity {
			return apperr.Conflict("on-hand stock %d cannot cover reservation %s for %d",
				inv.QuantityOnHand, reservationID, res.Quantity)
		}

		onHand, reserved := settleCounts(inv.QuantityOnHand, inv.QuantityReserved, res.Quantity, finalStatus)
		if err := is.store.UpdateInventoryCountsTx(ctx, tx, res.VariantID, onHand, reserved); err != nil {
			return err
		}

		moved, err := is.store.UpdateReservationStatusTx(ctx, tx, reservationID, finalStatus)
		if err != nil {
			return err
		}
		if !moved {
			return apperr.Concurrency("reservation %s settled concurrently", reservationID)
		}

		variantID = res.VariantID
		return nil
	})
	if err != nil {
		return err
	}

	is.logger.Info("Reservation settled",
		zap.String("reservation_id", reservationID),
		zap.String("status", finalStatus))
	is.invalidateCache(ctx, variantID)
	return nil
}

// settleCounts computes the ledger counters after a reservation leaves
// RESERVED. Release returns quantity to the pool; commit consumes it.
// Reserved is floored at zero so a drifted counter cannot go negative.
func settleCounts(onHand, reserved, quantity int, finalStatus string) (int, int) {
	reserved -= quantity
	if reserved < 0 {
		reserved = 0
	}
	if finalStatus == models.ReservationStatusCommitted {
		onHand -= quantity
	}
	return onHand, reserved
}

func (is *InventoryService) refreshCache(ctx context.Context, variantID int64, available int) {
	if is.redis == nil {
		return
	}
	if err := is.redis.SetAvailable(ctx, variantID, available, availabilityCacheTTL); err != nil {
		is.logger.Warn("Availability cache write failed",
			zap.Int64("variant_id", variantID),
			zap.Error(err))
	}
}

func (is *InventoryService) invalidateCache(ctx context.Context, variantID int64) {
	if is.redis == nil {
		return
	}
	if err := is.redis.InvalidateAvailable(ctx, variantID); err != nil {
		is.logger.Warn("Availability cache invalidation failed",
			zap.Int64("variant_id", variantID),
			zap.Error(err))
	}
}
