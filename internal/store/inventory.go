package store

import (
	"context"
	"database/sql"

	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetInventory retrieves the ledger row for a variant, or nil if the
// variant has no inventory record.
func (s *Store) GetInventory(ctx context.Context, variantID int64) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv,
		"SELECT * FROM inventories WHERE variant_id = $1", variantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &inv, nil
}

// LockInventoryTx acquires an exclusive row lock on a variant's ledger
// row so reserve/release/commit cannot interleave. Returns nil if no
// row exists.
func (s *Store) LockInventoryTx(ctx context.Context, tx *sqlx.Tx, variantID int64) (*models.Inventory, error) {
	var inv models.Inventory
	err := tx.GetContext(ctx, &inv,
		"SELECT * FROM inventories WHERE variant_id = $1 FOR UPDATE", variantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &inv, nil
}

// UpdateInventoryCountsTx persists new on-hand/reserved counters under
// the caller's lock.
func (s *Store) UpdateInventoryCountsTx(ctx context.Context, tx *sqlx.Tx, variantID int64, onHand, reserved int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE inventories SET quantity_on_hand = $1, quantity_reserved = $2, updated_at = NOW() WHERE variant_id = $3",
		onHand, reserved, variantID)
	return TranslateError(err)
}

// InsertReservationTx inserts a new RESERVED row. The unique constraint
// on reservation_id rejects duplicate idempotency keys.
func (s *Store) InsertReservationTx(ctx context.Context, tx *sqlx.Tx, res *models.InventoryReservation) error {
	query := `
		INSERT INTO inventory_reservations (reservation_id, variant_id, quantity, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := tx.GetContext(ctx, res, query,
		res.ReservationID, res.VariantID, res.Quantity, res.Status)
	return TranslateError(err)
}

// LockReservationTx locks a reservation row by its idempotency key.
// Returns nil if no reservation exists.
func (s *Store) LockReservationTx(ctx context.Context, tx *sqlx.Tx, reservationID string) (*models.InventoryReservation, error) {
	var res models.InventoryReservation
	err := tx.GetContext(ctx, &res,
		"SELECT * FROM inventory_reservations WHERE reservation_id = $1 FOR UPDATE", reservationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &res, nil
}

// GetReservation retrieves a reservation without locking it.
func (s *Store) GetReservation(ctx context.Context, reservationID string) (*models.InventoryReservation, error) {
	var res models.InventoryReservation
	err := s.db.GetContext(ctx, &res,
		"SELECT * FROM inventory_reservations WHERE reservation_id = $1", reservationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &res, nil
}

// UpdateReservationStatusTx moves a reservation out of RESERVED. The
// WHERE clause guards against double application: rows already in a
// terminal state are not touched.
func (s *Store) UpdateReservationStatusTx(ctx context.Context, tx *sqlx.Tx, reservationID, status string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE inventory_reservations SET status = $1 WHERE reservation_id = $2 AND status = $3",
		status, reservationID, models.ReservationStatusReserved)
	if err != nil {
		return false, TranslateError(err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}
