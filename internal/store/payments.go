package store

import (
	"context"
	"database/sql"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment inserts a new pending payment for an order.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Amount, payment.Status)
	return TranslateError(err)
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &payment, nil
}

// LockPaymentTx locks a payment row for a read-check-write.
func (s *Store) LockPaymentTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &payment, nil
}

// GetPaymentsByOrderID retrieves payments for an order, newest first
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return payments, TranslateError(err)
}

// TransactionIDExistsTx reports whether another payment already
// recorded this gateway transaction id.
func (s *Store) TransactionIDExistsTx(ctx context.Context, tx *sqlx.Tx, transactionID string, excludePaymentID int64) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE transaction_id = $1 AND id <> $2)",
		transactionID, excludePaymentID)
	return exists, TranslateError(err)
}

// MarkPaymentCompletedTx records a completed payment under the
// caller's lock.
func (s *Store) MarkPaymentCompletedTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, transaction_id = $2, paid_at = $3, updated_at = NOW() WHERE id = $4",
		payment.Status, payment.TransactionID, payment.PaidAt, payment.ID)
	return TranslateError(err)
}

// MarkPaymentFailedTx records a failed payment under the caller's lock.
func (s *Store) MarkPaymentFailedTx(ctx context.Context, tx *sqlx.Tx, paymentID int64, reason string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3",
		models.PaymentStatusFailed, reason, paymentID)
	return TranslateError(err)
}

// CreateShipment inserts a shipment for an order.
func (s *Store) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	query := `
		INSERT INTO shipments (order_id, tracking_number, carrier, status, notes, shipped_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, shipment, query,
		shipment.OrderID, shipment.TrackingNumber, shipment.Carrier,
		shipment.Status, shipment.Notes, shipment.ShippedAt)
	return TranslateError(err)
}

// GetShipmentByID retrieves a shipment by ID
func (s *Store) GetShipmentByID(ctx context.Context, id int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := s.db.GetContext(ctx, &shipment, "SELECT * FROM shipments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("shipment not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &shipment, nil
}

// LockShipmentTx locks a shipment row for a read-check-write.
func (s *Store) LockShipmentTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := tx.GetContext(ctx, &shipment, "SELECT * FROM shipments WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("shipment not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &shipment, nil
}

// UpdateShipmentTx persists shipment status and timestamps under the
// caller's lock.
func (s *Store) UpdateShipmentTx(ctx context.Context, tx *sqlx.Tx, shipment *models.Shipment) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE shipments SET status = $1, notes = $2, shipped_at = $3, delivered_at = $4, updated_at = NOW()
		 WHERE id = $5`,
		shipment.Status, shipment.Notes, shipment.ShippedAt, shipment.DeliveredAt, shipment.ID)
	return TranslateError(err)
}
