package store

import (
	"context"
	"database/sql"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderTx inserts an order inside the checkout transaction. A
// unique violation on order_number stays detectable through the
// translated error, so the caller can retry with a fresh number.
func (s *Store) CreateOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, status, subtotal, shipping_fee,
			tax_amount, discount_amount, total_amount, shipping_address, billing_address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := tx.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID, order.Status, order.Subtotal, order.ShippingFee,
		order.TaxAmount, order.DiscountAmount, order.TotalAmount,
		order.ShippingAddress, order.BillingAddress, order.Notes)
	return TranslateError(err)
}

// CreateOrderItemTx inserts one immutable order line.
func (s *Store) CreateOrderItemTx(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, shop_id, product_name,
			product_sku, unit_price, quantity, line_total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.ShopID, item.ProductName,
		item.ProductSKU, item.UnitPrice, item.Quantity, item.LineTotal, item.Status)
	return TranslateError(err)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &order, nil
}

// GetOrderByNumber retrieves an order by its human-readable number
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found: %s", orderNumber)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &order, nil
}

// LockOrderTx acquires an exclusive row lock on an order so a status
// read-check-write is serialized per order.
func (s *Store) LockOrderTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &order, nil
}

// UpdateOrderStatusTx sets the order status under the caller's lock.
func (s *Store) UpdateOrderStatusTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status models.OrderStatus) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return TranslateError(err)
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, TranslateError(err)
}

// GetOrderItemsByOrderID retrieves all lines for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, TranslateError(err)
}

// InsertStatusHistoryTx appends one workflow transition record in the
// same transaction as the status update.
func (s *Store) InsertStatusHistoryTx(ctx context.Context, tx *sqlx.Tx, h *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, previous_status, new_status,
			reason, changed_by, changed_by_role, external_reference, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := tx.GetContext(ctx, h, query,
		h.OrderID, h.PreviousStatus, h.NewStatus, h.Reason,
		h.ChangedBy, h.ChangedByRole, h.ExternalReference, h.Notes)
	return TranslateError(err)
}

// GetStatusHistory retrieves the full transition log, newest first.
func (s *Store) GetStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := s.db.SelectContext(ctx, &history,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at DESC, id DESC", orderID)
	return history, TranslateError(err)
}

// GetLatestStatusChange retrieves the most recent transition, or nil
// if the order has no history.
func (s *Store) GetLatestStatusChange(ctx context.Context, orderID int64) (*models.OrderStatusHistory, error) {
	var h models.OrderStatusHistory
	err := s.db.GetContext(ctx, &h,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &h, nil
}

// GetLatestStatusChangeTx is the transactional variant, reading through
// the caller's connection so it observes rows under its locks.
func (s *Store) GetLatestStatusChangeTx(ctx context.Context, tx *sqlx.Tx, orderID int64) (*models.OrderStatusHistory, error) {
	var h models.OrderStatusHistory
	err := tx.GetContext(ctx, &h,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &h, nil
}

// HasHistoryWithReferenceTx reports whether a transition tagged with
// the given external reference was already recorded. Used to make
// webhook-triggered transitions idempotent under replay.
func (s *Store) HasHistoryWithReferenceTx(ctx context.Context, tx *sqlx.Tx, orderID int64, externalReference string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM order_status_history WHERE order_id = $1 AND external_reference = $2)",
		orderID, externalReference)
	return exists, TranslateError(err)
}

// AttachNotesToHistoryTx attaches free-text notes to a history row.
// The only permitted mutation of a history record.
func (s *Store) AttachNotesToHistoryTx(ctx context.Context, tx *sqlx.Tx, historyID int64, notes string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE order_status_history SET notes = $1 WHERE id = $2", notes, historyID)
	return TranslateError(err)
}

// CountOrders returns the total number of orders, used by tests.
func (s *Store) CountOrders(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders")
	return n, TranslateError(err)
}
