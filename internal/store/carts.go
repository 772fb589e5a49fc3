package store

import (
	"context"
	"database/sql"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// GetCartByUserID retrieves a user's cart, or nil if none exists yet.
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &cart, nil
}

// CreateCart creates an empty cart for a user
func (s *Store) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, `
		INSERT INTO carts (user_id)
		VALUES ($1)
		RETURNING *`, userID)
	if err != nil {
		return nil, TranslateError(err)
	}
	return &cart, nil
}

// GetCartByID retrieves a cart by ID
func (s *Store) GetCartByID(ctx context.Context, cartID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1", cartID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("cart not found: %d", cartID)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &cart, nil
}

// LockCartTx acquires an exclusive lock on the cart row so concurrent
// line mutations cannot interleave with a checkout reading the lines.
func (s *Store) LockCartTx(ctx context.Context, tx *sqlx.Tx, cartID int64) (*models.Cart, error) {
	var cart models.Cart
	err := tx.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1 FOR UPDATE", cartID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("cart not found: %d", cartID)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &cart, nil
}

// ListCartItems retrieves all lines in a cart
func (s *Store) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, TranslateError(err)
}

// ListCartItemsTx retrieves all lines in a cart under the caller's
// transaction.
func (s *Store) ListCartItemsTx(ctx context.Context, tx *sqlx.Tx, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := tx.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, TranslateError(err)
}

// GetCartItem retrieves the line for a product in a cart, or nil.
func (s *Store) GetCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &item, nil
}

// GetCartItemByID retrieves a cart line by its id.
func (s *Store) GetCartItemByID(ctx context.Context, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM cart_items WHERE id = $1", itemID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("cart item not found: %d", itemID)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return &item, nil
}

// InsertCartItem adds a new line to a cart
func (s *Store) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, price_snapshot)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, item, query,
		item.CartID, item.ProductID, item.Quantity, item.PriceSnapshot)
	return TranslateError(err)
}

// UpdateCartItemQuantity sets the quantity on an existing line
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	return TranslateError(err)
}

// DeleteCartItem removes a line, scoped to its cart. Returns false if
// the line did not belong to the cart.
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return false, TranslateError(err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// DeleteCartItemByID removes a line by id.
func (s *Store) DeleteCartItemByID(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	return TranslateError(err)
}

// ClearCartItems removes every line from a cart. The cart row itself
// survives checkout.
func (s *Store) ClearCartItems(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return TranslateError(err)
}

// DeleteCartItemsTx removes the given lines inside the checkout
// transaction. Only the lines that became order lines are deleted, so
// a line added to the cart concurrently is never dropped unordered.
func (s *Store) DeleteCartItemsTx(ctx context.Context, tx *sqlx.Tx, itemIDs []int64) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = ANY($1)", pq.Array(itemIDs))
	return TranslateError(err)
}
