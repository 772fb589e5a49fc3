package service

import (
	"context"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// CartService manages per-user carts, the direct input to checkout.
type CartService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetOrCreateCart returns the user's cart, creating it lazily on first
// access.
func (cs *CartService) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, err := cs.store.GetCartByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}

	cart, err = cs.store.CreateCart(ctx, userID)
	if err != nil {
		// Lost a race with a concurrent first access; the winner's
		// cart is the one to use.
		if apperr.IsConflict(err) {
			return cs.store.GetCartByUserID(ctx, userID)
		}
		return nil, err
	}

	cs.logger.Info("Cart created", zap.Int64("user_id", userID), zap.Int64("cart_id", cart.ID))
	return cart, nil
}

// ListItems returns all lines in a cart.
func (cs *CartService) ListItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	if _, err := cs.store.GetCartByID(ctx, cartID); err != nil {
		return nil, err
	}
	return cs.store.ListCartItems(ctx, cartID)
}

// AddItem adds a product to a cart, merging quantity into an existing
// line. The unit price is snapshotted at add time.
func (cs *CartService) AddItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than zero")
	}

	if _, err := cs.store.GetCartByID(ctx, cartID); err != nil {
		return nil, err
	}

	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing, err := cs.store.GetCartItem(ctx, cartID, productID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Quantity += quantity
		if err := cs.store.UpdateCartItemQuantity(ctx, existing.ID, existing.Quantity); err != nil {
			return nil, err
		}
		return existing, nil
	}

	item := &models.CartItem{
		CartID:        cartID,
		ProductID:     productID,
		Quantity:      quantity,
		PriceSnapshot: product.Price,
	}
	if err := cs.store.InsertCartItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem sets a line's quantity; zero or negative removes the line.
func (cs *CartService) UpdateItem(ctx context.Context, itemID int64, quantity int) (*models.CartItem, error) {
	item, err := cs.store.GetCartItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		if err := cs.store.DeleteCartItemByID(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	item.Quantity = quantity
	if err := cs.store.UpdateCartItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes a line, scoped to the cart that owns it.
func (cs *CartService) RemoveItem(ctx context.Context, cartID, itemID int64) (bool, error) {
	return cs.store.DeleteCartItem(ctx, cartID, itemID)
}

// ClearCart removes every line; the cart row survives.
func (cs *CartService) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := cs.store.GetCartByID(ctx, cartID); err != nil {
		return err
	}
	return cs.store.ClearCartItems(ctx, cartID)
}
