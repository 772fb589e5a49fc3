package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutService converts a cart into an immutable order inside one
// all-or-nothing transaction with SKU-row-level locking.
type CheckoutService struct {
	store              *store.Store
	eventPublisher     *broker.EventPublisher
	logger             *zap.Logger
	orderNumberRetries int
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store *store.Store, eventPublisher *broker.EventPublisher, orderNumberRetries int) *CheckoutService {
	if orderNumberRetries < 1 {
		orderNumberRetries = 1
	}
	return &CheckoutService{
		store:              store,
		eventPublisher:     eventPublisher,
		logger:             util.GetLogger(),
		orderNumberRetries: orderNumberRetries,
	}
}

// CheckoutRequest carries the caller-supplied checkout parameters.
// Monetary fields are recomputed into the total server-side and never
// trusted as a total.
type CheckoutRequest struct {
	ShippingAddress string          `json:"shipping_address"`
	BillingAddress  *string         `json:"billing_address,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
}

// Checkout atomically converts the user's cart into an order:
// lock every distinct SKU in the cart, re-validate availability and
// stock, snapshot line data, decrement stock, persist the order and
// clear the cart. Any failure rolls the whole transaction back.
func (cs *CheckoutService) Checkout(ctx context.Context, userID int64, req *CheckoutRequest) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(req.ShippingAddress) == "" {
		util.CheckoutsFailedTotal.WithLabelValues("missing_address").Inc()
		return nil, nil, apperr.Validation("shippingAddress is required")
	}

	cart, err := cs.store.GetCartByUserID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if cart == nil {
		util.CheckoutsFailedTotal.WithLabelValues("no_cart").Inc()
		return nil, nil, apperr.NotFound("cart not found for user %d", userID)
	}

	var order *models.Order
	var orderItems []models.OrderItem

	// The order number carries a random component; on the rare unique
	// collision the whole transaction is retried with a fresh number,
	// re-reading the cart lines each attempt.
	for attempt := 0; attempt < cs.orderNumberRetries; attempt++ {
		order, orderItems, err = cs.checkoutTx(ctx, cart, req)
		if err == nil {
			break
		}
		if store.IsUniqueViolation(err) {
			cs.logger.Warn("Order number collision, retrying",
				zap.Int64("user_id", userID),
				zap.Int("attempt", attempt+1))
			continue
		}
		cs.countFailure(err)
		return nil, nil, err
	}
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("order_number_collision").Inc()
		return nil, nil, apperr.Wrap(apperr.KindConcurrency, err, "order number collision, retry checkout")
	}

	util.CheckoutsTotal.Inc()
	cs.logger.Info("Checkout completed",
		zap.Int64("user_id", userID),
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.String()))

	cs.publishOrderCreated(ctx, order, orderItems)

	return order, orderItems, nil
}

// checkoutTx runs the checkout algorithm in a single
// transaction. Stock decrements staged for earlier lines are rolled
// back when a later line fails.
func (cs *CheckoutService) checkoutTx(ctx context.Context, cart *models.Cart, req *CheckoutRequest) (*models.Order, []models.OrderItem, error) {
	var order *models.Order
	var orderItems []models.OrderItem

	err := cs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		// The cart row lock serializes this checkout against line
		// mutations and against a second checkout of the same cart;
		// the lines are read inside the transaction that clears them.
		if _, err := cs.store.LockCartTx(ctx, tx, cart.ID); err != nil {
			return err
		}
		lines, err := cs.store.ListCartItemsTx(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
			return apperr.Conflict("cart is empty")
		}

		// Lock distinct SKUs in ascending id order so concurrent
		// checkouts against overlapping carts cannot deadlock.
		locked := make(map[int64]*models.Product)
		for _, id := range distinctProductIDs(lines) {
			product, err := cs.store.LockProductTx(ctx, tx, id)
			if err != nil {
				return err
			}
			locked[id] = product
		}

		subtotal := decimal.Zero
		orderItems = orderItems[:0]
		for _, line := range lines {
			product := locked[line.ProductID]
			if err := validateLine(product, line.Quantity); err != nil {
				return err
			}

			lineTotal := line.PriceSnapshot.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)

			orderItems = append(orderItems, models.OrderItem{
				ProductID:   product.ID,
				ShopID:      product.ShopID,
				ProductName: product.Name,
				ProductSKU:  product.SKU,
				UnitPrice:   line.PriceSnapshot,
				Quantity:    line.Quantity,
				LineTotal:   lineTotal,
				Status:      string(models.StatusPending),
			})

			product.StockQuantity -= line.Quantity
		}

		total := ComputeTotal(subtotal, req.ShippingFee, req.TaxAmount, req.DiscountAmount)

		order = &models.Order{
			OrderNumber:     GenerateOrderNumber(),
			UserID:          cart.UserID,
			Status:          models.StatusPending,
			Subtotal:        subtotal,
			ShippingFee:     req.ShippingFee,
			TaxAmount:       req.TaxAmount,
			DiscountAmount:  req.DiscountAmount,
			TotalAmount:     total,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			Notes:           req.Notes,
		}
		if err := cs.store.CreateOrderTx(ctx, tx, order); err != nil {
			return err
		}

		for id, product := range locked {
			if err := cs.store.UpdateProductStockTx(ctx, tx, id, product.StockQuantity); err != nil {
				return err
			}
		}

		for i := range orderItems {
			orderItems[i].OrderID = order.ID
			if err := cs.store.CreateOrderItemTx(ctx, tx, &orderItems[i]); err != nil {
				return err
			}
		}

		lineIDs := make([]int64, 0, len(lines))
		for _, line := range lines {
			lineIDs = append(lineIDs, line.ID)
		}
		return cs.store.DeleteCartItemsTx(ctx, tx, lineIDs)
	})
	if err != nil {
		return nil, nil, err
	}
	return order, orderItems, nil
}

// GetOrder retrieves an order with its lines.
func (cs *CheckoutService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := cs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := cs.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders retrieves a user's orders, newest first.
func (cs *CheckoutService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return cs.store.GetOrdersByUserID(ctx, userID)
}

func (cs *CheckoutService) publishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	if cs.eventPublisher == nil {
		return
	}

	lineData := make([]models.OrderLineData, 0, len(items))
	for _, item := range items {
		lineData = append(lineData, models.OrderLineData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       lineData,
	}

	if err := cs.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		cs.logger.Error("Failed to publish OrderCreated event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func (cs *CheckoutService) countFailure(err error) {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		util.CheckoutsFailedTotal.WithLabelValues("conflict").Inc()
	case apperr.KindConcurrency:
		util.CheckoutsFailedTotal.WithLabelValues("contention").Inc()
	case apperr.KindNotFound:
		util.CheckoutsFailedTotal.WithLabelValues("not_found").Inc()
	default:
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
	}
}

// validateLine checks a locked product against one cart line. The
// whole checkout aborts on the first failing line.
func validateLine(product *models.Product, quantity int) error {
	if !product.IsActive() {
		return apperr.Conflict("product not available: %s", product.Name)
	}
	if product.StockQuantity < quantity {
		return apperr.Conflict("insufficient stock: %s", product.Name)
	}
	return nil
}

// ComputeTotal derives the order total from its components, floored at
// zero so an oversized discount never produces a negative total.
func ComputeTotal(subtotal, shippingFee, taxAmount, discountAmount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shippingFee).Add(taxAmount).Sub(discountAmount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// GenerateOrderNumber builds a human-readable order number from the
// date plus a random component. Uniqueness is enforced by the database
// constraint; collisions are retried by the caller.
func GenerateOrderNumber() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	date := time.Now().UTC().Format("20060102")
	return "ORD-" + date + "-" + strings.ToUpper(hex.EncodeToString(buf))
}

func distinctProductIDs(lines []models.CartItem) []int64 {
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
