package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable SKU in the catalog. StockQuantity is
// the authoritative on-hand count consumed by checkout.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	ShopID        int64           `db:"shop_id" json:"shop_id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Status        string          `db:"status" json:"status"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Product statuses
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// IsActive reports whether the product can be purchased.
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// Cart is the per-user mutable collection of lines feeding checkout.
// One cart per user, created lazily on first access.
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is one cart line. PriceSnapshot is the unit price captured
// when the line was added, not the live product price.
type CartItem struct {
	ID            int64           `db:"id" json:"id"`
	CartID        int64           `db:"cart_id" json:"cart_id"`
	ProductID     int64           `db:"product_id" json:"product_id"`
	Quantity      int             `db:"quantity" json:"quantity"`
	PriceSnapshot decimal.Decimal `db:"price_snapshot" json:"price_snapshot"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Order is immutable after creation except for Status and UpdatedAt.
// TotalAmount is always recomputed from its components server-side.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	UserID          int64           `db:"user_id" json:"user_id"`
	Status          OrderStatus     `db:"status" json:"status"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingFee     decimal.Decimal `db:"shipping_fee" json:"shipping_fee"`
	TaxAmount       decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	BillingAddress  *string         `db:"billing_address" json:"billing_address,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable snapshot of one purchased SKU at checkout
// time. Lines are fixed at order creation; none are added or removed
// afterwards.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ShopID      int64           `db:"shop_id" json:"shop_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	ProductSKU  string          `db:"product_sku" json:"product_sku"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity    int             `db:"quantity" json:"quantity"`
	LineTotal   decimal.Decimal `db:"line_total" json:"line_total"`
	Status      string          `db:"status" json:"status"`
}

// OrderStatusHistory is one append-only log entry per workflow
// transition. Rows are never mutated or deleted, except that free-text
// notes may be attached to the latest entry after the fact.
type OrderStatusHistory struct {
	ID                int64       `db:"id" json:"id"`
	OrderID           int64       `db:"order_id" json:"order_id"`
	PreviousStatus    OrderStatus `db:"previous_status" json:"previous_status"`
	NewStatus         OrderStatus `db:"new_status" json:"new_status"`
	Reason            string      `db:"reason" json:"reason"`
	ChangedBy         *int64      `db:"changed_by" json:"changed_by,omitempty"`
	ChangedByRole     string      `db:"changed_by_role" json:"changed_by_role"`
	ExternalReference *string     `db:"external_reference" json:"external_reference,omitempty"`
	Notes             *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

// Actor roles recorded on history rows
const (
	RoleSystem   = "SYSTEM"
	RoleCustomer = "CUSTOMER"
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
)

// Inventory tracks variant-level stock commitments independently of
// Product.StockQuantity. Available = OnHand - Reserved, never negative.
type Inventory struct {
	VariantID         int64     `db:"variant_id" json:"variant_id"`
	QuantityOnHand    int       `db:"quantity_on_hand" json:"quantity_on_hand"`
	QuantityReserved  int       `db:"quantity_reserved" json:"quantity_reserved"`
	LowStockThreshold int       `db:"low_stock_threshold" json:"low_stock_threshold"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableQuantity returns on-hand minus reserved.
func (i *Inventory) AvailableQuantity() int {
	return i.QuantityOnHand - i.QuantityReserved
}

// IsLowStock reports whether available stock is at or below the
// configured threshold.
func (i *Inventory) IsLowStock() bool {
	return i.AvailableQuantity() <= i.LowStockThreshold
}

// Reservation statuses. A reservation leaves RESERVED exactly once.
const (
	ReservationStatusReserved  = "RESERVED"
	ReservationStatusReleased  = "RELEASED"
	ReservationStatusCommitted = "COMMITTED"
)

// InventoryReservation is one row per reservation attempt, keyed by a
// caller-supplied idempotent reservation id.
type InventoryReservation struct {
	ID            int64     `db:"id" json:"id"`
	ReservationID string    `db:"reservation_id" json:"reservation_id"`
	VariantID     int64     `db:"variant_id" json:"variant_id"`
	Quantity      int       `db:"quantity" json:"quantity"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Payment records one payment attempt against an order.
type Payment struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       int64           `db:"order_id" json:"order_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        string          `db:"status" json:"status"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	PaidAt        *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	FailureReason *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Shipment statuses, ordered by fulfillment progress.
const (
	ShipmentStatusPreparing = "preparing"
	ShipmentStatusPickedUp  = "picked_up"
	ShipmentStatusInTransit = "in_transit"
	ShipmentStatusDelivered = "delivered"
	ShipmentStatusFailed    = "failed"
)

// Shipment tracks physical fulfillment for an order.
type Shipment struct {
	ID             int64      `db:"id" json:"id"`
	OrderID        int64      `db:"order_id" json:"order_id"`
	TrackingNumber string     `db:"tracking_number" json:"tracking_number"`
	Carrier        string     `db:"carrier" json:"carrier"`
	Status         string     `db:"status" json:"status"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	ShippedAt      *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
