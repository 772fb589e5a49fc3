package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypePaymentWebhook     = "PAYMENT_WEBHOOK"
	EventTypeShipmentStatus     = "SHIPMENT_STATUS"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after a checkout commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderLineData `json:"items"`
}

// OrderStatusChangedEvent published after a workflow transition commits
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID           int64       `json:"order_id"`
	PreviousStatus    OrderStatus `json:"previous_status"`
	NewStatus         OrderStatus `json:"new_status"`
	Reason            string      `json:"reason"`
	ChangedByRole     string      `json:"changed_by_role"`
	ExternalReference string      `json:"external_reference,omitempty"`
}

// PaymentWebhookEvent delivered by the payment gateway, over HTTP or
// the payment-events topic. Replays must be idempotent.
type PaymentWebhookEvent struct {
	BaseEvent
	PaymentID     int64      `json:"payment_id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// ShipmentStatusEvent delivered by the shipment carrier integration.
type ShipmentStatusEvent struct {
	BaseEvent
	ShipmentID int64  `json:"shipment_id"`
	NewStatus  string `json:"new_status"`
	Notes      string `json:"notes,omitempty"`
}

// OrderLineData represents line data carried in events
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
