package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"commerce-core/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed external events to registered handlers
type EventHandler struct {
	onPaymentWebhook func(context.Context, *models.PaymentWebhookEvent) error
	onShipmentStatus func(context.Context, *models.ShipmentStatusEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentWebhook registers a handler for payment webhook events
func (eh *EventHandler) OnPaymentWebhook(handler func(context.Context, *models.PaymentWebhookEvent) error) {
	eh.onPaymentWebhook = handler
}

// OnShipmentStatus registers a handler for shipment status events
func (eh *EventHandler) OnShipmentStatus(handler func(context.Context, *models.ShipmentStatusEvent) error) {
	eh.onShipmentStatus = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentWebhook:
		if eh.onPaymentWebhook != nil {
			var event models.PaymentWebhookEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentWebhook event: %w", err)
			}
			return eh.onPaymentWebhook(ctx, &event)
		}

	case models.EventTypeShipmentStatus:
		if eh.onShipmentStatus != nil {
			var event models.ShipmentStatusEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ShipmentStatus event: %w", err)
			}
			return eh.onShipmentStatus(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
