package models

import (
	"fmt"
	"sort"
)

// OrderStatus is one state in the order lifecycle.
type OrderStatus string

const (
	StatusPending     OrderStatus = "PENDING"
	StatusPaid        OrderStatus = "PAID"
	StatusConfirmed   OrderStatus = "CONFIRMED"
	StatusProcessing  OrderStatus = "PROCESSING"
	StatusReadyToShip OrderStatus = "READY_TO_SHIP"
	StatusShipped     OrderStatus = "SHIPPED"
	StatusDelivered   OrderStatus = "DELIVERED"
	StatusCompleted   OrderStatus = "COMPLETED"
	StatusCancelled   OrderStatus = "CANCELLED"
	StatusOnHold      OrderStatus = "ON_HOLD"
)

// allowedTransitions is the adjacency table for the order status state
// machine. An order may move from a status only to the statuses listed
// here; COMPLETED and CANCELLED are terminal. Leaving ON_HOLD is driven
// by re-evaluating payment facts, not by popping the previous status.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusPaid:      true,
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusOnHold:    true,
	},
	StatusPaid: {
		StatusConfirmed:  true,
		StatusProcessing: true,
		StatusCancelled:  true,
		StatusOnHold:     true,
	},
	StatusConfirmed: {
		StatusProcessing:  true,
		StatusReadyToShip: true,
		StatusCancelled:   true,
		StatusOnHold:      true,
	},
	StatusProcessing: {
		StatusReadyToShip: true,
		StatusCancelled:   true,
		StatusOnHold:      true,
	},
	StatusReadyToShip: {
		StatusShipped:   true,
		StatusCancelled: true,
		StatusOnHold:    true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusOnHold:    true,
	},
	StatusDelivered: {
		StatusCompleted: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusOnHold: {
		StatusPending:    true,
		StatusConfirmed:  true,
		StatusProcessing: true,
		StatusCancelled:  true,
	},
}

// CanTransitionTo reports whether moving from s to next is a legal
// workflow edge.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return allowedTransitions[s][next]
}

// AllowedTransitions returns the legal next statuses from s, sorted
// for stable output.
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	next := make([]OrderStatus, 0, len(allowedTransitions[s]))
	for to := range allowedTransitions[s] {
		next = append(next, to)
	}
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	return next
}

// IsTerminal reports whether no transitions leave s.
func (s OrderStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if _, ok := allowedTransitions[s]; !ok {
		return "", fmt.Errorf("unknown order status: %q", raw)
	}
	return s, nil
}

// ShipmentRank orders shipment statuses by fulfillment progress so
// updates can be rejected when they move backward. failed is reachable
// from anywhere.
func ShipmentRank(status string) int {
	switch status {
	case ShipmentStatusPreparing:
		return 0
	case ShipmentStatusPickedUp:
		return 1
	case ShipmentStatusInTransit:
		return 2
	case ShipmentStatusDelivered:
		return 3
	case ShipmentStatusFailed:
		return 99
	default:
		return -1
	}
}

// ValidShipmentStatus reports whether status is in the closed shipment
// status set.
func ValidShipmentStatus(status string) bool {
	return ShipmentRank(status) >= 0
}
