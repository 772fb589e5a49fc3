package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusPending.CanTransitionTo(StatusPaid))
	assert.True(t, StatusPending.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusShipped.CanTransitionTo(StatusDelivered))
	assert.True(t, StatusDelivered.CanTransitionTo(StatusCompleted))

	// Terminal statuses go nowhere.
	assert.False(t, StatusCancelled.CanTransitionTo(StatusShipped))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusPending))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCancelled))

	// No skipping backward.
	assert.False(t, StatusDelivered.CanTransitionTo(StatusPending))
	assert.False(t, StatusShipped.CanTransitionTo(StatusConfirmed))
}

func TestOnHoldReachableFromNonTerminalStatuses(t *testing.T) {
	from := []OrderStatus{
		StatusPending, StatusPaid, StatusConfirmed,
		StatusProcessing, StatusReadyToShip, StatusShipped,
	}
	for _, s := range from {
		assert.True(t, s.CanTransitionTo(StatusOnHold), "expected %s -> ON_HOLD", s)
	}

	assert.False(t, StatusCompleted.CanTransitionTo(StatusOnHold))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusOnHold))
}

func TestAllowedTransitionsSorted(t *testing.T) {
	next := StatusPending.AllowedTransitions()
	assert.Equal(t, []OrderStatus{StatusCancelled, StatusConfirmed, StatusOnHold, StatusPaid}, next)

	assert.Empty(t, StatusCompleted.AllowedTransitions())
	assert.Empty(t, StatusCancelled.AllowedTransitions())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusOnHold.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("READY_TO_SHIP")
	assert.NoError(t, err)
	assert.Equal(t, StatusReadyToShip, s)

	_, err = ParseOrderStatus("shipped")
	assert.Error(t, err)

	_, err = ParseOrderStatus("")
	assert.Error(t, err)
}

func TestShipmentRank(t *testing.T) {
	assert.Equal(t, 0, ShipmentRank(ShipmentStatusPreparing))
	assert.Equal(t, 1, ShipmentRank(ShipmentStatusPickedUp))
	assert.Equal(t, 2, ShipmentRank(ShipmentStatusInTransit))
	assert.Equal(t, 3, ShipmentRank(ShipmentStatusDelivered))
	assert.Equal(t, 99, ShipmentRank(ShipmentStatusFailed))
	assert.Equal(t, -1, ShipmentRank("returned"))

	assert.True(t, ValidShipmentStatus("in_transit"))
	assert.False(t, ValidShipmentStatus("IN_TRANSIT"))
}
