package service

import (
	"testing"

	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanAdvanceShipmentForwardOnly(t *testing.T) {
	assert.True(t, CanAdvanceShipment(models.ShipmentStatusPreparing, models.ShipmentStatusPickedUp))
	assert.True(t, CanAdvanceShipment(models.ShipmentStatusPickedUp, models.ShipmentStatusInTransit))
	assert.True(t, CanAdvanceShipment(models.ShipmentStatusInTransit, models.ShipmentStatusDelivered))
	assert.True(t, CanAdvanceShipment(models.ShipmentStatusPreparing, models.ShipmentStatusDelivered))

	assert.False(t, CanAdvanceShipment(models.ShipmentStatusInTransit, models.ShipmentStatusPickedUp))
	assert.False(t, CanAdvanceShipment(models.ShipmentStatusDelivered, models.ShipmentStatusInTransit))
}

func TestCanAdvanceShipmentFailed(t *testing.T) {
	assert.True(t, CanAdvanceShipment(models.ShipmentStatusPreparing, models.ShipmentStatusFailed))
	assert.True(t, CanAdvanceShipment(models.ShipmentStatusInTransit, models.ShipmentStatusFailed))

	// A delivered shipment is final, even for failure reports.
	assert.False(t, CanAdvanceShipment(models.ShipmentStatusDelivered, models.ShipmentStatusFailed))
}

func TestCanAdvanceShipmentUnknownStatus(t *testing.T) {
	assert.False(t, CanAdvanceShipment("lost", models.ShipmentStatusInTransit))
	assert.False(t, CanAdvanceShipment(models.ShipmentStatusPickedUp, "teleported"))
}
