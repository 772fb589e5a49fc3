package service

import (
	"testing"

	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSettleCountsRelease(t *testing.T) {
	onHand, reserved := settleCounts(10, 4, 3, models.ReservationStatusReleased)
	assert.Equal(t, 10, onHand)
	assert.Equal(t, 1, reserved)
}

func TestSettleCountsCommit(t *testing.T) {
	onHand, reserved := settleCounts(10, 4, 3, models.ReservationStatusCommitted)
	assert.Equal(t, 7, onHand)
	assert.Equal(t, 1, reserved)
}

func TestSettleCountsReservedFlooredAtZero(t *testing.T) {
	_, reserved := settleCounts(10, 1, 5, models.ReservationStatusReleased)
	assert.Equal(t, 0, reserved)
}

func TestAvailableQuantity(t *testing.T) {
	inv := &models.Inventory{QuantityOnHand: 10, QuantityReserved: 3, LowStockThreshold: 5}
	assert.Equal(t, 7, inv.AvailableQuantity())
	assert.False(t, inv.IsLowStock())

	inv.QuantityReserved = 6
	assert.True(t, inv.IsLowStock())
}
