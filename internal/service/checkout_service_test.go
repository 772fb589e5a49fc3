package service

import (
	"regexp"
	"testing"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeTotal(t *testing.T) {
	total := ComputeTotal(
		decimal.NewFromInt(100),
		decimal.NewFromInt(10),
		decimal.NewFromInt(5),
		decimal.NewFromInt(20))
	assert.True(t, total.Equal(decimal.NewFromInt(95)), "got %s", total)
}

func TestComputeTotalFlooredAtZero(t *testing.T) {
	total := ComputeTotal(
		decimal.NewFromInt(100),
		decimal.Zero,
		decimal.Zero,
		decimal.NewFromInt(200))
	assert.True(t, total.Equal(decimal.Zero), "got %s", total)
}

func TestComputeTotalExactDecimal(t *testing.T) {
	// 0.1 + 0.2 style sums must come out exact.
	total := ComputeTotal(
		decimal.RequireFromString("0.1"),
		decimal.RequireFromString("0.2"),
		decimal.Zero,
		decimal.Zero)
	assert.Equal(t, "0.3", total.String())
}

func TestValidateLine(t *testing.T) {
	product := &models.Product{Name: "Mechanical Keyboard", Status: models.ProductStatusActive, StockQuantity: 5}

	assert.NoError(t, validateLine(product, 5))

	err := validateLine(product, 6)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "insufficient stock: Mechanical Keyboard")

	product.Status = models.ProductStatusInactive
	err = validateLine(product, 1)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "product not available: Mechanical Keyboard")
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		number := GenerateOrderNumber()
		assert.Regexp(t, pattern, number)
		seen[number] = true
	}
	// Random component should make collisions vanishingly rare.
	assert.Greater(t, len(seen), 99)
}

func TestDistinctProductIDsSortedAscending(t *testing.T) {
	lines := []models.CartItem{
		{ProductID: 42},
		{ProductID: 7},
		{ProductID: 42},
		{ProductID: 19},
	}
	assert.Equal(t, []int64{7, 19, 42}, distinctProductIDs(lines))
}
