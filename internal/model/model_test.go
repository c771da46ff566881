package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoordinates_Distance(t *testing.T) {
	a := Coordinates{Block: 1, Side: 1, Row: 2, Level: 3}
	assert.Equal(t, 0, a.Distance(a))
	assert.Equal(t, 1, a.Distance(Coordinates{Block: 1, Side: 1, Row: 2, Level: 2}))
	assert.Equal(t, 4, a.Distance(Coordinates{Block: 2, Side: 2, Row: 1, Level: 4}))
	assert.Equal(t, "B1-S1-R2-L3", a.String())
}

func TestProduct_SetQuantity(t *testing.T) {
	p := Product{WeightPerUnit: 25}
	p.SetQuantity(10)
	assert.Equal(t, 250.0, p.TotalWeight)
	p.SetQuantity(6)
	assert.Equal(t, 150.0, p.TotalWeight)

	p = Product{WeightPerUnit: 0.1}
	p.SetQuantity(3)
	assert.Equal(t, 0.3, p.TotalWeight)
}

func TestProductStatus(t *testing.T) {
	assert.True(t, StatusPlaced.IsActive())
	assert.True(t, StatusAwaitingWithdrawal.IsActive())
	assert.False(t, StatusAwaitingPlacement.IsActive())
	assert.True(t, StatusRemoved.IsTerminal())
	assert.True(t, StatusWithdrawn.IsTerminal())
	assert.False(t, StatusPlaced.IsTerminal())
}

func TestProduct_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Product{}
	assert.False(t, p.IsExpired(now))
	past := now.Add(-time.Hour)
	p.ExpirationDate = &past
	assert.True(t, p.IsExpired(now))
}

func TestWithdrawalRequest_Quantity(t *testing.T) {
	total := WithdrawalRequest{Kind: WithdrawalTotal}
	assert.Equal(t, 10, total.Quantity(10))

	qty := 4
	partial := WithdrawalRequest{Kind: WithdrawalPartial, RequestedQuantity: &qty}
	assert.Equal(t, 4, partial.Quantity(10))
}

func TestMovementType_Valid(t *testing.T) {
	assert.True(t, MovementWithdrawal.Valid())
	assert.False(t, MovementType("SHIFT").Valid())
}
