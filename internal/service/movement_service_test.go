package service

import (
	"testing"
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordManual(t *testing.T) {
	env := newTestEnv(t)
	slot := env.addSlot(t, 1, 1, 1, 1, 1000)
	p := env.placedLot(t, "LOT-M", 10, 25, slot)

	occurred := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	mv, err := env.ledger.RecordManual(env.ctx, &ManualMovementRequest{
		ProductID:  p.ID,
		Quantity:   2,
		Reason:     "recount",
		Notes:      "two bags found torn",
		OccurredAt: &occurred,
	}, env.supervisor)
	require.NoError(t, err)
	assert.Equal(t, model.MovementAdjustment, mv.Type)
	assert.False(t, mv.Automatic)
	assert.False(t, mv.Verified)
	assert.Equal(t, 50.0, mv.Weight)
	assert.True(t, occurred.Equal(mv.OccurredAt))
	require.NotNil(t, mv.FromSlotID)
	assert.Equal(t, slot.ID, *mv.FromSlotID)

	// The product itself is untouched.
	reloaded := env.reloadProduct(t, p.ID)
	assert.Equal(t, p.Version, reloaded.Version)
	assert.Equal(t, 10, reloaded.Quantity)
	assert.Equal(t, 250.0, env.reloadSlot(t, slot.ID).CurrentWeight)
}

func TestRecordManual_Rejections(t *testing.T) {
	env := newTestEnv(t)
	p := env.newLot(t, "LOT-M", 1, 1)

	future := time.Now().Add(time.Hour)
	_, err := env.ledger.RecordManual(env.ctx, &ManualMovementRequest{
		ProductID: p.ID, Reason: "late", OccurredAt: &future,
	}, env.supervisor)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.ledger.RecordManual(env.ctx, &ManualMovementRequest{ProductID: p.ID}, env.supervisor)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.ledger.RecordManual(env.ctx, &ManualMovementRequest{ProductID: uuid.New(), Reason: "x"}, env.supervisor)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAppend_RejectsInvalidEntries(t *testing.T) {
	env := newTestEnv(t)
	p := env.newLot(t, "LOT-A", 1, 1)

	err := env.ledger.Append(env.db, &model.Movement{Type: "TELEPORT", ProductID: p.ID})
	assert.ErrorIs(t, err, ErrValidation)

	err = env.ledger.Append(env.db, &model.Movement{Type: model.MovementExit, ProductID: p.ID, Quantity: -1})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	entry := &model.Movement{Type: model.MovementAdjustment, ProductID: p.ID}
	require.NoError(t, env.ledger.Append(env.db, entry))
	assert.False(t, entry.OccurredAt.IsZero())
}

func TestLedgerList(t *testing.T) {
	env := newTestEnv(t)
	a := env.addSlot(t, 1, 1, 1, 1, 1000)
	b := env.addSlot(t, 1, 1, 2, 1, 1000)
	p := env.placedLot(t, "LOT-L", 10, 25, a)
	_, err := env.product.Move(env.ctx, p.ID, b.ID, env.operator, Options{})
	require.NoError(t, err)
	_, err = env.product.PartialExit(env.ctx, p.ID, 1, env.operator, Options{})
	require.NoError(t, err)

	all, err := env.ledger.List(env.ctx, repository.MovementFilter{ProductID: &p.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	exits, err := env.ledger.List(env.ctx, repository.MovementFilter{Type: model.MovementExit})
	require.NoError(t, err)
	require.Len(t, exits, 1)
	assert.Equal(t, 25.0, exits[0].Weight)

	atA, err := env.ledger.List(env.ctx, repository.MovementFilter{SlotID: &a.ID})
	require.NoError(t, err)
	assert.Len(t, atA, 2, "entry into a and transfer out of a")

	_, err = env.ledger.List(env.ctx, repository.MovementFilter{Type: "BOGUS"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMovementsAreImmutable(t *testing.T) {
	env := newTestEnv(t)
	slot := env.addSlot(t, 1, 1, 1, 1, 1000)
	p := env.placedLot(t, "LOT-I", 10, 25, slot)

	history, err := env.product.GetHistory(env.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	entry := history[0]

	entry.Quantity = 99
	assert.ErrorIs(t, env.db.Save(&entry).Error, model.ErrMovementImmutable)
	assert.ErrorIs(t, env.db.Delete(&entry).Error, model.ErrMovementImmutable)

	history, err = env.product.GetHistory(env.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 10, history[0].Quantity)
}
