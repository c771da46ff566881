package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestChamberMap_CacheAside(t *testing.T) {
	env := newTestEnv(t)
	a := env.addSlot(t, 1, 1, 1, 1, 1000)
	env.addSlot(t, 1, 1, 1, 2, 1000)
	p := env.placedLot(t, "LOT-MAP", 10, 25, a)

	snapshot, err := env.readModel.ChamberMap(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Slots, 2)
	require.NotNil(t, snapshot.Slots[0].Occupant)
	assert.Equal(t, p.ID, snapshot.Slots[0].Occupant.ProductID)
	assert.Nil(t, snapshot.Slots[1].Occupant)
	assert.Equal(t, 1, snapshot.Occupancy.OccupiedSlots)
	assert.True(t, env.cache.has(chamberMapKey(env.chamber.ID)))

	// A committed change evicts the snapshot.
	_, err = env.product.PartialExit(env.ctx, p.ID, 2, env.operator, Options{})
	require.NoError(t, err)
	assert.False(t, env.cache.has(chamberMapKey(env.chamber.ID)))

	snapshot, err = env.readModel.ChamberMap(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, snapshot.Slots[0].CurrentWeight)

	_, err = env.readModel.ChamberMap(env.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrChamberNotFound)
}

func TestChamberMap_InvalidatedDuringRebuildIsNotCached(t *testing.T) {
	env := newTestEnv(t)
	env.addSlot(t, 1, 1, 1, 1, 1000)
	key := chamberMapKey(env.chamber.ID)

	// A commit lands after the slots were read but before the snapshot is stored.
	var once sync.Once
	require.NoError(t, env.db.Callback().Query().After("gorm:query").Register("test:commit_during_read", func(tx *gorm.DB) {
		if tx.Statement.Table != "slots" {
			return
		}
		once.Do(func() {
			env.advisor.Committed(context.Background(), Event{Action: "product_placed", ChamberIDs: []uuid.UUID{env.chamber.ID}})
		})
	}))

	snapshot, err := env.readModel.ChamberMap(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Slots, 1)
	assert.False(t, env.cache.has(key))

	// The next read is not raced and populates the cache.
	_, err = env.readModel.ChamberMap(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.True(t, env.cache.has(key))
}

func TestChamberMap_CanceledCallerDoesNotFailRebuild(t *testing.T) {
	env := newTestEnv(t)
	env.addSlot(t, 1, 1, 1, 1, 1000)

	ctx, cancel := context.WithCancel(env.ctx)
	cancel()
	snapshot, err := env.readModel.ChamberMap(ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Slots, 1)
	assert.True(t, env.cache.has(chamberMapKey(env.chamber.ID)))
}

func TestChamberMap_CacheFailureFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	env.addSlot(t, 1, 1, 1, 1, 1000)
	env.cache.getErr = errors.New("connection refused")

	snapshot, err := env.readModel.ChamberMap(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Slots, 1)
	assert.Equal(t, 1, env.recorder.failuresOn(channelCache))
}

func TestOccupancyReadModel(t *testing.T) {
	env := newTestEnv(t)
	a := env.addSlot(t, 1, 1, 1, 1, 1000)
	env.placedLot(t, "LOT-O", 4, 25, a)

	occ, err := env.readModel.Occupancy(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, occ.UsedWeight)
	assert.True(t, env.cache.has(chamberOccupancyKey(env.chamber.ID)))

	cached, err := env.readModel.Occupancy(env.ctx, env.chamber.ID)
	require.NoError(t, err)
	assert.Equal(t, *occ, *cached)
}

func TestProductView(t *testing.T) {
	env := newTestEnv(t)
	from := env.addSlot(t, 1, 1, 1, 1, 1000)
	to := env.addSlot(t, 1, 1, 2, 1, 1000)
	p := env.placedLot(t, "LOT-V", 10, 25, from)
	split, err := env.product.PartialMove(env.ctx, p.ID, 3, to.ID, env.operator, Options{})
	require.NoError(t, err)
	_, err = env.withdrawal.RequestWithdrawal(env.ctx, &CreateWithdrawalRequest{
		ProductID: p.ID, Kind: model.WithdrawalTotal,
	}, env.operator)
	require.NoError(t, err)

	view, err := env.readModel.ProductView(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingWithdrawal, view.Product.Status)
	require.NotNil(t, view.Slot)
	assert.Equal(t, from.ID, view.Slot.ID)
	require.NotNil(t, view.Chamber)
	assert.Equal(t, env.chamber.ID, view.Chamber.ID)
	require.Len(t, view.Splits, 1)
	assert.Equal(t, split.Split.ID, view.Splits[0].ID)
	assert.Len(t, view.Withdrawals, 1)
	assert.Equal(t, int64(2), view.MovementCount)
	assert.False(t, view.Expired)

	splitView, err := env.readModel.ProductView(env.ctx, split.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, splitView.Origin)
	assert.Equal(t, p.ID, splitView.Origin.ID)

	_, err = env.readModel.ProductView(env.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAdvisor_FailuresAreCountedNotReturned(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("hub full")
	env.cache.delErr = errors.New("redis down")
	slot := env.addSlot(t, 1, 1, 1, 1, 1000)
	p := env.newLot(t, "LOT-ADV", 10, 25)

	res, err := env.product.Place(env.ctx, p.ID, slot.ID, env.operator, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlaced, res.Product.Status)
	assert.True(t, env.reloadSlot(t, slot.ID).Occupied)

	assert.GreaterOrEqual(t, env.recorder.failuresOn(channelWebsocket), 1)
	assert.GreaterOrEqual(t, env.recorder.failuresOn(channelCache), 1)
}

func TestAdvisor_Committed(t *testing.T) {
	pub := &fakePublisher{}
	cache := newFakeCache()
	rec := newFakeRecorder()
	advisor := NewAdvisor(pub, cache, rec, nil)
	chamber := uuid.New()
	actor := Actor{ID: uuid.New(), Name: "Ana"}

	failures := advisor.Committed(context.Background(), Event{
		Action:     "product_placed",
		Actor:      actor,
		ChamberIDs: []uuid.UUID{chamber, chamber, uuid.Nil},
		Message:    "Ana placed lot",
	})
	assert.Empty(t, failures)
	assert.ElementsMatch(t, []string{chamberMapKey(chamber), chamberOccupancyKey(chamber)}, cache.deleted)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "product_placed", pub.messages[0].Action)
	require.NotNil(t, pub.messages[0].User)
	assert.Equal(t, actor.ID.String(), pub.messages[0].User.ID)

	pub.err = errors.New("boom")
	failures = advisor.Committed(context.Background(), Event{Action: "x"})
	require.Len(t, failures, 1)
	assert.Equal(t, channelWebsocket, failures[0].Channel)
	assert.Equal(t, 1, rec.failuresOn(channelWebsocket))

	var nilAdvisor *Advisor
	assert.Nil(t, nilAdvisor.Committed(context.Background(), Event{Action: "x"}))
	nilAdvisor.Failed(&AdvisoryError{Channel: "x"})
}
