package service

import (
	"testing"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// racingProducts simulates another writer committing a product update between
// the engine's read and its versioned write.
type racingProducts struct {
	repository.ProductRepository
}

func (r racingProducts) UpdateVersioned(tx *gorm.DB, product *model.Product, updatedBy string) error {
	if err := tx.Model(&model.Product{}).Where("id = ?", product.ID).
		UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
		return err
	}
	return r.ProductRepository.UpdateVersioned(tx, product, updatedBy)
}

// racingSlots does the same for slot occupation.
type racingSlots struct {
	repository.SlotRepository
}

func (r racingSlots) Occupy(tx *gorm.DB, slot *model.Slot, weight float64) error {
	if err := tx.Model(&model.Slot{}).Where("id = ?", slot.ID).
		UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
		return err
	}
	return r.SlotRepository.Occupy(tx, slot, weight)
}

func (e *testEnv) racingProductService(products repository.ProductRepository, slots repository.SlotRepository) ProductService {
	return NewProductService(ProductServiceDeps{
		DB:          e.db,
		Products:    products,
		Slots:       slots,
		SeedTypes:   e.seedTypes,
		Withdrawals: e.withdrawals,
		Capacity:    e.capacity,
		Ledger:      e.ledger,
		Advisor:     e.advisor,
		Policy:      e.policy,
	})
}

func TestPlace_VersionConflictRollsBackSlot(t *testing.T) {
	env := newTestEnv(t)
	slot := env.addSlot(t, 1, 1, 1, 1, 1000)
	p := env.newLot(t, "LOT-C", 10, 25)
	svc := env.racingProductService(racingProducts{env.products}, env.slots)

	_, err := svc.Place(env.ctx, p.ID, slot.ID, env.operator, Options{})
	require.ErrorIs(t, err, ErrConcurrentModification)
	var conflict *ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "product", conflict.Entity)
	assert.Equal(t, p.ID, conflict.ID)
	assert.Equal(t, int64(1), conflict.Expected)

	// The slot was occupied earlier in the same transaction; nothing survives.
	s := env.reloadSlot(t, slot.ID)
	assert.False(t, s.Occupied)
	assert.Zero(t, s.CurrentWeight)
	assert.Equal(t, int64(1), s.Version)

	reloaded := env.reloadProduct(t, p.ID)
	assert.Equal(t, model.StatusAwaitingPlacement, reloaded.Status)
	assert.Nil(t, reloaded.SlotID)
	assert.Equal(t, int64(1), reloaded.Version)
	assert.Zero(t, env.countMovements(t, p.ID))
	assert.Equal(t, 1, env.recorder.count("place/CONCURRENT_MODIFICATION"))
	assert.NotContains(t, env.publisher.actions(), "product_placed")
}

func TestMove_SlotConflictRestoresOrigin(t *testing.T) {
	env := newTestEnv(t)
	from := env.addSlot(t, 1, 1, 1, 1, 1000)
	to := env.addSlot(t, 1, 1, 2, 1, 1000)
	p := env.placedLot(t, "LOT-C", 10, 25, from)
	before := env.countMovements(t, p.ID)
	svc := env.racingProductService(env.products, racingSlots{env.slots})

	_, err := svc.Move(env.ctx, p.ID, to.ID, env.operator, Options{})
	var conflict *ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "slot", conflict.Entity)
	assert.Equal(t, to.ID, conflict.ID)

	// The origin release earlier in the transaction is rolled back as well.
	origin := env.reloadSlot(t, from.ID)
	assert.True(t, origin.Occupied)
	assert.Equal(t, 250.0, origin.CurrentWeight)
	assert.False(t, env.reloadSlot(t, to.ID).Occupied)

	reloaded := env.reloadProduct(t, p.ID)
	assert.Equal(t, from.ID, *reloaded.SlotID)
	assert.Equal(t, p.Version, reloaded.Version)
	assert.Equal(t, before, env.countMovements(t, p.ID))
	env.requireOccupancyConsistent(t)
}

func TestConfirmWithdrawal_VersionConflictKeepsRequestPending(t *testing.T) {
	env := newTestEnv(t)
	slot := env.addSlot(t, 1, 1, 1, 1, 1000)
	p := env.placedLot(t, "LOT-C", 10, 25, slot)
	req, err := env.withdrawal.RequestWithdrawal(env.ctx, &CreateWithdrawalRequest{
		ProductID: p.ID,
		Kind:      model.WithdrawalTotal,
	}, env.operator)
	require.NoError(t, err)
	before := env.countMovements(t, p.ID)

	svc := NewWithdrawalService(WithdrawalServiceDeps{
		DB:          env.db,
		Withdrawals: env.withdrawals,
		Products:    racingProducts{env.products},
		Slots:       env.slots,
		Ledger:      env.ledger,
		Advisor:     env.advisor,
		Policy:      env.policy,
	})
	_, err = svc.ConfirmWithdrawal(env.ctx, req.Request.ID, env.supervisor, "")
	require.ErrorIs(t, err, ErrConcurrentModification)

	// The slot release preceding the product write is undone.
	s := env.reloadSlot(t, slot.ID)
	assert.True(t, s.Occupied)
	assert.Equal(t, 250.0, s.CurrentWeight)

	stored, err := env.withdrawal.GetRequest(env.ctx, req.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, stored.Status)
	assert.Equal(t, model.StatusAwaitingWithdrawal, env.reloadProduct(t, p.ID).Status)
	assert.Equal(t, before, env.countMovements(t, p.ID))
	env.requireOccupancyConsistent(t)

	// The untouched engine still confirms the same request afterwards.
	_, err = env.withdrawal.ConfirmWithdrawal(env.ctx, req.Request.ID, env.supervisor, "")
	require.NoError(t, err)
}
