package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"
	"go-seedvault/internal/ws"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv wires every engine service against a private in-memory database.
type testEnv struct {
	ctx context.Context
	db  *gorm.DB

	products    repository.ProductRepository
	slots       repository.SlotRepository
	chambers    repository.ChamberRepository
	seedTypes   repository.SeedTypeRepository
	movements   repository.MovementRepository
	withdrawals repository.WithdrawalRepository

	capacity   CapacityService
	ledger     MovementLedger
	product    ProductService
	withdrawal WithdrawalService
	readModel  ReadModelService
	chamberSvc ChamberService
	publisher  *fakePublisher
	recorder   *fakeRecorder
	cache      *fakeCache
	advisor    *Advisor
	policy     Policy
	chamber    *model.Chamber
	seedType   *model.SeedType
	operator   Actor
	supervisor Actor
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Privilege{}, &model.Role{}, &model.User{},
		&model.Chamber{}, &model.Slot{}, &model.SeedType{},
		&model.Product{}, &model.Movement{}, &model.WithdrawalRequest{},
	))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPolicy(t, DefaultPolicy())
}

func newTestEnvWithPolicy(t *testing.T, policy Policy) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	env := &testEnv{
		ctx:         context.Background(),
		db:          db,
		products:    repository.NewProductRepo(db),
		slots:       repository.NewSlotRepo(db),
		chambers:    repository.NewChamberRepo(db),
		seedTypes:   repository.NewSeedTypeRepo(db),
		movements:   repository.NewMovementRepo(db),
		withdrawals: repository.NewWithdrawalRepo(db),
		publisher:   &fakePublisher{},
		recorder:    newFakeRecorder(),
		cache:       newFakeCache(),
		policy:      policy,
	}
	env.advisor = NewAdvisor(env.publisher, env.cache, env.recorder, nil)
	env.capacity = NewCapacityService(db, env.slots, env.products, env.chambers, policy)
	env.ledger = NewMovementLedger(db, env.movements, env.products, env.advisor, nil)
	env.product = NewProductService(ProductServiceDeps{
		DB:          db,
		Products:    env.products,
		Slots:       env.slots,
		SeedTypes:   env.seedTypes,
		Withdrawals: env.withdrawals,
		Capacity:    env.capacity,
		Ledger:      env.ledger,
		Advisor:     env.advisor,
		Policy:      policy,
	})
	env.withdrawal = NewWithdrawalService(WithdrawalServiceDeps{
		DB:          db,
		Withdrawals: env.withdrawals,
		Products:    env.products,
		Slots:       env.slots,
		Ledger:      env.ledger,
		Advisor:     env.advisor,
		Policy:      policy,
	})
	env.readModel = NewReadModelService(ReadModelServiceDeps{
		DB:          db,
		Chambers:    env.chambers,
		Slots:       env.slots,
		Products:    env.products,
		Movements:   env.movements,
		Withdrawals: env.withdrawals,
		Capacity:    env.capacity,
		Advisor:     env.advisor,
	})
	env.chamberSvc = NewChamberService(db, env.chambers, env.slots, env.seedTypes, env.advisor, nil)

	env.operator = Actor{
		ID:           uuid.New(),
		Name:         "Olga Operator",
		Capabilities: model.DefaultRolePrivileges[model.RoleOperator],
	}
	env.supervisor = Actor{
		ID:           uuid.New(),
		Name:         "Sam Supervisor",
		Capabilities: model.DefaultRolePrivileges[model.RoleSupervisor],
	}

	env.chamber = &model.Chamber{Code: "CH-" + uuid.NewString()[:6], Name: "Cold room", Status: model.ChamberActive}
	require.NoError(t, env.chambers.Create(env.ctx, env.chamber))
	env.seedType = &model.SeedType{Code: "SOY-" + uuid.NewString()[:6], Name: "Soybean", Active: true}
	require.NoError(t, env.seedTypes.Create(env.ctx, env.seedType))
	return env
}

// addSlot creates a free slot at the given coordinates of the default chamber.
func (e *testEnv) addSlot(t *testing.T, block, side, row, level int, maxCapacity float64) *model.Slot {
	t.Helper()
	return e.addSlotIn(t, e.chamber.ID, block, side, row, level, maxCapacity)
}

func (e *testEnv) addSlotIn(t *testing.T, chamberID uuid.UUID, block, side, row, level int, maxCapacity float64) *model.Slot {
	t.Helper()
	slot := &model.Slot{
		ChamberID:   chamberID,
		Coordinates: model.Coordinates{Block: block, Side: side, Row: row, Level: level},
		MaxCapacity: maxCapacity,
		Version:     1,
	}
	require.NoError(t, e.slots.Create(e.db, slot))
	return slot
}

// newLot registers an unplaced lot of quantity units weighing weightPerUnit kg each.
func (e *testEnv) newLot(t *testing.T, lotCode string, quantity int, weightPerUnit float64) *model.Product {
	t.Helper()
	res, err := e.product.CreateProduct(e.ctx, &CreateProductRequest{
		LotCode:       lotCode,
		SeedTypeID:    e.seedType.ID,
		Quantity:      quantity,
		WeightPerUnit: weightPerUnit,
	}, e.operator)
	require.NoError(t, err)
	return res.Product
}

// placedLot registers a lot and places it into slot.
func (e *testEnv) placedLot(t *testing.T, lotCode string, quantity int, weightPerUnit float64, slot *model.Slot) *model.Product {
	t.Helper()
	p := e.newLot(t, lotCode, quantity, weightPerUnit)
	res, err := e.product.Place(e.ctx, p.ID, slot.ID, e.operator, Options{Force: true})
	require.NoError(t, err)
	return res.Product
}

func (e *testEnv) reloadSlot(t *testing.T, id uuid.UUID) *model.Slot {
	t.Helper()
	slot, err := e.slots.FindByID(e.ctx, id)
	require.NoError(t, err)
	return slot
}

func (e *testEnv) reloadProduct(t *testing.T, id uuid.UUID) *model.Product {
	t.Helper()
	p, err := e.products.FindByID(e.ctx, id)
	require.NoError(t, err)
	return p
}

func (e *testEnv) countMovements(t *testing.T, productID uuid.UUID) int64 {
	t.Helper()
	n, err := e.movements.CountByProduct(e.ctx, productID)
	require.NoError(t, err)
	return n
}

// requireOccupancyConsistent checks that every slot of the chamber is
// occupied exactly when one active product references it, with matching weight.
func (e *testEnv) requireOccupancyConsistent(t *testing.T) {
	t.Helper()
	slots, err := e.slots.FindByChamber(e.db, e.chamber.ID)
	require.NoError(t, err)
	for _, sl := range slots {
		var active []model.Product
		require.NoError(t, e.db.Where("slot_id = ? AND status IN ?", sl.ID, model.ActiveStatuses).Find(&active).Error)
		require.LessOrEqual(t, len(active), 1, "slot %s holds more than one active product", sl.Coordinates)
		require.Equal(t, len(active) == 1, sl.Occupied, "slot %s occupied flag", sl.Coordinates)
		want := 0.0
		if len(active) == 1 {
			want = active[0].TotalWeight
		}
		require.InDelta(t, want, sl.CurrentWeight, 0.0005, "slot %s weight", sl.Coordinates)
		require.LessOrEqual(t, sl.CurrentWeight, sl.MaxCapacity)
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []ws.Message
	err      error
}

func (p *fakePublisher) Publish(msg ws.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.Action
	}
	return out
}

type fakeRecorder struct {
	mu         sync.Mutex
	operations map[string]int
	failures   map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{operations: map[string]int{}, failures: map[string]int{}}
}

func (r *fakeRecorder) ObserveOperation(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[operation+"/"+outcome]++
}

func (r *fakeRecorder) AdvisoryFailure(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[channel]++
}

func (r *fakeRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operations[key]
}

func (r *fakeRecorder) failuresOn(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[channel]
}

// fakeCache stores values as-is; Get copies them through the same pointer type.
type fakeCache struct {
	mu      sync.Mutex
	values  map[string]interface{}
	deleted []string
	getErr  error
	delErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]interface{}{}}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, c.getErr
	}
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	switch d := dest.(type) {
	case *ChamberMap:
		*d = *(v.(*ChamberMap))
	case *Occupancy:
		*d = *(v.(*Occupancy))
	default:
		return false, errors.New("unsupported cache destination")
	}
	return true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return c.delErr
	}
	for _, k := range keys {
		delete(c.values, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}
