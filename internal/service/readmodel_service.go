package service

import (
	"context"
	"sync"
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// SlotView is a slot together with a summary of the lot it holds.
type SlotView struct {
	model.Slot
	Occupant *OccupantSummary `json:"occupant,omitempty"`
}

// ChamberMap is the snapshot consumed by dashboards and reports.
type ChamberMap struct {
	Chamber     model.Chamber `json:"chamber"`
	Slots       []SlotView    `json:"slots"`
	Occupancy   Occupancy     `json:"occupancy"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type ProductView struct {
	Product       model.Product             `json:"product"`
	Slot          *model.Slot               `json:"slot,omitempty"`
	Chamber       *model.Chamber            `json:"chamber,omitempty"`
	Origin        *model.Product            `json:"origin,omitempty"`
	Splits        []model.Product           `json:"splits"`
	Withdrawals   []model.WithdrawalRequest `json:"pending_withdrawals"`
	MovementCount int64                     `json:"movement_count"`
	Expired       bool                      `json:"expired"`
}

// ReadModelService assembles read-only snapshots. Results may lag committed
// writes by the cache TTL when invalidation fails.
type ReadModelService interface {
	ChamberMap(ctx context.Context, chamberID uuid.UUID) (*ChamberMap, error)
	ProductView(ctx context.Context, productID uuid.UUID) (*ProductView, error)
	Occupancy(ctx context.Context, chamberID uuid.UUID) (*Occupancy, error)
}

type ReadModelServiceDeps struct {
	DB          *gorm.DB
	Chambers    repository.ChamberRepository
	Slots       repository.SlotRepository
	Products    repository.ProductRepository
	Movements   repository.MovementRepository
	Withdrawals repository.WithdrawalRepository
	Capacity    CapacityService
	Advisor     *Advisor
	Logger      *zap.Logger
}

type readModelService struct {
	db          *gorm.DB
	chambers    repository.ChamberRepository
	slots       repository.SlotRepository
	products    repository.ProductRepository
	movements   repository.MovementRepository
	withdrawals repository.WithdrawalRepository
	capacity    CapacityService
	advisor     *Advisor
	cache       ReadModelCache
	log         *zap.Logger
	group       singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

func NewReadModelService(deps ReadModelServiceDeps) ReadModelService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &readModelService{
		db:          deps.DB,
		chambers:    deps.Chambers,
		slots:       deps.Slots,
		products:    deps.Products,
		movements:   deps.Movements,
		withdrawals: deps.Withdrawals,
		capacity:    deps.Capacity,
		advisor:     deps.Advisor,
		cache:       deps.Advisor.readCache(),
		log:         log,
		generations: make(map[string]uint64),
	}
	deps.Advisor.onInvalidate(s.invalidate)
	return s
}

func (s *readModelService) ChamberMap(ctx context.Context, chamberID uuid.UUID) (*ChamberMap, error) {
	key := chamberMapKey(chamberID)

	// 1. Cache first
	var cached ChamberMap
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	// 2. Rebuild once per key however many callers miss together, then
	// populate the cache unless a commit invalidated the key meanwhile
	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.rebuild(ctx, key, func(ctx context.Context) (interface{}, error) {
			return s.buildChamberMap(ctx, chamberID)
		})
	})
	if err != nil {
		return nil, err
	}
	return val.(*ChamberMap), nil
}

// rebuild runs build detached from the caller's cancellation, since other
// callers may be waiting on the same flight.
func (s *readModelService) rebuild(ctx context.Context, key string, build func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx = context.WithoutCancel(ctx)
	gen := s.generation(key)
	val, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if s.generation(key) == gen {
		s.store(ctx, key, val)
	}
	return val, nil
}

func (s *readModelService) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

// invalidate marks keys as changed by a commit. Snapshots that started
// building before the bump are returned but not cached.
func (s *readModelService) invalidate(keys []string) {
	s.mu.Lock()
	for _, k := range keys {
		s.generations[k]++
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.group.Forget(k)
	}
}

func (s *readModelService) buildChamberMap(ctx context.Context, chamberID uuid.UUID) (*ChamberMap, error) {
	db := s.db.WithContext(ctx)
	chamber, err := s.chambers.Load(db, chamberID)
	if err != nil {
		return nil, notFoundAs(err, ErrChamberNotFound)
	}
	slots, err := s.slots.FindByChamber(db, chamberID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(slots))
	for _, sl := range slots {
		if sl.Occupied {
			ids = append(ids, sl.ID)
		}
	}
	occupants, err := s.products.FindActiveBySlots(db, ids)
	if err != nil {
		return nil, err
	}
	bySlot := make(map[uuid.UUID]*OccupantSummary, len(occupants))
	for i := range occupants {
		if occupants[i].SlotID != nil {
			bySlot[*occupants[i].SlotID] = summarize(&occupants[i])
		}
	}

	views := make([]SlotView, len(slots))
	for i, sl := range slots {
		views[i] = SlotView{Slot: sl, Occupant: bySlot[sl.ID]}
	}
	return &ChamberMap{
		Chamber:     *chamber,
		Slots:       views,
		Occupancy:   summarizeOccupancy(chamberID, slots),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (s *readModelService) Occupancy(ctx context.Context, chamberID uuid.UUID) (*Occupancy, error) {
	key := chamberOccupancyKey(chamberID)
	var cached Occupancy
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}
	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.rebuild(ctx, key, func(ctx context.Context) (interface{}, error) {
			return s.capacity.ChamberOccupancy(ctx, chamberID)
		})
	})
	if err != nil {
		return nil, err
	}
	return val.(*Occupancy), nil
}

func (s *readModelService) ProductView(ctx context.Context, productID uuid.UUID) (*ProductView, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	view := &ProductView{Product: *product, Expired: product.IsExpired(time.Now())}

	if product.SlotID != nil {
		slot, err := s.slots.FindByID(ctx, *product.SlotID)
		if err != nil {
			return nil, notFoundAs(err, ErrSlotNotFound)
		}
		view.Slot = slot
		chamber, err := s.chambers.FindByID(ctx, slot.ChamberID)
		if err != nil {
			return nil, notFoundAs(err, ErrChamberNotFound)
		}
		view.Chamber = chamber
	}
	if product.Tracking.OriginProductID != nil {
		origin, err := s.products.FindByID(ctx, *product.Tracking.OriginProductID)
		if err == nil {
			view.Origin = origin
		}
	}
	if view.Splits, err = s.products.FindSplits(ctx, product.ID); err != nil {
		return nil, err
	}
	if view.Withdrawals, err = s.withdrawals.FindPendingByProduct(s.db.WithContext(ctx), product.ID); err != nil {
		return nil, err
	}
	if view.MovementCount, err = s.movements.CountByProduct(ctx, product.ID); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *readModelService) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.advisor.Failed(&AdvisoryError{Channel: channelCache, Event: "read " + key, Err: err})
		return false
	}
	return found
}

func (s *readModelService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.advisor.Failed(&AdvisoryError{Channel: channelCache, Event: "write " + key, Err: err})
	}
}
