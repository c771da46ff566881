package service

import (
	"context"
	"errors"
	"sort"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CapacityWarning flags a placement that fits but lands inside the safety margin.
type CapacityWarning struct {
	SlotID      uuid.UUID `json:"slot_id"`
	Required    float64   `json:"required"`
	Threshold   float64   `json:"threshold"`
	MaxCapacity float64   `json:"max_capacity"`
	Margin      float64   `json:"margin"`
}

type CapacityCheck struct {
	Slot      *model.Slot      `json:"slot"`
	Available float64          `json:"available"`
	Warning   *CapacityWarning `json:"warning,omitempty"`
}

type AdjacentSlot struct {
	Slot     model.Slot       `json:"slot"`
	Distance int              `json:"distance"`
	Occupant *OccupantSummary `json:"occupant,omitempty"`
}

type Adjacency struct {
	Origin    model.Slot     `json:"origin"`
	Radius    int            `json:"radius"`
	Occupied  []AdjacentSlot `json:"occupied"`
	Available []AdjacentSlot `json:"available"`
}

type Occupancy struct {
	ChamberID     uuid.UUID `json:"chamber_id"`
	TotalSlots    int       `json:"total_slots"`
	OccupiedSlots int       `json:"occupied_slots"`
	FreeSlots     int       `json:"free_slots"`
	UsedWeight    float64   `json:"used_weight"`
	Capacity      float64   `json:"capacity"`
	Utilization   float64   `json:"utilization"`
}

type CapacityService interface {
	ValidateCapacity(ctx context.Context, slotID uuid.UUID, requiredWeight float64) (*CapacityCheck, error)
	ValidateCapacityTx(tx *gorm.DB, slotID uuid.UUID, requiredWeight float64) (*CapacityCheck, error)

	// LoadTarget loads a placement target and checks that its chamber accepts placements.
	LoadTarget(tx *gorm.DB, slotID uuid.UUID) (*model.Slot, error)
	// CheckSlot checks occupancy and capacity of a slot returned by LoadTarget.
	CheckSlot(tx *gorm.DB, slot *model.Slot, requiredWeight float64) (*CapacityCheck, error)
	CheckHeadroom(tx *gorm.DB, slot *model.Slot, addedWeight float64) error

	Alternatives(ctx context.Context, slotID uuid.UUID, requiredWeight float64) ([]SlotSuggestion, error)
	FindAdjacent(ctx context.Context, slotID uuid.UUID, radius int) (*Adjacency, error)
	ChamberOccupancy(ctx context.Context, chamberID uuid.UUID) (*Occupancy, error)
}

type capacityService struct {
	db          *gorm.DB
	slotRepo    repository.SlotRepository
	productRepo repository.ProductRepository
	chamberRepo repository.ChamberRepository
	policy      Policy
}

func NewCapacityService(db *gorm.DB, slotRepo repository.SlotRepository, productRepo repository.ProductRepository, chamberRepo repository.ChamberRepository, policy Policy) CapacityService {
	return &capacityService{
		db:          db,
		slotRepo:    slotRepo,
		productRepo: productRepo,
		chamberRepo: chamberRepo,
		policy:      policy,
	}
}

func (s *capacityService) ValidateCapacity(ctx context.Context, slotID uuid.UUID, requiredWeight float64) (*CapacityCheck, error) {
	return s.ValidateCapacityTx(s.db.WithContext(ctx), slotID, requiredWeight)
}

func (s *capacityService) ValidateCapacityTx(tx *gorm.DB, slotID uuid.UUID, requiredWeight float64) (*CapacityCheck, error) {
	slot, err := s.LoadTarget(tx, slotID)
	if err != nil {
		return nil, err
	}
	return s.CheckSlot(tx, slot, requiredWeight)
}

func (s *capacityService) LoadTarget(tx *gorm.DB, slotID uuid.UUID) (*model.Slot, error) {
	slot, err := s.slotRepo.Load(tx, slotID)
	if err != nil {
		return nil, notFoundAs(err, ErrSlotNotFound)
	}
	chamber, err := s.chamberRepo.Load(tx, slot.ChamberID)
	if err != nil {
		return nil, notFoundAs(err, ErrChamberNotFound)
	}
	if !chamber.IsActive() {
		return nil, ErrChamberInactive
	}
	return slot, nil
}

func (s *capacityService) CheckSlot(tx *gorm.DB, slot *model.Slot, requiredWeight float64) (*CapacityCheck, error) {
	if requiredWeight < 0 {
		return nil, ErrInvalidQuantity
	}
	if slot.Occupied {
		occErr := &SlotOccupiedError{SlotID: slot.ID}
		occupant, err := s.productRepo.FindActiveBySlot(tx, slot.ID)
		if err == nil {
			occErr.Occupant = summarize(occupant)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, occErr
	}

	required := model.RoundWeight(requiredWeight)
	available := slot.Available()
	if required > available {
		alts, err := s.alternatives(tx, slot, required)
		if err != nil {
			return nil, err
		}
		return nil, &InsufficientCapacityError{
			SlotID:       slot.ID,
			Required:     required,
			Available:    available,
			Deficit:      model.RoundWeight(required - available),
			Alternatives: alts,
		}
	}

	check := &CapacityCheck{Slot: slot, Available: available}
	threshold := model.RoundWeight(slot.MaxCapacity * (1 - s.policy.SafetyMargin))
	if model.RoundWeight(slot.CurrentWeight+required) > threshold {
		check.Warning = &CapacityWarning{
			SlotID:      slot.ID,
			Required:    required,
			Threshold:   threshold,
			MaxCapacity: slot.MaxCapacity,
			Margin:      s.policy.SafetyMargin,
		}
	}
	return check, nil
}

func (s *capacityService) CheckHeadroom(tx *gorm.DB, slot *model.Slot, addedWeight float64) error {
	if addedWeight <= 0 {
		return ErrInvalidQuantity
	}
	added := model.RoundWeight(addedWeight)
	available := slot.Available()
	if added <= available {
		return nil
	}
	alts, err := s.alternatives(tx, slot, model.RoundWeight(slot.CurrentWeight+added))
	if err != nil {
		return err
	}
	return &InsufficientCapacityError{
		SlotID:       slot.ID,
		Required:     added,
		Available:    available,
		Deficit:      model.RoundWeight(added - available),
		Alternatives: alts,
	}
}

func (s *capacityService) Alternatives(ctx context.Context, slotID uuid.UUID, requiredWeight float64) ([]SlotSuggestion, error) {
	db := s.db.WithContext(ctx)
	slot, err := s.slotRepo.Load(db, slotID)
	if err != nil {
		return nil, notFoundAs(err, ErrSlotNotFound)
	}
	return s.alternatives(db, slot, model.RoundWeight(requiredWeight))
}

func (s *capacityService) alternatives(tx *gorm.DB, slot *model.Slot, required float64) ([]SlotSuggestion, error) {
	slots, err := s.slotRepo.FindAlternatives(tx, slot.ChamberID, slot.ID, required, s.policy.AlternativesLimit)
	if err != nil {
		return nil, err
	}
	out := make([]SlotSuggestion, len(slots))
	for i, alt := range slots {
		out[i] = SlotSuggestion{SlotID: alt.ID, Coordinates: alt.Coordinates, MaxCapacity: alt.MaxCapacity}
	}
	return out, nil
}

func (s *capacityService) FindAdjacent(ctx context.Context, slotID uuid.UUID, radius int) (*Adjacency, error) {
	if radius <= 0 {
		radius = s.policy.AdjacencyRadius
	}
	db := s.db.WithContext(ctx)

	origin, err := s.slotRepo.Load(db, slotID)
	if err != nil {
		return nil, notFoundAs(err, ErrSlotNotFound)
	}
	slots, err := s.slotRepo.FindByChamber(db, origin.ChamberID)
	if err != nil {
		return nil, err
	}

	var near []AdjacentSlot
	var occupiedIDs []uuid.UUID
	for _, sl := range slots {
		if sl.ID == origin.ID {
			continue
		}
		d := origin.Coordinates.Distance(sl.Coordinates)
		if d > radius {
			continue
		}
		near = append(near, AdjacentSlot{Slot: sl, Distance: d})
		if sl.Occupied {
			occupiedIDs = append(occupiedIDs, sl.ID)
		}
	}

	occupants, err := s.productRepo.FindActiveBySlots(db, occupiedIDs)
	if err != nil {
		return nil, err
	}
	bySlot := make(map[uuid.UUID]*OccupantSummary, len(occupants))
	for i := range occupants {
		if occupants[i].SlotID != nil {
			bySlot[*occupants[i].SlotID] = summarize(&occupants[i])
		}
	}

	sort.SliceStable(near, func(i, j int) bool {
		if near[i].Distance != near[j].Distance {
			return near[i].Distance < near[j].Distance
		}
		return coordinatesLess(near[i].Slot.Coordinates, near[j].Slot.Coordinates)
	})

	result := &Adjacency{Origin: *origin, Radius: radius, Occupied: []AdjacentSlot{}, Available: []AdjacentSlot{}}
	for _, a := range near {
		if a.Slot.Occupied {
			a.Occupant = bySlot[a.Slot.ID]
			result.Occupied = append(result.Occupied, a)
		} else {
			result.Available = append(result.Available, a)
		}
	}
	return result, nil
}

func (s *capacityService) ChamberOccupancy(ctx context.Context, chamberID uuid.UUID) (*Occupancy, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.chamberRepo.Load(db, chamberID); err != nil {
		return nil, notFoundAs(err, ErrChamberNotFound)
	}
	slots, err := s.slotRepo.FindByChamber(db, chamberID)
	if err != nil {
		return nil, err
	}
	occ := summarizeOccupancy(chamberID, slots)
	return &occ, nil
}

func summarizeOccupancy(chamberID uuid.UUID, slots []model.Slot) Occupancy {
	occ := Occupancy{ChamberID: chamberID, TotalSlots: len(slots)}
	for _, sl := range slots {
		if sl.Occupied {
			occ.OccupiedSlots++
		}
		occ.UsedWeight += sl.CurrentWeight
		occ.Capacity += sl.MaxCapacity
	}
	occ.FreeSlots = occ.TotalSlots - occ.OccupiedSlots
	occ.UsedWeight = model.RoundWeight(occ.UsedWeight)
	occ.Capacity = model.RoundWeight(occ.Capacity)
	if occ.Capacity > 0 {
		occ.Utilization = occ.UsedWeight / occ.Capacity
	}
	return occ
}

func summarize(p *model.Product) *OccupantSummary {
	return &OccupantSummary{
		ProductID:   p.ID,
		LotCode:     p.LotCode,
		TotalWeight: p.TotalWeight,
		Status:      p.Status,
	}
}

func coordinatesLess(a, b model.Coordinates) bool {
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	if a.Side != b.Side {
		return a.Side < b.Side
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Level < b.Level
}
