package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrChamberCodeExists = errors.New("chamber code already exists")

// ChamberService maintains the physical layout: chambers, their slot grids
// and the seed-type directory.
type ChamberService interface {
	CreateChamber(ctx context.Context, req *CreateChamberRequest, actor Actor) (*model.Chamber, error)
	ListChambers(ctx context.Context) ([]model.Chamber, error)
	GetChamber(ctx context.Context, id uuid.UUID) (*model.Chamber, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChamberStatus, actor Actor) (*model.Chamber, error)
	GenerateSlots(ctx context.Context, chamberID uuid.UUID, req *GenerateSlotsRequest, actor Actor) ([]model.Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*model.Slot, error)

	CreateSeedType(ctx context.Context, req *CreateSeedTypeRequest, actor Actor) (*model.SeedType, error)
	ListSeedTypes(ctx context.Context) ([]model.SeedType, error)
	SetSeedTypeActive(ctx context.Context, id uuid.UUID, active bool, actor Actor) error
}

type CreateChamberRequest struct {
	Code        string   `json:"code" validate:"required,max=50"`
	Name        string   `json:"name" validate:"required,max=255"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity" validate:"omitempty,gte=0,lte=100"`
	Notes       string   `json:"notes"`
}

// MaxGridSlots caps the number of slots one GenerateSlots call may describe.
const MaxGridSlots = 10000

// GenerateSlotsRequest describes a rectangular grid of slots sharing one capacity.
type GenerateSlotsRequest struct {
	Blocks      int     `json:"blocks" validate:"gte=1,lte=100"`
	Sides       int     `json:"sides" validate:"gte=1,lte=10"`
	Rows        int     `json:"rows" validate:"gte=1,lte=100"`
	Levels      int     `json:"levels" validate:"gte=1,lte=50"`
	MaxCapacity float64 `json:"max_capacity" validate:"gt=0"`
}

func (r *GenerateSlotsRequest) size() int {
	return r.Blocks * r.Sides * r.Rows * r.Levels
}

type CreateSeedTypeRequest struct {
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=255"`
	Species     string `json:"species"`
	Description string `json:"description"`
}

type chamberService struct {
	db           *gorm.DB
	chamberRepo  repository.ChamberRepository
	slotRepo     repository.SlotRepository
	seedTypeRepo repository.SeedTypeRepository
	advisor      *Advisor
	log          *zap.Logger
}

func NewChamberService(db *gorm.DB, chamberRepo repository.ChamberRepository, slotRepo repository.SlotRepository, seedTypeRepo repository.SeedTypeRepository, advisor *Advisor, log *zap.Logger) ChamberService {
	if log == nil {
		log = zap.NewNop()
	}
	return &chamberService{
		db:           db,
		chamberRepo:  chamberRepo,
		slotRepo:     slotRepo,
		seedTypeRepo: seedTypeRepo,
		advisor:      advisor,
		log:          log,
	}
}

func (s *chamberService) CreateChamber(ctx context.Context, req *CreateChamberRequest, actor Actor) (*model.Chamber, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if existing, err := s.chamberRepo.FindByCode(ctx, req.Code); err == nil && existing != nil {
		return nil, ErrChamberCodeExists
	}

	chamber := &model.Chamber{
		Code:        req.Code,
		Name:        req.Name,
		Status:      model.ChamberActive,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Notes:       req.Notes,
	}
	chamber.CreatedBy = actor.auditID()
	chamber.UpdatedBy = actor.auditID()
	if err := s.chamberRepo.Create(ctx, chamber); err != nil {
		return nil, err
	}
	s.log.Info("chamber created", zap.String("chamber_id", chamber.ID.String()), zap.String("code", chamber.Code))
	return chamber, nil
}

func (s *chamberService) ListChambers(ctx context.Context) ([]model.Chamber, error) {
	return s.chamberRepo.FindAll(ctx)
}

func (s *chamberService) GetChamber(ctx context.Context, id uuid.UUID) (*model.Chamber, error) {
	chamber, err := s.chamberRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrChamberNotFound)
	}
	return chamber, nil
}

func (s *chamberService) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChamberStatus, actor Actor) (*model.Chamber, error) {
	switch status {
	case model.ChamberActive, model.ChamberInactive, model.ChamberMaintenance:
	default:
		return nil, invalid("unknown chamber status %q", status)
	}
	if err := s.chamberRepo.UpdateStatus(ctx, id, status, actor.auditID()); err != nil {
		return nil, notFoundAs(err, ErrChamberNotFound)
	}
	chamber, err := s.GetChamber(ctx, id)
	if err != nil {
		return nil, err
	}
	s.advisor.Committed(ctx, Event{
		Action:     "chamber_status_changed",
		Actor:      actor,
		ChamberIDs: []uuid.UUID{id},
		Data:       chamber,
		Message:    fmt.Sprintf("%s set chamber %s to %s", actor.Name, chamber.Code, status),
	})
	return chamber, nil
}

// GenerateSlots adds every grid coordinate the chamber does not have yet.
// Existing slots are left untouched, so the call can be used to extend a grid.
func (s *chamberService) GenerateSlots(ctx context.Context, chamberID uuid.UUID, req *GenerateSlotsRequest, actor Actor) ([]model.Slot, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if n := req.size(); n > MaxGridSlots {
		return nil, invalid("grid of %d slots exceeds the limit of %d per request", n, MaxGridSlots)
	}
	start := time.Now()

	var created []model.Slot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.chamberRepo.Load(tx, chamberID); err != nil {
			return notFoundAs(err, ErrChamberNotFound)
		}
		existing, err := s.slotRepo.FindByChamber(tx, chamberID)
		if err != nil {
			return err
		}
		taken := make(map[model.Coordinates]bool, len(existing))
		for _, sl := range existing {
			taken[sl.Coordinates] = true
		}

		for b := 1; b <= req.Blocks; b++ {
			for sd := 1; sd <= req.Sides; sd++ {
				for r := 1; r <= req.Rows; r++ {
					for l := 1; l <= req.Levels; l++ {
						c := model.Coordinates{Block: b, Side: sd, Row: r, Level: l}
						if taken[c] {
							continue
						}
						slot := model.Slot{
							ChamberID:   chamberID,
							Coordinates: c,
							MaxCapacity: model.RoundWeight(req.MaxCapacity),
							Version:     1,
						}
						slot.CreatedBy = actor.auditID()
						slot.UpdatedBy = actor.auditID()
						created = append(created, slot)
					}
				}
			}
		}
		if len(created) == 0 {
			return nil
		}
		return s.slotRepo.CreateBatch(tx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("slots generated",
		zap.String("chamber_id", chamberID.String()),
		zap.Int("created", len(created)),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.advisor.Committed(ctx, Event{
		Action:     "slots_generated",
		Actor:      actor,
		ChamberIDs: []uuid.UUID{chamberID},
		Data:       map[string]interface{}{"chamber_id": chamberID, "created": len(created)},
		Message:    fmt.Sprintf("%s added %d slots", actor.Name, len(created)),
	})
	return created, nil
}

func (s *chamberService) GetSlot(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.slotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrSlotNotFound)
	}
	return slot, nil
}

func (s *chamberService) CreateSeedType(ctx context.Context, req *CreateSeedTypeRequest, actor Actor) (*model.SeedType, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	seedType := &model.SeedType{
		Code:        req.Code,
		Name:        req.Name,
		Species:     req.Species,
		Description: req.Description,
		Active:      true,
	}
	seedType.CreatedBy = actor.auditID()
	seedType.UpdatedBy = actor.auditID()
	if err := s.seedTypeRepo.Create(ctx, seedType); err != nil {
		return nil, err
	}
	return seedType, nil
}

func (s *chamberService) ListSeedTypes(ctx context.Context) ([]model.SeedType, error) {
	return s.seedTypeRepo.FindAll(ctx)
}

func (s *chamberService) SetSeedTypeActive(ctx context.Context, id uuid.UUID, active bool, actor Actor) error {
	if err := s.seedTypeRepo.SetActive(ctx, id, active, actor.auditID()); err != nil {
		return notFoundAs(err, ErrSeedTypeNotFound)
	}
	return nil
}
