package repository

import (
	"context"
	"fmt"
	"time"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WithdrawalRepository interface {
	Create(tx *gorm.DB, request *model.WithdrawalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error)
	FindAll(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error)
	Load(tx *gorm.DB, id uuid.UUID) (*model.WithdrawalRequest, error)
	FindPendingByProduct(tx *gorm.DB, productID uuid.UUID) ([]model.WithdrawalRequest, error)

	// Resolve moves a PENDING request to its final status. It matches only
	// while the stored status is still PENDING.
	Resolve(tx *gorm.DB, request *model.WithdrawalRequest, updatedBy string) error
}

type withdrawalRepo struct {
	db *gorm.DB
}

func NewWithdrawalRepo(db *gorm.DB) WithdrawalRepository {
	return &withdrawalRepo{db}
}

func (r *withdrawalRepo) Create(tx *gorm.DB, request *model.WithdrawalRequest) error {
	if err := tx.Create(request).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

func (r *withdrawalRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	var request model.WithdrawalRequest
	if err := r.db.WithContext(ctx).Preload("Product").First(&request, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &request, nil
}

func (r *withdrawalRepo) FindAll(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error) {
	query := r.db.WithContext(ctx).Preload("Product")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []model.WithdrawalRequest
	if err := query.Order("requested_at DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	return requests, nil
}

func (r *withdrawalRepo) Load(tx *gorm.DB, id uuid.UUID) (*model.WithdrawalRequest, error) {
	var request model.WithdrawalRequest
	if err := tx.First(&request, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &request, nil
}

func (r *withdrawalRepo) FindPendingByProduct(tx *gorm.DB, productID uuid.UUID) ([]model.WithdrawalRequest, error) {
	var requests []model.WithdrawalRequest
	err := tx.Where("product_id = ? AND status = ?", productID, model.WithdrawalPending).Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending withdrawals: %w", err)
	}
	return requests, nil
}

func (r *withdrawalRepo) Resolve(tx *gorm.DB, request *model.WithdrawalRequest, updatedBy string) error {
	result := tx.Model(&model.WithdrawalRequest{}).
		Where("id = ? AND status = ?", request.ID, model.WithdrawalPending).
		Updates(map[string]interface{}{
			"status":       request.Status,
			"confirmed_by": request.ConfirmedBy,
			"canceled_by":  request.CanceledBy,
			"resolved_at":  request.ResolvedAt,
			"notes":        request.Notes,
			"reason":       request.Reason,
			"updated_by":   updatedBy,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve withdrawal request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}
