package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/models"

	"gorm.io/gorm"
)

type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindByOwner는 ownerID의 자격 증명을 반환합니다. 없으면 (nil, nil).
func (r *IdentityRepository) FindByOwner(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	var id models.TenantIdentity
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// Insert는 새 자격 증명을 저장합니다. owner_id 유니크 제약 위반은 KindConflict로 반환합니다.
func (r *IdentityRepository) Insert(ctx context.Context, id *models.TenantIdentity) error {
	err := r.db.WithContext(ctx).Create(id).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return errs.Errorf(errs.KindConflict, "identities.insert", "identity for owner %s already exists", id.OwnerID)
	}
	return fmt.Errorf("자격 증명 저장 실패: %w", err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
