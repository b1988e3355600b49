// Package repository는 배포 기록과 테넌트 자격 증명의 DB 접근을 담당합니다.
package repository

import (
	"context"
	"errors"
	"fmt"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/models"

	"gorm.io/gorm"
)

type DeploymentRepository struct {
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// Create는 배포 시도 한 건을 추가합니다. 기존 레코드는 수정하지 않습니다. (append-only)
func (r *DeploymentRepository) Create(ctx context.Context, d *models.Deployment) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("배포 기록 생성 실패: %w", err)
	}
	return nil
}

// Get은 (owner, repo_name)의 가장 최근 레코드를 반환합니다.
func (r *DeploymentRepository) Get(ctx context.Context, owner, repoName string) (*models.Deployment, error) {
	var d models.Deployment
	err := r.db.WithContext(ctx).
		Where("owner = ? AND repo_name = ?", owner, repoName).
		Order("created_at DESC").Order("id DESC").
		First(&d).Error
	if err != nil {
		//하나의 행도 발견 못하면 NotFound로 변환
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Errorf(errs.KindNotFound, "deployments.get", "no deployment for %s/%s", owner, repoName)
		}
		return nil, err
	}
	return &d, nil
}

// ListForOwner는 owner(GitHub login)의 레코드를 최신순으로 반환합니다.
func (r *DeploymentRepository) ListForOwner(ctx context.Context, owner string) ([]models.Deployment, error) {
	var ds []models.Deployment
	if err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at DESC").Order("id DESC").
		Find(&ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

// CountForPair는 (owner, repo_name)의 시도 횟수를 반환합니다.
func (r *DeploymentRepository) CountForPair(ctx context.Context, owner, repoName string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("owner = ? AND repo_name = ?", owner, repoName).
		Count(&n).Error
	return n, err
}
