package repository

import (
	"Beacon/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type MerchantRepo interface {
	GetByAppNameID(ctx context.Context, appNameID int64) (*model.Merchant, error)
}

type MerchantRepoImpl struct {
	db *gorm.DB
}

func NewMerchantRepo(db *gorm.DB) MerchantRepo {
	return &MerchantRepoImpl{db: db}
}

func (s *MerchantRepoImpl) GetByAppNameID(ctx context.Context, appNameID int64) (*model.Merchant, error) {
	merchant := &model.Merchant{}
	result := s.db.WithContext(ctx).
		Where("app_name_id = ?", appNameID).
		First(merchant)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return merchant, nil
}
