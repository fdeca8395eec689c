package repository

import (
	"context"
	"errors"

	"saghat/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FundConfigRepository struct {
	db       *gorm.DB
	defaults model.FundConfig
}

// NewFundConfigRepository defaults 用于首次读取时初始化单例行
func NewFundConfigRepository(db *gorm.DB, defaults model.FundConfig) *FundConfigRepository {
	defaults.ID = model.FundConfigID
	return &FundConfigRepository{db: db, defaults: defaults}
}

// Get 读取单例配置，不存在时以默认值创建
func (r *FundConfigRepository) Get(ctx context.Context, tx *gorm.DB) (*model.FundConfig, error) {
	if tx == nil {
		tx = r.db
	}

	var cfg model.FundConfig
	err := tx.WithContext(ctx).Where("id = ?", model.FundConfigID).First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seed := r.defaults
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&seed).Error
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).Where("id = ?", model.FundConfigID).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save 覆盖单例配置
func (r *FundConfigRepository) Save(ctx context.Context, cfg *model.FundConfig) error {
	cfg.ID = model.FundConfigID
	return r.db.WithContext(ctx).Save(cfg).Error
}
