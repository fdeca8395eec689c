package repository

import (
	"context"
	"errors"

	"saghat/internal/infrastructure/database"
	"saghat/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAllocationNotFound = errors.New("分配记录不存在")
	ErrDuplicatePeriod    = errors.New("该期已完成分配")
)

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Create 写入分配记录
//
// 【关键点】(period_year, period_month) 唯一索引冲突统一转换为 ErrDuplicatePeriod，
// 调用方应视为“本期已处理”，不要重试。
func (r *AllocationRepository) Create(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(allocation).Error
	if database.IsDuplicateKey(err) {
		return ErrDuplicatePeriod
	}
	return err
}

func (r *AllocationRepository) ExistsForPeriod(ctx context.Context, period model.Period) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Allocation{}).
		Where("period_year = ? AND period_month = ?", period.Year, period.Month).
		Count(&count).Error
	return count > 0, err
}

func (r *AllocationRepository) GetByPeriod(ctx context.Context, period model.Period) (*model.Allocation, error) {
	var allocation model.Allocation
	err := r.db.WithContext(ctx).
		Where("period_year = ? AND period_month = ?", period.Year, period.Month).
		First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return &allocation, nil
}

func (r *AllocationRepository) GetByNo(ctx context.Context, allocationNo string) (*model.Allocation, error) {
	var allocation model.Allocation
	err := r.db.WithContext(ctx).Where("allocation_no = ?", allocationNo).First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return &allocation, nil
}

// ListActiveByMember 成员历史上所有 ACTIVE 分配，最近的在前
// 每期只有一条分配，按 (年, 月) 倒序不会出现并列
func (r *AllocationRepository) ListActiveByMember(ctx context.Context, memberID int64) ([]*model.Allocation, error) {
	var allocations []*model.Allocation
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND state = ?", memberID, model.AllocationStateActive).
		Order("period_year DESC").
		Order("period_month DESC").
		Find(&allocations).Error
	return allocations, err
}

// ListActive 所有 ACTIVE 分配
func (r *AllocationRepository) ListActive(ctx context.Context) ([]*model.Allocation, error) {
	var allocations []*model.Allocation
	err := r.db.WithContext(ctx).
		Where("state = ?", model.AllocationStateActive).
		Order("id ASC").
		Find(&allocations).Error
	return allocations, err
}

// AllocationFilter 历史查询条件，零值表示不限制
type AllocationFilter struct {
	MemberID *int64
	YearGT   *int
	YearLT   *int
	MonthGT  *int
	MonthLT  *int
	State    string
}

func (r *AllocationRepository) List(ctx context.Context, filter AllocationFilter) ([]*model.Allocation, error) {
	query := r.db.WithContext(ctx).Model(&model.Allocation{})

	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.YearGT != nil {
		query = query.Where("period_year > ?", *filter.YearGT)
	}
	if filter.YearLT != nil {
		query = query.Where("period_year < ?", *filter.YearLT)
	}
	if filter.MonthGT != nil {
		query = query.Where("period_month > ?", *filter.MonthGT)
	}
	if filter.MonthLT != nil {
		query = query.Where("period_month < ?", *filter.MonthLT)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}

	var allocations []*model.Allocation
	err := query.
		Order("period_year DESC").
		Order("period_month DESC").
		Find(&allocations).Error
	return allocations, err
}
