package repository

import (
	"context"
	"errors"

	"saghat/internal/infrastructure/database"
	"saghat/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrDuplicatePayment = errors.New("本期已缴款，请勿重复提交")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.PeriodPayment) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(payment).Error
	if database.IsDuplicateKey(err) {
		return ErrDuplicatePayment
	}
	return err
}

func (r *PaymentRepository) CreatePortion(ctx context.Context, tx *gorm.DB, portion *model.LoanRepaymentPortion) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(portion).Error
}

func (r *PaymentRepository) GetByMemberAndPeriod(ctx context.Context, memberID int64, period model.Period) (*model.PeriodPayment, error) {
	var payment model.PeriodPayment
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND period_year = ? AND period_month = ?", memberID, period.Year, period.Month).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// PaidMemberIDs 指定期已缴款的成员集合
func (r *PaymentRepository) PaidMemberIDs(ctx context.Context, period model.Period) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.PeriodPayment{}).
		Where("period_year = ? AND period_month = ?", period.Year, period.Month).
		Pluck("member_id", &ids).Error
	if err != nil {
		return nil, err
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// LatestByMember 最近一期的缴款；期数唯一，按 (年, 月) 倒序取第一条即可
func (r *PaymentRepository) LatestByMember(ctx context.Context, memberID int64) (*model.PeriodPayment, error) {
	var payment model.PeriodPayment
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("period_year DESC").
		Order("period_month DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) CountPortionsByMember(ctx context.Context, memberID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.LoanRepaymentPortion{}).
		Where("member_id = ?", memberID).
		Count(&count).Error
	return count, err
}

// CountDistinctPaidPeriods 缴过款的不同期数
func (r *PaymentRepository) CountDistinctPaidPeriods(ctx context.Context, memberID int64) (int64, error) {
	return r.countDistinctPeriods(ctx, &model.PeriodPayment{}, memberID)
}

// CountDistinctRepaidPeriods 有还款记录的不同期数
func (r *PaymentRepository) CountDistinctRepaidPeriods(ctx context.Context, memberID int64) (int64, error) {
	return r.countDistinctPeriods(ctx, &model.LoanRepaymentPortion{}, memberID)
}

// 多列 COUNT(DISTINCT) 不是所有数据库都支持，先 DISTINCT 再在内存中计数
func (r *PaymentRepository) countDistinctPeriods(ctx context.Context, table interface{}, memberID int64) (int64, error) {
	var periods []struct {
		PeriodYear  int
		PeriodMonth int
	}
	err := r.db.WithContext(ctx).
		Model(table).
		Distinct("period_year", "period_month").
		Where("member_id = ?", memberID).
		Find(&periods).Error
	if err != nil {
		return 0, err
	}
	return int64(len(periods)), nil
}

// SumPortionsByAllocation 各笔分配已还金额，allocationIDs 为空时返回空 map
func (r *PaymentRepository) SumPortionsByAllocation(ctx context.Context, allocationIDs []int64) (map[int64]decimal.Decimal, error) {
	sums := make(map[int64]decimal.Decimal, len(allocationIDs))
	if len(allocationIDs) == 0 {
		return sums, nil
	}

	var portions []*model.LoanRepaymentPortion
	err := r.db.WithContext(ctx).
		Where("allocation_id IN ?", allocationIDs).
		Find(&portions).Error
	if err != nil {
		return nil, err
	}
	for _, p := range portions {
		sums[p.AllocationID] = sums[p.AllocationID].Add(p.Amount)
	}
	return sums, nil
}

func (r *PaymentRepository) ListPortionsByAllocation(ctx context.Context, allocationID int64) ([]*model.LoanRepaymentPortion, error) {
	var portions []*model.LoanRepaymentPortion
	err := r.db.WithContext(ctx).
		Where("allocation_id = ?", allocationID).
		Order("period_year ASC").
		Order("period_month ASC").
		Find(&portions).Error
	return portions, err
}

func (r *PaymentRepository) ListByMember(ctx context.Context, memberID int64, page, pageSize int) ([]*model.PeriodPayment, int64, error) {
	var payments []*model.PeriodPayment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PeriodPayment{}).Where("member_id = ?", memberID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("period_year DESC").
		Order("period_month DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payments).Error

	return payments, total, err
}
