package service

import (
	"context"
	"fmt"

	"saghat/internal/model"
	"saghat/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MemberSnapshot 一个成员在某一时刻的历史快照
type MemberSnapshot struct {
	History model.MemberHistory
	// HasActiveAllocation 是否持有过 ACTIVE 分配，还清与否都算
	HasActiveAllocation bool
	// Outstanding 尚未还清的 ACTIVE 分配，没有则为 nil，只用于还款规则
	Outstanding *model.Allocation
	// Remaining Outstanding 的剩余待还金额
	Remaining decimal.Decimal
}

// HasActiveLoan 分配资格判断用：ACTIVE 状态不随还款改变，还清后仍不能再次中选
func (s *MemberSnapshot) HasActiveLoan() bool {
	return s.HasActiveAllocation
}

// HistoryLoader 汇总打分和资格判断需要的成员历史
type HistoryLoader struct {
	paymentRepo    *repository.PaymentRepository
	allocationRepo *repository.AllocationRepository
}

func NewHistoryLoader(db *gorm.DB) *HistoryLoader {
	return &HistoryLoader{
		paymentRepo:    repository.NewPaymentRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
	}
}

// Load 读取成员的缴款、还款和分配历史
//
// 【关键点】
//   - HasActiveAllocation：存在任一 ACTIVE 分配，决定分配资格
//   - Outstanding：还款合计 < 分配金额的 ACTIVE 分配，决定缴款时是否必须还款
func (l *HistoryLoader) Load(ctx context.Context, memberID int64) (*MemberSnapshot, error) {
	snapshot := &MemberSnapshot{}
	h := &snapshot.History

	latest, err := l.paymentRepo.LatestByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("查询最近缴款失败: %w", err)
	}
	if latest != nil {
		amount := latest.Amount
		h.LastPaymentAmount = &amount
	}

	if h.RepaymentCount, err = l.paymentRepo.CountPortionsByMember(ctx, memberID); err != nil {
		return nil, fmt.Errorf("统计还款笔数失败: %w", err)
	}
	if h.PaidPeriods, err = l.paymentRepo.CountDistinctPaidPeriods(ctx, memberID); err != nil {
		return nil, fmt.Errorf("统计缴款期数失败: %w", err)
	}
	if h.RepaidPeriods, err = l.paymentRepo.CountDistinctRepaidPeriods(ctx, memberID); err != nil {
		return nil, fmt.Errorf("统计还款期数失败: %w", err)
	}

	// 最近的在前
	allocations, err := l.allocationRepo.ListActiveByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("查询分配历史失败: %w", err)
	}
	if len(allocations) == 0 {
		return snapshot, nil
	}

	ids := make([]int64, 0, len(allocations))
	total := decimal.Zero
	for _, a := range allocations {
		ids = append(ids, a.ID)
		if a.Amount != nil {
			total = total.Add(*a.Amount)
		}
	}
	snapshot.HasActiveAllocation = true
	h.ActiveAllocationTotal = total
	h.ActiveAllocationCount = int64(len(allocations))
	if allocations[0].Amount != nil {
		last := *allocations[0].Amount
		h.LastActiveAllocationAmount = &last
	}

	repaid, err := l.paymentRepo.SumPortionsByAllocation(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("汇总还款失败: %w", err)
	}
	for _, a := range allocations {
		if a.Amount == nil {
			continue
		}
		remaining := a.Amount.Sub(repaid[a.ID])
		if remaining.IsPositive() {
			snapshot.Outstanding = a
			snapshot.Remaining = remaining
			break
		}
	}

	return snapshot, nil
}
