package service

import (
	"context"
	"fmt"

	"saghat/internal/model"
	"saghat/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AllocationService struct {
	allocationRepo *repository.AllocationRepository
	paymentRepo    *repository.PaymentRepository
}

func NewAllocationService(db *gorm.DB) *AllocationService {
	return &AllocationService{
		allocationRepo: repository.NewAllocationRepository(db),
		paymentRepo:    repository.NewPaymentRepository(db),
	}
}

// AllocationView 分配记录及还款进度；UNALLOCATED 的 TotalRepaid 为 0、Remaining 为 nil
type AllocationView struct {
	*model.Allocation
	AuditLog    model.AuditLog                `json:"audit_log"`
	TotalRepaid decimal.Decimal               `json:"total_repaid"`
	Remaining   *decimal.Decimal              `json:"remaining"`
	IsSettled   bool                          `json:"is_settled"`
	Repayments  []*model.LoanRepaymentPortion `json:"repayments,omitempty"`
}

func (s *AllocationService) GetByPeriod(ctx context.Context, period model.Period) (*AllocationView, error) {
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}
	allocation, err := s.allocationRepo.GetByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	return s.detailView(ctx, allocation)
}

func (s *AllocationService) GetByNo(ctx context.Context, allocationNo string) (*AllocationView, error) {
	allocation, err := s.allocationRepo.GetByNo(ctx, allocationNo)
	if err != nil {
		return nil, err
	}
	return s.detailView(ctx, allocation)
}

// detailView 单条查询附带还款明细
func (s *AllocationService) detailView(ctx context.Context, allocation *model.Allocation) (*AllocationView, error) {
	views, err := s.views(ctx, []*model.Allocation{allocation})
	if err != nil {
		return nil, err
	}
	view := views[0]
	if allocation.IsActive() {
		view.Repayments, err = s.paymentRepo.ListPortionsByAllocation(ctx, allocation.ID)
		if err != nil {
			return nil, fmt.Errorf("查询还款明细失败: %w", err)
		}
	}
	return view, nil
}

// History 按条件查询历史分配，最近的在前
func (s *AllocationService) History(ctx context.Context, filter repository.AllocationFilter) ([]*AllocationView, error) {
	allocations, err := s.allocationRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("查询分配历史失败: %w", err)
	}
	return s.views(ctx, allocations)
}

func (s *AllocationService) views(ctx context.Context, allocations []*model.Allocation) ([]*AllocationView, error) {
	ids := make([]int64, 0, len(allocations))
	for _, a := range allocations {
		if a.IsActive() {
			ids = append(ids, a.ID)
		}
	}
	repaid, err := s.paymentRepo.SumPortionsByAllocation(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("汇总还款失败: %w", err)
	}

	views := make([]*AllocationView, 0, len(allocations))
	for _, a := range allocations {
		view := &AllocationView{
			Allocation:  a,
			AuditLog:    a.Log(),
			TotalRepaid: repaid[a.ID],
		}
		if a.Amount != nil {
			remaining := a.Amount.Sub(view.TotalRepaid)
			view.Remaining = &remaining
			view.IsSettled = !remaining.IsPositive()
		}
		views = append(views, view)
	}
	return views, nil
}
