package service

import (
	"context"
	"fmt"

	"saghat/internal/config"
	"saghat/internal/model"
	"saghat/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FundDefaults 把配置文件中的基金默认值转换为模型
// 取值已在 config.Validate 中校验过
func FundDefaults(cfg *config.FundConfig) model.FundConfig {
	fee, _ := decimal.NewFromString(cfg.MinPeriodicFee)
	repayment, _ := decimal.NewFromString(cfg.MinLoanRepaymentAmount)
	return model.FundConfig{
		ID:                     model.FundConfigID,
		MinPeriodicFee:         fee,
		MaxRepaymentPeriods:    cfg.MaxRepaymentPeriods,
		MinLoanRepaymentAmount: repayment,
	}
}

func newFundConfigRepository(db *gorm.DB, cfg *config.Config) *repository.FundConfigRepository {
	return repository.NewFundConfigRepository(db, FundDefaults(&cfg.Business.Fund))
}

type FundService struct {
	fundConfigRepo *repository.FundConfigRepository
}

func NewFundService(db *gorm.DB, cfg *config.Config) *FundService {
	return &FundService{
		fundConfigRepo: newFundConfigRepository(db, cfg),
	}
}

type UpdateFundConfigRequest struct {
	MinPeriodicFee         decimal.Decimal `json:"min_periodic_fee"`
	MaxRepaymentPeriods    int             `json:"max_repayment_periods"`
	MinLoanRepaymentAmount decimal.Decimal `json:"min_loan_repayment_amount"`
}

func (s *FundService) Get(ctx context.Context) (*model.FundConfig, error) {
	return s.fundConfigRepo.Get(ctx, nil)
}

// Update 覆盖基金参数
// 已存在的分配沿用创建时复制的最低还款额，不受影响
func (s *FundService) Update(ctx context.Context, req *UpdateFundConfigRequest) (*model.FundConfig, error) {
	if req.MinPeriodicFee.IsNegative() || req.MinLoanRepaymentAmount.IsNegative() || req.MaxRepaymentPeriods <= 0 {
		return nil, ErrInvalidFundConfig
	}

	cfg := &model.FundConfig{
		MinPeriodicFee:         req.MinPeriodicFee,
		MaxRepaymentPeriods:    req.MaxRepaymentPeriods,
		MinLoanRepaymentAmount: req.MinLoanRepaymentAmount,
	}
	if err := s.fundConfigRepo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("保存基金参数失败: %w", err)
	}
	return cfg, nil
}
