package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundConfigID fund_config 表只有这一行
const FundConfigID = 1

// FundConfig 基金全局参数（单例）
type FundConfig struct {
	ID                     int64           `gorm:"primaryKey" json:"-"`
	MinPeriodicFee         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"min_periodic_fee"`
	MaxRepaymentPeriods    int             `gorm:"not null" json:"max_repayment_periods"`
	MinLoanRepaymentAmount decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"min_loan_repayment_amount"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FundConfig) TableName() string {
	return "fund_config"
}
