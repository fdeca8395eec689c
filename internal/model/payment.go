package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodPayment 成员每期的缴款记录
// 同一成员同一期只能有一条（联合唯一索引保证）
// Amount = MembershipFee + 本期还款（如有）
type PeriodPayment struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	MemberID      int64           `gorm:"uniqueIndex:uk_payment_member_period,priority:1;not null" json:"member_id"`
	PeriodYear    int             `gorm:"uniqueIndex:uk_payment_member_period,priority:2;index:idx_payment_period,priority:1;not null" json:"period_year"`
	PeriodMonth   int             `gorm:"uniqueIndex:uk_payment_member_period,priority:3;index:idx_payment_period,priority:2;not null" json:"period_month"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	MembershipFee decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"membership_fee"`
	ExternalRef   string          `gorm:"type:varchar(255)" json:"external_ref"` // 支付网关流水号，仅记录不校验
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PeriodPayment) TableName() string {
	return "period_payment"
}

func (p *PeriodPayment) Period() Period {
	return Period{Year: p.PeriodYear, Month: p.PeriodMonth}
}

// LoanRepaymentPortion 某次缴款中用于偿还借款的部分
// MemberID 和期数冗余自所属 PeriodPayment，在同一事务内写入，便于按成员统计
type LoanRepaymentPortion struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID    int64           `gorm:"uniqueIndex;not null" json:"payment_id"`
	AllocationID int64           `gorm:"index;not null" json:"allocation_id"`
	MemberID     int64           `gorm:"index;not null" json:"member_id"`
	PeriodYear   int             `gorm:"not null" json:"period_year"`
	PeriodMonth  int             `gorm:"not null" json:"period_month"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (LoanRepaymentPortion) TableName() string {
	return "loan_repayment_portion"
}
