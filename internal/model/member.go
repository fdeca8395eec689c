package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member 基金成员
//
// Balance 是历次会费的累计，只增不减；
// LoanRequestAmount 为 0 表示本期不参与分配；
// IsMain 的成员跳过“申请额不超过余额”的检查。
type Member struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Username          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Balance           decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance"`
	LoanRequestAmount decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"loan_request_amount"`
	IsMain            bool            `gorm:"not null" json:"is_main"`
	IsActive          bool            `gorm:"index;not null" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "member"
}
