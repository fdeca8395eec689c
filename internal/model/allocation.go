package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ============================================================================
// 分配状态
// ============================================================================
//
// PENDING 只是概念上的初始状态，引擎不会落库；
// 每条写入的记录都是终态：ACTIVE（有人中选）或 UNALLOCATED（本期无人）。
// 之后的还款只追加 LoanRepaymentPortion，不会改变 State。

const (
	AllocationStatePending     = "PENDING"
	AllocationStateActive      = "ACTIVE"
	AllocationStateUnallocated = "UNALLOCATED"
)

// 不参与原因
const (
	ReasonRequestExceedsBalance = "request exceeds balance"
	ReasonActiveLoan            = "already has active loan"
	ReasonOptedOut              = "opted out"
)

// NoteNoAffordableRequest 所有候选人的申请额都超过基金余额
const NoteNoAffordableRequest = "no loan request fits within the fund balance"

// NotParticipatedEntry 未参与分配的成员及原因（每人只记录第一个不满足的条件）
type NotParticipatedEntry struct {
	MemberID int64  `json:"member_id"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// ParticipatedEntry 参与打分的成员；Point 为 "unlimited" 或十进制字符串
type ParticipatedEntry struct {
	MemberID int64  `json:"member_id"`
	Username string `json:"username"`
	Point    string `json:"point"`
}

// AuditLog 一次分配的完整决策过程
// Selected 非空 当且仅当 State == ACTIVE
type AuditLog struct {
	NotParticipated []NotParticipatedEntry `json:"not_participated"`
	Participated    []ParticipatedEntry    `json:"participated"`
	Selected        *int64                 `json:"selected"`
	RandomPool      []int64                `json:"random_pool"`
	Note            string                 `json:"note,omitempty"`
}

// Allocation 每期唯一的分配决定
//
// 【重要】(period_year, period_month) 联合唯一索引是“每期只分配一次”的最终保证，
// 并发重复提交时由数据库拒绝，落败方得到 ErrDuplicatePeriod。
type Allocation struct {
	ID                    int64                        `gorm:"primaryKey;autoIncrement" json:"id"`
	AllocationNo          string                       `gorm:"type:varchar(64);uniqueIndex;not null" json:"allocation_no"`
	MemberID              *int64                       `gorm:"index" json:"member_id"`
	Amount                *decimal.Decimal             `gorm:"type:decimal(20,8)" json:"amount"`
	State                 string                       `gorm:"type:varchar(20);index;not null" json:"state"`
	PeriodYear            int                          `gorm:"uniqueIndex:uk_allocation_period,priority:1;not null" json:"period_year"`
	PeriodMonth           int                          `gorm:"uniqueIndex:uk_allocation_period,priority:2;not null" json:"period_month"`
	MinRepaymentPerPeriod *decimal.Decimal             `gorm:"type:decimal(20,8)" json:"min_repayment_per_period"`
	AuditLog              datatypes.JSONType[AuditLog] `json:"audit_log"`
	CreatedAt             time.Time                    `gorm:"autoCreateTime" json:"created_at"`
}

func (Allocation) TableName() string {
	return "allocation"
}

func (a *Allocation) Period() Period {
	return Period{Year: a.PeriodYear, Month: a.PeriodMonth}
}

func (a *Allocation) IsActive() bool {
	return a.State == AllocationStateActive
}

// Log 返回审计日志内容
func (a *Allocation) Log() AuditLog {
	return a.AuditLog.Data()
}
