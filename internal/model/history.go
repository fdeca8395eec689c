package model

import "github.com/shopspring/decimal"

// MemberHistory 打分所需的成员历史快照，只读
type MemberHistory struct {
	LastPaymentAmount          *decimal.Decimal // 最近一期缴款金额，无缴款为 nil
	RepaymentCount             int64            // 历史还款笔数
	ActiveAllocationTotal      decimal.Decimal  // 历史 ACTIVE 分配金额之和
	ActiveAllocationCount      int64            // 历史 ACTIVE 分配次数
	LastActiveAllocationAmount *decimal.Decimal // 最近一次 ACTIVE 分配金额
	PaidPeriods                int64            // 缴过款的不同期数
	RepaidPeriods              int64            // 有还款的不同期数
}

// UnrepaidPeriods 缴了会费但没有还款的期数，最小为 0
func (h *MemberHistory) UnrepaidPeriods() int64 {
	n := h.PaidPeriods - h.RepaidPeriods
	if n < 0 {
		return 0
	}
	return n
}
