package service

import (
	"errors"
	"fmt"
	"strings"

	"saghat/internal/model"
	"saghat/internal/repository"
)

var (
	// ErrPreconditionFailed 有活跃成员未缴纳本期会费，需人工处理后再运行，不自动重试
	ErrPreconditionFailed = errors.New("有成员未缴纳本期会费")
	// ErrDuplicatePeriod 该期已有分配记录，调用方应视为“已处理”
	ErrDuplicatePeriod = repository.ErrDuplicatePeriod
	ErrInvalidPeriod   = errors.New("期数不合法")

	ErrInvalidAmount       = errors.New("金额不合法")
	ErrFeeTooLow           = errors.New("会费低于最低标准")
	ErrRepaymentRequired   = errors.New("存在未还清的借款，必须同时还款")
	ErrRepaymentTooLow     = errors.New("还款金额低于每期最低还款额")
	ErrRepaymentNotAllowed = errors.New("没有未还清的借款，不能还款")
	ErrInvalidFundConfig   = errors.New("基金参数不合法")
	ErrInvalidOutboxStatus = errors.New("消息状态不合法")
)

// UnpaidMember 未缴费成员
type UnpaidMember struct {
	MemberID int64  `json:"member_id"`
	Username string `json:"username"`
}

// UnpaidMembersError 前置条件失败的明细，errors.Is(err, ErrPreconditionFailed) 为 true
type UnpaidMembersError struct {
	Period  model.Period
	Members []UnpaidMember
}

func (e *UnpaidMembersError) Error() string {
	names := make([]string, 0, len(e.Members))
	for _, m := range e.Members {
		names = append(names, m.Username)
	}
	return fmt.Sprintf("%s: period=%s, unpaid=%s", ErrPreconditionFailed.Error(), e.Period, strings.Join(names, ", "))
}

func (e *UnpaidMembersError) Unwrap() error {
	return ErrPreconditionFailed
}
