package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"saghat/internal/config"
	"saghat/internal/infrastructure/lock"
	"saghat/internal/metrics"
	"saghat/internal/model"
	"saghat/internal/repository"
	"saghat/pkg/idgen"
	"saghat/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	memberRepo     *repository.MemberRepository
	paymentRepo    *repository.PaymentRepository
	fundConfigRepo *repository.FundConfigRepository
	outboxRepo     *repository.OutboxRepository
	history        *HistoryLoader
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, m *metrics.Metrics) *PaymentService {
	return &PaymentService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		memberRepo:     repository.NewMemberRepository(db),
		paymentRepo:    repository.NewPaymentRepository(db),
		fundConfigRepo: newFundConfigRepository(db, cfg),
		outboxRepo:     repository.NewOutboxRepository(db),
		history:        NewHistoryLoader(db),
		metrics:        m,
		log:            logger.Component("PaymentService"),
	}
}

// SubmitPaymentRequest 一期缴款
// Repayment 为 nil 表示本期不还款；LoanRequestAmount 非 nil 时同时更新申请额
type SubmitPaymentRequest struct {
	MemberID          int64
	Period            model.Period
	MembershipFee     decimal.Decimal
	Repayment         *decimal.Decimal
	LoanRequestAmount *decimal.Decimal
	ExternalRef       string
}

type SubmitPaymentResponse struct {
	PaymentNo    string           `json:"payment_no"`
	Period       string           `json:"period"`
	Amount       decimal.Decimal  `json:"amount"`
	Repayment    *decimal.Decimal `json:"repayment,omitempty"`
	AllocationNo string           `json:"allocation_no,omitempty"`
	Remaining    *decimal.Decimal `json:"remaining,omitempty"`
}

// Submit 记录成员一期的缴款
//
// 校验：
//   - 会费 >= 基金最低会费
//   - 有未还清的借款时必须还款，且 >= 该笔分配创建时复制的最低还款额
//   - 没有未还清的借款时不能还款
//
// 【关键点】缴款记录、还款记录、余额增加、申请额更新、outbox 消息在同一事务内完成；
// 同一成员同一期的重复缴款由联合唯一索引拒绝，返回 ErrDuplicatePayment。
func (s *PaymentService) Submit(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	if !req.Period.Valid() {
		return nil, ErrInvalidPeriod
	}
	if req.MembershipFee.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if req.Repayment != nil && !req.Repayment.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.LoanRequestAmount != nil && req.LoanRequestAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	if s.redisClient != nil {
		memberLock := lock.NewMemberPaymentLock(s.redisClient, req.MemberID)
		if err := memberLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer releaseLock(s.log, memberLock)
	}

	member, err := s.memberRepo.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}

	existing, err := s.paymentRepo.GetByMemberAndPeriod(ctx, member.ID, req.Period)
	if err != nil {
		return nil, fmt.Errorf("查询缴款记录失败: %w", err)
	}
	if existing != nil {
		return nil, repository.ErrDuplicatePayment
	}

	fundConfig, err := s.fundConfigRepo.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("读取基金参数失败: %w", err)
	}
	if req.MembershipFee.LessThan(fundConfig.MinPeriodicFee) {
		return nil, fmt.Errorf("%w: 最低 %s", ErrFeeTooLow, fundConfig.MinPeriodicFee)
	}

	snapshot, err := s.history.Load(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("加载成员历史失败: %w", err)
	}
	outstanding := snapshot.Outstanding
	switch {
	case outstanding != nil && req.Repayment == nil:
		return nil, ErrRepaymentRequired
	case outstanding != nil && outstanding.MinRepaymentPerPeriod != nil &&
		req.Repayment.LessThan(*outstanding.MinRepaymentPerPeriod):
		return nil, fmt.Errorf("%w: 最低 %s", ErrRepaymentTooLow, outstanding.MinRepaymentPerPeriod)
	case outstanding == nil && req.Repayment != nil:
		return nil, ErrRepaymentNotAllowed
	}

	total := req.MembershipFee
	if req.Repayment != nil {
		total = total.Add(*req.Repayment)
	}

	payment := &model.PeriodPayment{
		PaymentNo:     idgen.GeneratePaymentNo(),
		MemberID:      member.ID,
		PeriodYear:    req.Period.Year,
		PeriodMonth:   req.Period.Month,
		Amount:        total,
		MembershipFee: req.MembershipFee,
		ExternalRef:   req.ExternalRef,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicatePayment) {
				return err
			}
			return fmt.Errorf("写入缴款记录失败: %w", err)
		}

		if outstanding != nil {
			portion := &model.LoanRepaymentPortion{
				PaymentID:    payment.ID,
				AllocationID: outstanding.ID,
				MemberID:     member.ID,
				PeriodYear:   req.Period.Year,
				PeriodMonth:  req.Period.Month,
				Amount:       *req.Repayment,
			}
			if err := s.paymentRepo.CreatePortion(ctx, tx, portion); err != nil {
				return fmt.Errorf("写入还款记录失败: %w", err)
			}
		}

		if err := s.memberRepo.IncreaseBalance(ctx, tx, member.ID, req.MembershipFee); err != nil {
			return fmt.Errorf("增加余额失败: %w", err)
		}

		if req.LoanRequestAmount != nil {
			if err := s.memberRepo.UpdateLoanRequest(ctx, tx, member.ID, *req.LoanRequestAmount); err != nil {
				return fmt.Errorf("更新申请额失败: %w", err)
			}
		}

		payload, err := json.Marshal(map[string]interface{}{
			"payment_no":     payment.PaymentNo,
			"member_id":      member.ID,
			"period":         req.Period.String(),
			"amount":         total,
			"membership_fee": req.MembershipFee,
			"repayment":      req.Repayment,
		})
		if err != nil {
			return fmt.Errorf("序列化缴款消息失败: %w", err)
		}
		outboxMsg := &model.OutboxMessage{
			EventType:  model.EventPaymentRecorded,
			MessageKey: payment.PaymentNo,
			Topic:      s.cfg.Kafka.Topic.PaymentRecorded,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded()
	s.log.Info().
		Str("payment_no", payment.PaymentNo).
		Int64("member_id", member.ID).
		Str("period", req.Period.String()).
		Str("amount", total.String()).
		Msg("缴款成功")

	resp := &SubmitPaymentResponse{
		PaymentNo: payment.PaymentNo,
		Period:    req.Period.String(),
		Amount:    total,
		Repayment: req.Repayment,
	}
	if outstanding != nil {
		remaining := snapshot.Remaining.Sub(*req.Repayment)
		resp.AllocationNo = outstanding.AllocationNo
		resp.Remaining = &remaining
	}
	return resp, nil
}

// ListPayments 成员缴款记录，按期倒序分页
func (s *PaymentService) ListPayments(ctx context.Context, memberID int64, page, pageSize int) ([]*model.PeriodPayment, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.paymentRepo.ListByMember(ctx, memberID, page, pageSize)
}
