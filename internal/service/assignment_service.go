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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ============================================================================
// 每期分配
// ============================================================================
//
// 流程（单向，无回退）：
//   1. 前置检查：所有活跃成员都已缴纳本期会费，否则整体失败，不落任何数据
//   2. 基金余额 = 活跃成员余额之和
//   3. 资格筛选（记录第一个不满足的原因）
//   4. 打分
//   5. 基金余额筛选：申请额 <= 基金余额
//   6. 最高分组：有 Unlimited 取全部 Unlimited，否则取并列最高分
//   7. 组内均匀随机选一人
//   8. 单个事务内写入分配记录 + 审计日志 + outbox 消息
//
// 【关键点】每期只分配一次
//   - allocation 表 (period_year, period_month) 唯一索引是最终保证
//   - 配置了 Redis 时，先按期加分布式锁，拿到锁后再查一次是否已分配
//   - 落败方得到 ErrDuplicatePeriod，不重试
// ============================================================================

type AssignmentService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	memberRepo     *repository.MemberRepository
	paymentRepo    *repository.PaymentRepository
	allocationRepo *repository.AllocationRepository
	fundConfigRepo *repository.FundConfigRepository
	outboxRepo     *repository.OutboxRepository
	history        *HistoryLoader
	picker         Picker
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

// AssignmentOption 可选依赖
type AssignmentOption func(*AssignmentService)

// WithPicker 替换随机选择器，测试中用于固定中选者
func WithPicker(p Picker) AssignmentOption {
	return func(s *AssignmentService) {
		s.picker = p
	}
}

func WithMetrics(m *metrics.Metrics) AssignmentOption {
	return func(s *AssignmentService) {
		s.metrics = m
	}
}

// NewAssignmentService redisClient 可以为 nil，此时不加分布式锁
func NewAssignmentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, opts ...AssignmentOption) *AssignmentService {
	s := &AssignmentService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		memberRepo:     repository.NewMemberRepository(db),
		paymentRepo:    repository.NewPaymentRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
		fundConfigRepo: newFundConfigRepository(db, cfg),
		outboxRepo:     repository.NewOutboxRepository(db),
		history:        NewHistoryLoader(db),
		picker:         NewRandomPicker(),
		log:            logger.Component("AssignmentService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunAssignment 对指定期执行一次分配
//
// 可能的错误：
//   - ErrInvalidPeriod
//   - *UnpaidMembersError（errors.Is ErrPreconditionFailed）
//   - ErrDuplicatePeriod
//   - lock.ErrLockFailed：同一期正在由其他实例处理
func (s *AssignmentService) RunAssignment(ctx context.Context, period model.Period) (*model.Allocation, error) {
	start := time.Now()
	allocation, err := s.runAssignment(ctx, period)
	s.metrics.ObserveAssignment(runResult(allocation, err), time.Since(start))

	switch {
	case err == nil:
		s.log.Info().
			Str("period", period.String()).
			Str("allocation_no", allocation.AllocationNo).
			Str("state", allocation.State).
			Msg("分配完成")
	case errors.Is(err, ErrDuplicatePeriod):
		s.log.Warn().Str("period", period.String()).Msg("该期已完成分配")
	case errors.Is(err, ErrPreconditionFailed):
		s.log.Warn().Str("period", period.String()).Err(err).Msg("前置条件不满足")
	default:
		s.log.Error().Str("period", period.String()).Err(err).Msg("分配失败")
	}
	return allocation, err
}

func runResult(allocation *model.Allocation, err error) string {
	switch {
	case err == nil && allocation.IsActive():
		return metrics.ResultActive
	case err == nil:
		return metrics.ResultUnallocated
	case errors.Is(err, ErrDuplicatePeriod):
		return metrics.ResultDuplicate
	case errors.Is(err, ErrPreconditionFailed):
		return metrics.ResultPrecondition
	default:
		return metrics.ResultError
	}
}

func (s *AssignmentService) runAssignment(ctx context.Context, period model.Period) (*model.Allocation, error) {
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}

	// 快速路径，唯一索引仍是最终保证
	exists, err := s.allocationRepo.ExistsForPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("查询分配记录失败: %w", err)
	}
	if exists {
		return nil, ErrDuplicatePeriod
	}

	if s.redisClient != nil {
		ttl := time.Duration(s.cfg.Business.Assignment.LockTTLSeconds) * time.Second
		periodLock := lock.NewAssignmentLock(s.redisClient, period, ttl)
		if err := periodLock.Lock(ctx, 100*time.Millisecond, 50); err != nil {
			return nil, fmt.Errorf("本期分配正在进行中: %w", err)
		}
		defer releaseLock(s.log, periodLock)

		// 获取锁后再次检查
		exists, err = s.allocationRepo.ExistsForPeriod(ctx, period)
		if err != nil {
			return nil, fmt.Errorf("查询分配记录失败: %w", err)
		}
		if exists {
			return nil, ErrDuplicatePeriod
		}
	}

	members, err := s.memberRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询活跃成员失败: %w", err)
	}

	if err := s.checkAllPaid(ctx, period, members); err != nil {
		return nil, err
	}

	fundBalance := decimal.Zero
	candidates := make([]candidate, 0, len(members))
	for _, m := range members {
		fundBalance = fundBalance.Add(m.Balance)

		snapshot, err := s.history.Load(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("加载成员历史失败: memberID=%d: %w", m.ID, err)
		}
		candidates = append(candidates, candidate{member: m, snapshot: snapshot})
	}

	d := decide(candidates, fundBalance, s.picker)
	s.metrics.ObserveDecision(len(d.log.Participated), len(d.log.NotParticipated), len(d.log.RandomPool))

	s.log.Debug().
		Str("period", period.String()).
		Str("fund_balance", fundBalance.String()).
		Int("participated", len(d.log.Participated)).
		Int("not_participated", len(d.log.NotParticipated)).
		Ints64("random_pool", d.log.RandomPool).
		Msg("分配决策")

	return s.commit(ctx, period, d)
}

// checkAllPaid 前置检查：任一活跃成员未缴费则返回 *UnpaidMembersError
func (s *AssignmentService) checkAllPaid(ctx context.Context, period model.Period, members []*model.Member) error {
	paid, err := s.paymentRepo.PaidMemberIDs(ctx, period)
	if err != nil {
		return fmt.Errorf("查询本期缴款失败: %w", err)
	}

	var unpaid []UnpaidMember
	for _, m := range members {
		if _, ok := paid[m.ID]; !ok {
			unpaid = append(unpaid, UnpaidMember{MemberID: m.ID, Username: m.Username})
		}
	}
	if len(unpaid) > 0 {
		return &UnpaidMembersError{Period: period, Members: unpaid}
	}
	return nil
}

// commit 分配记录与 outbox 消息在同一事务内写入
func (s *AssignmentService) commit(ctx context.Context, period model.Period, d decision) (*model.Allocation, error) {
	allocation := &model.Allocation{
		AllocationNo: idgen.GenerateAllocationNo(),
		State:        d.state,
		PeriodYear:   period.Year,
		PeriodMonth:  period.Month,
		AuditLog:     datatypes.NewJSONType(d.log),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if d.winner != nil {
			fundConfig, err := s.fundConfigRepo.Get(ctx, tx)
			if err != nil {
				return fmt.Errorf("读取基金参数失败: %w", err)
			}
			memberID := d.winner.ID
			amount := d.winner.LoanRequestAmount
			minRepayment := fundConfig.MinLoanRepaymentAmount
			allocation.MemberID = &memberID
			allocation.Amount = &amount
			allocation.MinRepaymentPerPeriod = &minRepayment
		}

		if err := s.allocationRepo.Create(ctx, tx, allocation); err != nil {
			if errors.Is(err, repository.ErrDuplicatePeriod) {
				return err
			}
			return fmt.Errorf("写入分配记录失败: %w", err)
		}

		payload, err := json.Marshal(allocationEvent(allocation))
		if err != nil {
			return fmt.Errorf("序列化分配消息失败: %w", err)
		}
		outboxMsg := &model.OutboxMessage{
			EventType:  model.EventAllocationDecided,
			MessageKey: allocation.AllocationNo,
			Topic:      s.cfg.Kafka.Topic.AllocationResult,
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
	return allocation, nil
}

func allocationEvent(a *model.Allocation) map[string]interface{} {
	log := a.Log()
	return map[string]interface{}{
		"allocation_no":            a.AllocationNo,
		"period":                   a.Period().String(),
		"period_year":              a.PeriodYear,
		"period_month":             a.PeriodMonth,
		"state":                    a.State,
		"member_id":                a.MemberID,
		"amount":                   a.Amount,
		"min_repayment_per_period": a.MinRepaymentPerPeriod,
		"selected":                 log.Selected,
		"random_pool":              log.RandomPool,
		"note":                     log.Note,
	}
}
