package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saghat/internal/config"
	"saghat/internal/model"
	"saghat/internal/service"
	"saghat/pkg/calendar"
	"saghat/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// AssignmentRunner 由 service.AssignmentService 实现
type AssignmentRunner interface {
	RunAssignment(ctx context.Context, period model.Period) (*model.Allocation, error)
}

// AssignmentTrigger 按 cron 对“当前期”触发一次分配
//
// 每次触发只运行一次，不在同一次触发内重试：
//   - ErrDuplicatePeriod 视为本期已处理
//   - ErrPreconditionFailed 需要人工催缴，记录告警后等待下一次触发
type AssignmentTrigger struct {
	cron     *cron.Cron
	runner   AssignmentRunner
	calendar string
	now      func() time.Time
	log      zerolog.Logger
}

func NewAssignmentTrigger(runner AssignmentRunner, cfg *config.Config) *AssignmentTrigger {
	return &AssignmentTrigger{
		cron:     cron.New(cron.WithSeconds()),
		runner:   runner,
		calendar: cfg.App.Calendar,
		now:      time.Now,
		log:      logger.Component("AssignmentTrigger"),
	}
}

// Register 注册 cron 表达式（含秒字段）
func (t *AssignmentTrigger) Register(ctx context.Context, spec string) error {
	_, err := t.cron.AddFunc(spec, func() {
		_, _ = t.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("注册分配任务失败: %w", err)
	}
	return nil
}

// Start 启动 cron，ctx 结束时等待正在执行的任务完成后返回
func (t *AssignmentTrigger) Start(ctx context.Context) {
	t.cron.Start()
	t.log.Info().Msg("分配触发任务启动")

	<-ctx.Done()
	<-t.cron.Stop().Done()
	t.log.Info().Msg("分配触发任务退出")
}

// CurrentPeriod 按配置的日历计算当前期
func (t *AssignmentTrigger) CurrentPeriod() (model.Period, error) {
	year, month, err := calendar.YearMonth(t.now(), t.calendar)
	if err != nil {
		return model.Period{}, err
	}
	return model.NewPeriod(year, month), nil
}

// RunOnce 对当前期执行一次分配；已处理过的期返回 (nil, nil)
func (t *AssignmentTrigger) RunOnce(ctx context.Context) (*model.Allocation, error) {
	period, err := t.CurrentPeriod()
	if err != nil {
		t.log.Error().Err(err).Msg("计算当前期失败")
		return nil, err
	}

	allocation, err := t.runner.RunAssignment(ctx, period)
	switch {
	case err == nil:
		t.log.Info().
			Str("period", period.String()).
			Str("allocation_no", allocation.AllocationNo).
			Str("state", allocation.State).
			Msg("本期分配完成")
		return allocation, nil
	case errors.Is(err, service.ErrDuplicatePeriod):
		t.log.Info().Str("period", period.String()).Msg("本期已处理，跳过")
		return nil, nil
	case errors.Is(err, service.ErrPreconditionFailed):
		t.log.Warn().Str("period", period.String()).Err(err).Msg("仍有成员未缴费，等待下次触发")
		return nil, err
	default:
		t.log.Error().Str("period", period.String()).Err(err).Msg("分配失败")
		return nil, err
	}
}
