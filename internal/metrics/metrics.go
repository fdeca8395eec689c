package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 分配结果标签
const (
	ResultActive        = "active"
	ResultUnallocated   = "unallocated"
	ResultPrecondition  = "precondition_failed"
	ResultDuplicate     = "duplicate_period"
	ResultError         = "error"
	OutboxResultSent    = "sent"
	OutboxResultRetry   = "retry"
	OutboxResultFailed  = "failed"
	defaultNamespace    = "saghat"
	assignmentSubsystem = "assignment"
)

// Metrics 服务的 Prometheus 指标
// 所有方法对 nil 接收者安全，未配置指标时直接跳过
type Metrics struct {
	assignmentRuns     *prometheus.CounterVec
	assignmentDuration prometheus.Histogram
	winnerPoolSize     prometheus.Histogram
	participants       *prometheus.GaugeVec
	outboxMessages     *prometheus.CounterVec
	paymentsRecorded   prometheus.Counter
}

// New 创建并注册指标；reg 为 nil 时使用 prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		assignmentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: assignmentSubsystem,
			Name:      "runs_total",
			Help:      "Allocation runs by outcome.",
		}, []string{"result"}),
		assignmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: defaultNamespace,
			Subsystem: assignmentSubsystem,
			Name:      "duration_seconds",
			Help:      "Wall time of one allocation run in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		winnerPoolSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: defaultNamespace,
			Subsystem: assignmentSubsystem,
			Name:      "random_pool_size",
			Help:      "Number of tied top candidates the winner was drawn from.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: defaultNamespace,
			Subsystem: assignmentSubsystem,
			Name:      "last_run_members",
			Help:      "Members in the last run by kind (participated, not_participated).",
		}, []string{"kind"}),
		outboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox delivery attempts by result (sent, retry, failed).",
		}, []string{"result"}),
		paymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: "payment",
			Name:      "recorded_total",
			Help:      "Period payments recorded.",
		}),
	}

	collectors := []prometheus.Collector{
		m.assignmentRuns,
		m.assignmentDuration,
		m.winnerPoolSize,
		m.participants,
		m.outboxMessages,
		m.paymentsRecorded,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAssignment 记录一次分配的结果和耗时
func (m *Metrics) ObserveAssignment(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.assignmentRuns.WithLabelValues(result).Inc()
	m.assignmentDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveDecision(participated, notParticipated, poolSize int) {
	if m == nil {
		return
	}
	m.participants.WithLabelValues("participated").Set(float64(participated))
	m.participants.WithLabelValues("not_participated").Set(float64(notParticipated))
	if poolSize > 0 {
		m.winnerPoolSize.Observe(float64(poolSize))
	}
}

func (m *Metrics) ObserveOutbox(result string) {
	if m == nil {
		return
	}
	m.outboxMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentRecorded() {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
}
