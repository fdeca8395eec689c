package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"saghat/internal/config"
	"saghat/internal/handler"
	"saghat/internal/infrastructure/cache"
	"saghat/internal/infrastructure/database"
	"saghat/internal/infrastructure/mq"
	"saghat/internal/job"
	"saghat/internal/metrics"
	"saghat/internal/service"
	"saghat/pkg/idgen"
	"saghat/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.App.Env)

	// 初始化 ID 生成器
	if err := idgen.Init(1); err != nil {
		log.Fatal().Err(err).Msg("初始化 ID 生成器失败")
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化数据库失败")
	}
	defer database.Close(db)

	// 初始化 Redis（可选）
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化 Redis 失败")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 初始化 Kafka（可选）
	var publisher mq.Publisher = mq.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("初始化 Kafka 失败")
		}
		publisher = kafkaPublisher
	}
	defer publisher.Close()

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("注册指标失败")
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg, m)
	go outboxSender.Start(ctx)

	triggerDone := make(chan struct{})
	if cfg.Business.Assignment.AutoRun {
		assignmentService := service.NewAssignmentService(db, redisClient, cfg, service.WithMetrics(m))
		trigger := job.NewAssignmentTrigger(assignmentService, cfg)
		if err := trigger.Register(ctx, cfg.Business.Assignment.Cron); err != nil {
			log.Fatal().Err(err).Msg("注册分配任务失败")
		}
		go func() {
			defer close(triggerDone)
			trigger.Start(ctx)
		}()
	} else {
		close(triggerDone)
	}

	// 配置热更新：基金默认值只影响尚未初始化的 fund_config，cron 变化需重启
	if err := config.Watch(*configPath, func(c *config.Config) {
		log.Info().
			Str("min_periodic_fee", c.Business.Fund.MinPeriodicFee).
			Str("cron", c.Business.Assignment.Cron).
			Msg("配置已重新加载")
	}); err != nil {
		log.Warn().Err(err).Msg("未启用配置监听")
	}

	// 设置路由
	router := handler.SetupRouter(db, redisClient, cfg, m, registry)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("服务启动失败")
		}
	}()

	// 等待中断信号
	<-ctx.Done()
	log.Info().Msg("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务关闭异常")
	}

	// 等待正在执行的分配完成
	<-triggerDone
	log.Info().Msg("服务已关闭")
}
