package handler

import (
	"saghat/internal/config"
	"saghat/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
// gatherer 为 nil 时不暴露 /metrics
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, m *metrics.Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, m)

	api := r.Group("/api/v1")
	{
		allocation := api.Group("/allocation")
		{
			allocation.POST("/run", h.RunAssignment)
			allocation.GET("/detail", h.GetAllocation)
			allocation.GET("/history", h.ListAllocations)
		}

		payment := api.Group("/payment")
		{
			payment.POST("/submit", h.SubmitPayment)
			payment.GET("/list", h.ListPayments)
		}

		member := api.Group("/member")
		{
			member.POST("/create", h.CreateMember)
			member.GET("/detail", h.GetMember)
			member.POST("/loan-request", h.UpdateLoanRequest)
			member.POST("/active", h.SetMemberActive)
		}

		api.GET("/outbox/list", h.ListOutbox)

		fund := api.Group("/fund")
		{
			fund.GET("/config", h.GetFundConfig)
			fund.POST("/config", h.UpdateFundConfig)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
