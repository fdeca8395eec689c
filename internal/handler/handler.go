package handler

import (
	"errors"
	"strconv"
	"time"

	"saghat/internal/config"
	"saghat/internal/infrastructure/lock"
	"saghat/internal/metrics"
	"saghat/internal/model"
	"saghat/internal/repository"
	"saghat/internal/service"
	"saghat/pkg/calendar"
	"saghat/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	assignmentService *service.AssignmentService
	allocationService *service.AllocationService
	paymentService    *service.PaymentService
	memberService     *service.MemberService
	fundService       *service.FundService
	outboxService     *service.OutboxService
	calendar          string
	now               func() time.Time
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, m *metrics.Metrics) *Handler {
	return &Handler{
		assignmentService: service.NewAssignmentService(db, rdb, cfg, service.WithMetrics(m)),
		allocationService: service.NewAllocationService(db),
		paymentService:    service.NewPaymentService(db, rdb, cfg, m),
		memberService:     service.NewMemberService(db),
		fundService:       service.NewFundService(db, cfg),
		outboxService:     service.NewOutboxService(db),
		calendar:          cfg.App.Calendar,
		now:               time.Now,
	}
}

// resolvePeriod 未指定年月时取当前期
func (h *Handler) resolvePeriod(year, month int) (model.Period, error) {
	if year == 0 && month == 0 {
		y, m, err := calendar.YearMonth(h.now(), h.calendar)
		if err != nil {
			return model.Period{}, err
		}
		return model.NewPeriod(y, m), nil
	}
	return model.NewPeriod(year, month), nil
}

// writeError 把服务层错误映射为业务错误码
func writeError(c *gin.Context, err error) {
	var unpaid *service.UnpaidMembersError
	switch {
	case errors.As(err, &unpaid):
		response.ErrorWithData(c, response.CodePreconditionFailed, service.ErrPreconditionFailed.Error(), gin.H{
			"period":         unpaid.Period.String(),
			"unpaid_members": unpaid.Members,
		})
	case errors.Is(err, service.ErrDuplicatePeriod):
		response.BusinessError(c, response.CodeDuplicatePeriod, err.Error())
	case errors.Is(err, repository.ErrDuplicatePayment):
		response.BusinessError(c, response.CodeDuplicatePayment, err.Error())
	case errors.Is(err, service.ErrFeeTooLow):
		response.BusinessError(c, response.CodeFeeTooLow, err.Error())
	case errors.Is(err, service.ErrRepaymentRequired),
		errors.Is(err, service.ErrRepaymentTooLow),
		errors.Is(err, service.ErrRepaymentNotAllowed):
		response.BusinessError(c, response.CodeRepaymentInvalid, err.Error())
	case errors.Is(err, repository.ErrMemberNotFound):
		response.BusinessError(c, response.CodeMemberNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateMember):
		response.BusinessError(c, response.CodeDuplicateMember, err.Error())
	case errors.Is(err, repository.ErrAllocationNotFound):
		response.BusinessError(c, response.CodeAllocationNotFound, err.Error())
	case errors.Is(err, lock.ErrLockFailed):
		response.BusinessError(c, response.CodeAssignmentLockBusy, err.Error())
	case errors.Is(err, service.ErrInvalidPeriod),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidFundConfig),
		errors.Is(err, service.ErrInvalidOutboxStatus):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func queryInt64(c *gin.Context, key string) (int64, error) {
	return strconv.ParseInt(c.Query(key), 10, 64)
}

// optionalQueryInt 参数缺省时返回 nil
func optionalQueryInt(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ============================================================
// 分配相关接口
// ============================================================

// RunAssignmentRequest 年月都为 0 时使用当前期
type RunAssignmentRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// RunAssignment 执行一期分配
// POST /api/v1/allocation/run
func (h *Handler) RunAssignment(c *gin.Context) {
	var req RunAssignmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	period, err := h.resolvePeriod(req.Year, req.Month)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	allocation, err := h.assignmentService.RunAssignment(c.Request.Context(), period)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"allocation_no":            allocation.AllocationNo,
		"period":                   period.String(),
		"state":                    allocation.State,
		"member_id":                allocation.MemberID,
		"amount":                   allocation.Amount,
		"min_repayment_per_period": allocation.MinRepaymentPerPeriod,
		"audit_log":                allocation.Log(),
	})
}

// GetAllocation 查询分配详情
// GET /api/v1/allocation/detail?allocation_no=xxx
// GET /api/v1/allocation/detail?year=1403&month=1
func (h *Handler) GetAllocation(c *gin.Context) {
	if no := c.Query("allocation_no"); no != "" {
		view, err := h.allocationService.GetByNo(c.Request.Context(), no)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, view)
		return
	}

	year, errYear := strconv.Atoi(c.Query("year"))
	month, errMonth := strconv.Atoi(c.Query("month"))
	if errYear != nil || errMonth != nil {
		response.ParamError(c, "需要 allocation_no 或 year/month 参数")
		return
	}

	view, err := h.allocationService.GetByPeriod(c.Request.Context(), model.NewPeriod(year, month))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

// ListAllocations 查询分配历史
// GET /api/v1/allocation/history?member_id=&year_gt=&year_lt=&month_gt=&month_lt=&state=
func (h *Handler) ListAllocations(c *gin.Context) {
	filter := repository.AllocationFilter{State: c.Query("state")}

	if raw := c.Query("member_id"); raw != "" {
		memberID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ParamError(c, "member_id 参数错误")
			return
		}
		filter.MemberID = &memberID
	}

	for key, target := range map[string]**int{
		"year_gt":  &filter.YearGT,
		"year_lt":  &filter.YearLT,
		"month_gt": &filter.MonthGT,
		"month_lt": &filter.MonthLT,
	} {
		v, err := optionalQueryInt(c, key)
		if err != nil {
			response.ParamError(c, key+" 参数错误")
			return
		}
		*target = v
	}

	views, err := h.allocationService.History(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": views})
}

// ============================================================
// 缴款相关接口
// ============================================================

// SubmitPaymentRequest 金额可以是字符串或数字；年月都为 0 时使用当前期
type SubmitPaymentRequest struct {
	MemberID          int64            `json:"member_id" binding:"required"`
	Year              int              `json:"year"`
	Month             int              `json:"month"`
	MembershipFee     decimal.Decimal  `json:"membership_fee"`
	Repayment         *decimal.Decimal `json:"repayment"`
	LoanRequestAmount *decimal.Decimal `json:"loan_request_amount"`
	ExternalRef       string           `json:"external_ref"`
}

// SubmitPayment 提交一期缴款
// POST /api/v1/payment/submit
func (h *Handler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BusinessError(c, response.CodeInvalidAmountFormat, "参数错误: "+err.Error())
		return
	}

	period, err := h.resolvePeriod(req.Year, req.Month)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	resp, err := h.paymentService.Submit(c.Request.Context(), &service.SubmitPaymentRequest{
		MemberID:          req.MemberID,
		Period:            period,
		MembershipFee:     req.MembershipFee,
		Repayment:         req.Repayment,
		LoanRequestAmount: req.LoanRequestAmount,
		ExternalRef:       req.ExternalRef,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, resp)
}

// ListPayments 查询成员缴款记录
// GET /api/v1/payment/list?member_id=xxx&page=1&page_size=10
func (h *Handler) ListPayments(c *gin.Context) {
	memberID, err := queryInt64(c, "member_id")
	if err != nil {
		response.ParamError(c, "member_id 参数错误")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), memberID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      payments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 成员相关接口
// ============================================================

type CreateMemberRequest struct {
	Username string `json:"username" binding:"required"`
	IsMain   bool   `json:"is_main"`
}

// CreateMember 创建成员
// POST /api/v1/member/create
func (h *Handler) CreateMember(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	member, err := h.memberService.Create(c.Request.Context(), &service.CreateMemberRequest{
		Username: req.Username,
		IsMain:   req.IsMain,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, member)
}

// GetMember 查询成员详情
// GET /api/v1/member/detail?member_id=xxx
// GET /api/v1/member/detail?username=xxx
func (h *Handler) GetMember(c *gin.Context) {
	var (
		detail *service.MemberDetail
		err    error
	)
	if username := c.Query("username"); username != "" {
		detail, err = h.memberService.DetailByUsername(c.Request.Context(), username)
	} else {
		memberID, parseErr := queryInt64(c, "member_id")
		if parseErr != nil {
			response.ParamError(c, "需要 member_id 或 username 参数")
			return
		}
		detail, err = h.memberService.Detail(c.Request.Context(), memberID)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, detail)
}

type UpdateLoanRequestRequest struct {
	MemberID int64           `json:"member_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// UpdateLoanRequest 修改申请额，0 表示不参与下一期分配
// POST /api/v1/member/loan-request
func (h *Handler) UpdateLoanRequest(c *gin.Context) {
	var req UpdateLoanRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BusinessError(c, response.CodeInvalidAmountFormat, "参数错误: "+err.Error())
		return
	}

	if err := h.memberService.UpdateLoanRequest(c.Request.Context(), req.MemberID, req.Amount); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"member_id":           req.MemberID,
		"loan_request_amount": req.Amount,
	})
}

type SetMemberActiveRequest struct {
	MemberID int64 `json:"member_id" binding:"required"`
	Active   bool  `json:"active"`
}

// SetMemberActive 停用的成员不再需要缴费，也不参与分配
// POST /api/v1/member/active
func (h *Handler) SetMemberActive(c *gin.Context) {
	var req SetMemberActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.memberService.SetActive(c.Request.Context(), req.MemberID, req.Active); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"member_id": req.MemberID, "active": req.Active})
}

// ============================================================
// 基金参数
// ============================================================

// GetFundConfig 查询基金参数
// GET /api/v1/fund/config
func (h *Handler) GetFundConfig(c *gin.Context) {
	cfg, err := h.fundService.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cfg)
}

// UpdateFundConfig 修改基金参数
// POST /api/v1/fund/config
func (h *Handler) UpdateFundConfig(c *gin.Context) {
	var req service.UpdateFundConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BusinessError(c, response.CodeInvalidAmountFormat, "参数错误: "+err.Error())
		return
	}

	cfg, err := h.fundService.Update(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cfg)
}

// ============================================================
// 消息投递
// ============================================================

// ListOutbox 按状态查看 outbox 消息，默认列出投递失败的
// GET /api/v1/outbox/list?status=FAILED&limit=20
func (h *Handler) ListOutbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	messages, err := h.outboxService.List(c.Request.Context(), c.DefaultQuery("status", model.OutboxStatusFailed), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": messages})
}
