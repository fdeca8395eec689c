package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"saghat/internal/config"
	"saghat/internal/infrastructure/database"
	"saghat/internal/metrics"
	"saghat/internal/model"
	"saghat/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Calendar = "gregorian"
	cfg.Database.Driver = "sqlite"
	cfg.Kafka.Topic.AllocationResult = "saghat.allocation.result"
	cfg.Kafka.Topic.PaymentRecorded = "saghat.payment.recorded"
	cfg.Business.MaxRetryCount = 3
	cfg.Business.Fund = config.FundConfig{
		MinPeriodicFee:         "20",
		MaxRepaymentPeriods:    24,
		MinLoanRepaymentAmount: "10",
	}
	return cfg
}

func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "saghat.db")},
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	return SetupRouter(db, nil, testConfig(), m, reg), db
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// 业务错误同样返回 200
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func createMember(t *testing.T, r http.Handler, username string) int64 {
	t.Helper()
	env := doJSON(t, r, http.MethodPost, "/api/v1/member/create", gin.H{"username": username})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	var member model.Member
	require.NoError(t, json.Unmarshal(env.Data, &member))
	require.NotZero(t, member.ID)
	return member.ID
}

func TestHealthAndRequestID(t *testing.T) {
	r, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	require.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "saghat_payment_recorded_total")
}

func TestCreateMemberErrors(t *testing.T) {
	r, _ := setupTestRouter(t)
	createMember(t, r, "ali")

	env := doJSON(t, r, http.MethodPost, "/api/v1/member/create", gin.H{"username": "ali"})
	require.Equal(t, response.CodeDuplicateMember, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/member/create", gin.H{})
	require.Equal(t, response.CodeParamError, env.Code)

	env = doJSON(t, r, http.MethodGet, "/api/v1/member/detail?member_id=999", nil)
	require.Equal(t, response.CodeMemberNotFound, env.Code)

	env = doJSON(t, r, http.MethodGet, "/api/v1/member/detail?member_id=abc", nil)
	require.Equal(t, response.CodeParamError, env.Code)

	env = doJSON(t, r, http.MethodGet, "/api/v1/member/detail?username=nobody", nil)
	require.Equal(t, response.CodeMemberNotFound, env.Code)
}

func TestGetMemberByUsername(t *testing.T) {
	r, _ := setupTestRouter(t)
	ali := createMember(t, r, "ali")

	env := doJSON(t, r, http.MethodGet, "/api/v1/member/detail?username=ali", nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var detail struct {
		ID            int64 `json:"id"`
		HasActiveLoan bool  `json:"has_active_loan"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.Equal(t, ali, detail.ID)
	require.False(t, detail.HasActiveLoan)
}

func TestListOutbox(t *testing.T) {
	r, db := setupTestRouter(t)
	ali := createMember(t, r, "ali")

	env := doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "20",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("1 = 1").
		Update("status", model.OutboxStatusFailed).Error)

	env = doJSON(t, r, http.MethodGet, "/api/v1/outbox/list", nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var list struct {
		List []model.OutboxMessage `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.List, 1)
	require.Equal(t, model.EventPaymentRecorded, list.List[0].EventType)

	env = doJSON(t, r, http.MethodGet, "/api/v1/outbox/list?status=pending", nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Empty(t, list.List)

	env = doJSON(t, r, http.MethodGet, "/api/v1/outbox/list?status=lost", nil)
	require.Equal(t, response.CodeParamError, env.Code)
}

func TestRunAssignmentReportsUnpaidMembers(t *testing.T) {
	r, _ := setupTestRouter(t)
	ali := createMember(t, r, "ali")
	reza := createMember(t, r, "reza")

	env := doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "20",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodPost, "/api/v1/allocation/run", gin.H{"year": 1403, "month": 1})
	require.Equal(t, response.CodePreconditionFailed, env.Code)

	var data struct {
		Period        string `json:"period"`
		UnpaidMembers []struct {
			MemberID int64  `json:"member_id"`
			Username string `json:"username"`
		} `json:"unpaid_members"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "1403/01", data.Period)
	require.Len(t, data.UnpaidMembers, 1)
	require.Equal(t, reza, data.UnpaidMembers[0].MemberID)
	require.Equal(t, "reza", data.UnpaidMembers[0].Username)

	env = doJSON(t, r, http.MethodGet, "/api/v1/allocation/detail?year=1403&month=1", nil)
	require.Equal(t, response.CodeAllocationNotFound, env.Code)
}

func TestPaymentValidationCodes(t *testing.T) {
	r, _ := setupTestRouter(t)
	ali := createMember(t, r, "ali")

	env := doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "5",
	})
	require.Equal(t, response.CodeFeeTooLow, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "not-a-number",
	})
	require.Equal(t, response.CodeInvalidAmountFormat, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 13, "membership_fee": "20",
	})
	require.Equal(t, response.CodeParamError, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "20", "repayment": "10",
	})
	require.Equal(t, response.CodeRepaymentInvalid, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "20",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "20",
	})
	require.Equal(t, response.CodeDuplicatePayment, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": 999, "year": 1403, "month": 1, "membership_fee": "20",
	})
	require.Equal(t, response.CodeMemberNotFound, env.Code)

	env = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/payment/list?member_id=%d", ali), nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	var list struct {
		List  []model.PeriodPayment `json:"list"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 1, list.Total)
	require.Len(t, list.List, 1)
	require.True(t, list.List[0].MembershipFee.Equal(list.List[0].Amount))
}

func TestAllocationLifecycle(t *testing.T) {
	r, _ := setupTestRouter(t)
	ali := createMember(t, r, "ali")

	env := doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "50", "loan_request_amount": "40",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodPost, "/api/v1/allocation/run", gin.H{"year": 1403, "month": 1})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	var run struct {
		AllocationNo string `json:"allocation_no"`
		State        string `json:"state"`
		MemberID     *int64 `json:"member_id"`
		Amount       string `json:"amount"`
		MinRepayment string `json:"min_repayment_per_period"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &run))
	require.Equal(t, model.AllocationStateActive, run.State)
	require.NotNil(t, run.MemberID)
	require.Equal(t, ali, *run.MemberID)
	require.Equal(t, "40", run.Amount)
	require.Equal(t, "10", run.MinRepayment)

	env = doJSON(t, r, http.MethodPost, "/api/v1/allocation/run", gin.H{"year": 1403, "month": 1})
	require.Equal(t, response.CodeDuplicatePeriod, env.Code)

	env = doJSON(t, r, http.MethodGet, "/api/v1/allocation/detail?allocation_no="+run.AllocationNo, nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	require.True(t, strings.Contains(string(env.Data), `"is_settled":false`), string(env.Data))

	// 有未结清借款时必须还款
	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 2, "membership_fee": "20",
	})
	require.Equal(t, response.CodeRepaymentInvalid, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 2, "membership_fee": "20", "repayment": "5",
	})
	require.Equal(t, response.CodeRepaymentInvalid, env.Code)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 2, "membership_fee": "20", "repayment": "40",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodGet, "/api/v1/allocation/detail?year=1403&month=1", nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	require.True(t, strings.Contains(string(env.Data), `"is_settled":true`), string(env.Data))

	// 还清后分配仍为 ACTIVE，不能再次中选
	env = doJSON(t, r, http.MethodPost, "/api/v1/allocation/run", gin.H{"year": 1403, "month": 2})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var second struct {
		State    string         `json:"state"`
		AuditLog model.AuditLog `json:"audit_log"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.Equal(t, model.AllocationStateUnallocated, second.State)
	require.Equal(t, []model.NotParticipatedEntry{
		{MemberID: ali, Username: "ali", Reason: model.ReasonActiveLoan},
	}, second.AuditLog.NotParticipated)

	env = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/allocation/history?member_id=%d&state=ACTIVE", ali), nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var history struct {
		List []json.RawMessage `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history.List, 1)

	env = doJSON(t, r, http.MethodGet, "/api/v1/allocation/history?year_gt=abc", nil)
	require.Equal(t, response.CodeParamError, env.Code)
}

func TestResolvePeriodDefaultsToCurrentPeriod(t *testing.T) {
	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "saghat.db")},
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	h := NewHandler(db, nil, testConfig(), nil)
	h.now = func() time.Time { return time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC) }

	period, err := h.resolvePeriod(0, 0)
	require.NoError(t, err)
	require.Equal(t, model.NewPeriod(2024, 3), period)

	period, err = h.resolvePeriod(1403, 7)
	require.NoError(t, err)
	require.Equal(t, model.NewPeriod(1403, 7), period)
}

func TestFundConfigEndpoints(t *testing.T) {
	r, _ := setupTestRouter(t)

	env := doJSON(t, r, http.MethodGet, "/api/v1/fund/config", nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var cfg model.FundConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	require.Equal(t, "20", cfg.MinPeriodicFee.String())
	require.Equal(t, 24, cfg.MaxRepaymentPeriods)

	env = doJSON(t, r, http.MethodPost, "/api/v1/fund/config", gin.H{
		"min_periodic_fee": "30", "max_repayment_periods": 12, "min_loan_repayment_amount": "15",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodGet, "/api/v1/fund/config", nil)
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	require.Equal(t, "30", cfg.MinPeriodicFee.String())
	require.Equal(t, 12, cfg.MaxRepaymentPeriods)

	env = doJSON(t, r, http.MethodPost, "/api/v1/fund/config", gin.H{
		"min_periodic_fee": "30", "max_repayment_periods": 0, "min_loan_repayment_amount": "15",
	})
	require.Equal(t, response.CodeParamError, env.Code)
}

func TestDeactivatedMemberNeedNotPay(t *testing.T) {
	r, _ := setupTestRouter(t)
	ali := createMember(t, r, "ali")
	reza := createMember(t, r, "reza")

	env := doJSON(t, r, http.MethodPost, "/api/v1/member/active", gin.H{"member_id": reza, "active": false})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodPost, "/api/v1/payment/submit", gin.H{
		"member_id": ali, "year": 1403, "month": 1, "membership_fee": "20",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = doJSON(t, r, http.MethodPost, "/api/v1/allocation/run", gin.H{"year": 1403, "month": 1})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	require.Contains(t, string(env.Data), model.AllocationStateUnallocated)
}
