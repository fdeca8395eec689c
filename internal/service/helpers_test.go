package service

import (
	"path/filepath"
	"testing"

	"saghat/internal/config"
	"saghat/internal/infrastructure/database"
	"saghat/internal/model"
	"saghat/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Calendar = "jalali"
	cfg.Database.Driver = "sqlite"
	cfg.Kafka.Topic.AllocationResult = "saghat.allocation.result"
	cfg.Kafka.Topic.PaymentRecorded = "saghat.payment.recorded"
	cfg.Business.MaxRetryCount = 3
	cfg.Business.Fund = config.FundConfig{
		MinPeriodicFee:         "20",
		MaxRepaymentPeriods:    24,
		MinLoanRepaymentAmount: "20",
	}
	cfg.Business.Assignment.LockTTLSeconds = 60
	return cfg
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "saghat.db")},
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func createMember(t *testing.T, db *gorm.DB, username, balance, request string, isMain bool) *model.Member {
	t.Helper()
	m := &model.Member{
		Username:          username,
		Balance:           dec(balance),
		LoanRequestAmount: dec(request),
		IsMain:            isMain,
		IsActive:          true,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

func recordPayment(t *testing.T, db *gorm.DB, memberID int64, period model.Period, amount string) *model.PeriodPayment {
	t.Helper()
	p := &model.PeriodPayment{
		PaymentNo:     idgen.GeneratePaymentNo(),
		MemberID:      memberID,
		PeriodYear:    period.Year,
		PeriodMonth:   period.Month,
		Amount:        dec(amount),
		MembershipFee: dec(amount),
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func recordAllocation(t *testing.T, db *gorm.DB, memberID int64, period model.Period, amount string) *model.Allocation {
	t.Helper()
	selected := memberID
	a := &model.Allocation{
		AllocationNo:          idgen.GenerateAllocationNo(),
		MemberID:              &memberID,
		Amount:                decPtr(amount),
		State:                 model.AllocationStateActive,
		PeriodYear:            period.Year,
		PeriodMonth:           period.Month,
		MinRepaymentPerPeriod: decPtr("20"),
		AuditLog:              datatypes.NewJSONType(model.AuditLog{Selected: &selected, RandomPool: []int64{memberID}}),
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func recordPortion(t *testing.T, db *gorm.DB, payment *model.PeriodPayment, allocationID int64, amount string) {
	t.Helper()
	require.NoError(t, db.Create(&model.LoanRepaymentPortion{
		PaymentID:    payment.ID,
		AllocationID: allocationID,
		MemberID:     payment.MemberID,
		PeriodYear:   payment.PeriodYear,
		PeriodMonth:  payment.PeriodMonth,
		Amount:       dec(amount),
	}).Error)
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}
