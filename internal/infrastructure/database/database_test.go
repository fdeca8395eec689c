package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"saghat/internal/config"
	"saghat/internal/model"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "saghat.db")},
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenMigratesAllTables(t *testing.T) {
	db := openTestDB(t)
	for _, m := range model.All() {
		require.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestAllocationPeriodIsUnique(t *testing.T) {
	db := openTestDB(t)

	first := &model.Allocation{AllocationNo: "ALC1", State: model.AllocationStateUnallocated, PeriodYear: 1403, PeriodMonth: 1}
	require.NoError(t, db.Create(first).Error)

	second := &model.Allocation{AllocationNo: "ALC2", State: model.AllocationStateUnallocated, PeriodYear: 1403, PeriodMonth: 1}
	err := db.Create(second).Error
	require.Error(t, err)
	require.True(t, IsDuplicateKey(err), "unexpected error: %v", err)

	var count int64
	require.NoError(t, db.Model(&model.Allocation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPaymentMemberPeriodIsUnique(t *testing.T) {
	db := openTestDB(t)

	p := func(no string) *model.PeriodPayment {
		return &model.PeriodPayment{
			PaymentNo: no, MemberID: 1, PeriodYear: 1403, PeriodMonth: 2,
			Amount: decimal.NewFromInt(20), MembershipFee: decimal.NewFromInt(20),
		}
	}
	require.NoError(t, db.Create(p("PMT1")).Error)
	require.True(t, IsDuplicateKey(db.Create(p("PMT2")).Error))
}

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "mysql 1062", err: &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, want: true},
		{name: "mysql other", err: &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock"}, want: false},
		{name: "postgres 23505", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "sqlite text", err: errors.New("constraint failed: UNIQUE constraint failed: allocation.period_year"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsDuplicateKey(tt.err))
		})
	}
}
