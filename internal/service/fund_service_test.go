package service

import (
	"context"
	"testing"

	"saghat/internal/config"

	"github.com/stretchr/testify/require"
)

func TestFundServiceSeedsDefaults(t *testing.T) {
	svc := NewFundService(openTestDB(t), testConfig())

	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.MinPeriodicFee.Equal(dec("20")))
	require.Equal(t, 24, cfg.MaxRepaymentPeriods)
	require.True(t, cfg.MinLoanRepaymentAmount.Equal(dec("20")))
}

func TestFundServiceUpdate(t *testing.T) {
	svc := NewFundService(openTestDB(t), testConfig())

	_, err := svc.Update(context.Background(), &UpdateFundConfigRequest{MinPeriodicFee: dec("10"), MaxRepaymentPeriods: 0, MinLoanRepaymentAmount: dec("5")})
	require.ErrorIs(t, err, ErrInvalidFundConfig)
	_, err = svc.Update(context.Background(), &UpdateFundConfigRequest{MinPeriodicFee: dec("-1"), MaxRepaymentPeriods: 3, MinLoanRepaymentAmount: dec("5")})
	require.ErrorIs(t, err, ErrInvalidFundConfig)

	_, err = svc.Update(context.Background(), &UpdateFundConfigRequest{MinPeriodicFee: dec("35"), MaxRepaymentPeriods: 12, MinLoanRepaymentAmount: dec("15")})
	require.NoError(t, err)

	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.MinPeriodicFee.Equal(dec("35")))
	require.Equal(t, 12, cfg.MaxRepaymentPeriods)
}

func TestFundDefaults(t *testing.T) {
	got := FundDefaults(&config.FundConfig{MinPeriodicFee: "12.5", MaxRepaymentPeriods: 6, MinLoanRepaymentAmount: "3"})
	require.True(t, got.MinPeriodicFee.Equal(dec("12.5")))
	require.Equal(t, 6, got.MaxRepaymentPeriods)
	require.True(t, got.MinLoanRepaymentAmount.Equal(dec("3")))
}
