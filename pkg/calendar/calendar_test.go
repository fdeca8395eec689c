package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestYearMonthJalali(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		wantYear  int
		wantMonth int
	}{
		// 1403 年元旦（Nowruz）为 2024-03-20
		{name: "first day of 1403", at: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC), wantYear: 1403, wantMonth: 1},
		{name: "last month of 1402", at: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), wantYear: 1402, wantMonth: 12},
		{name: "mid 1403", at: time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC), wantYear: 1403, wantMonth: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, month, err := YearMonth(tt.at, Jalali)
			require.NoError(t, err)
			require.Equal(t, tt.wantYear, year)
			require.Equal(t, tt.wantMonth, month)
		})
	}
}

func TestYearMonthGregorianUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	year, month, err := YearMonth(time.Date(2025, 1, 1, 2, 0, 0, 0, loc), Gregorian)
	require.NoError(t, err)
	require.Equal(t, 2024, year)
	require.Equal(t, 12, month)
}

func TestYearMonthUnknownSystem(t *testing.T) {
	_, _, err := YearMonth(time.Now(), "lunar")
	require.Error(t, err)
}
