package ethcal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewYearDate(t *testing.T) {
	require.Equal(t, date(2023, time.September, 11), NewYearDate(2023))
	// 2024 is a Gregorian leap year, pushing New Year to September 12.
	require.Equal(t, date(2024, time.September, 12), NewYearDate(2024))
	require.Equal(t, date(2025, time.September, 11), NewYearDate(2025))
	require.Equal(t, date(2100, time.September, 11), NewYearDate(2100))
}

func TestYearOf(t *testing.T) {
	cases := []struct {
		in   time.Time
		want int
	}{
		{date(2024, time.September, 11), 2016}, // still before the leap-year New Year
		{date(2024, time.September, 12), 2017},
		{date(2025, time.January, 1), 2017},
		{date(2025, time.September, 10), 2017},
		{date(2025, time.September, 11), 2018},
		{date(2026, time.August, 30), 2018},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, YearOf(tc.in), "date %s", tc.in)
	}
}

func TestNextNewYear(t *testing.T) {
	require.Equal(t, date(2024, time.September, 12), NextNewYear(date(2024, time.March, 1)))
	require.Equal(t, date(2025, time.September, 11), NextNewYear(date(2024, time.September, 12)))
	require.Equal(t, date(2025, time.September, 11), NextNewYear(date(2024, time.December, 31)))
}

func TestInfo(t *testing.T) {
	info := Info(time.Date(2024, time.September, 11, 12, 0, 0, 0, time.UTC))
	require.Equal(t, 2016, info.CurrentYear)
	require.Equal(t, 2017, info.NextYear)
	require.Equal(t, date(2024, time.September, 12), info.NextNewYearDate)
	require.Equal(t, 1, info.DaysUntilNewYear)
	require.True(t, info.IsLeapYear)

	info = Info(date(2025, time.September, 1))
	require.Equal(t, 2017, info.CurrentYear)
	require.Equal(t, date(2025, time.September, 11), info.NextNewYearDate)
	require.Equal(t, 10, info.DaysUntilNewYear)
	require.False(t, info.IsLeapYear)
}

func TestFiscalYearWindow(t *testing.T) {
	start, end := FiscalYearWindow(2017)
	require.Equal(t, date(2024, time.September, 12), start)
	require.Equal(t, date(2025, time.September, 11), end)
}

func TestQuarterWindows(t *testing.T) {
	q1s, q1e, err := QuarterWindow(2017, 1)
	require.NoError(t, err)
	require.Equal(t, date(2024, time.September, 12), q1s)
	require.Equal(t, date(2024, time.December, 12), q1e)

	q4s, q4e, err := QuarterWindow(2017, 4)
	require.NoError(t, err)
	require.Equal(t, date(2025, time.June, 12), q4s)
	// Q4 ends at next New Year, not at a naive +3 months.
	require.Equal(t, date(2025, time.September, 11), q4e)

	_, _, err = QuarterWindow(2017, 5)
	require.Error(t, err)

	// Quarters tile the fiscal year with no gaps.
	ys, ye := FiscalYearWindow(2017)
	cursor := ys
	for q := 1; q <= 4; q++ {
		s, e, err := QuarterWindow(2017, q)
		require.NoError(t, err)
		require.Equal(t, cursor, s)
		cursor = e
	}
	require.Equal(t, ye, cursor)
}

func TestQuarterOf(t *testing.T) {
	year, quarter := QuarterOf(date(2024, time.October, 1))
	require.Equal(t, 2017, year)
	require.Equal(t, 1, quarter)

	year, quarter = QuarterOf(date(2025, time.September, 10))
	require.Equal(t, 2017, year)
	require.Equal(t, 4, quarter)

	year, quarter = QuarterOf(date(2025, time.September, 11))
	require.Equal(t, 2018, year)
	require.Equal(t, 1, quarter)
}
