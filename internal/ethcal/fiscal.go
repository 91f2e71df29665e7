package ethcal

import (
	"fmt"
	"time"
)

// The fiscal year tracks the Ethiopian calendar: it starts at Ethiopian New
// Year and is divided into four 3-month quarters anchored at that date.
// Reporting windows are half-open [start, end).

// FiscalYearWindow returns the [start, end) window of an Ethiopian fiscal year.
func FiscalYearWindow(ethiopianYear int) (time.Time, time.Time) {
	start := NewYearDate(ethiopianYear + 7)
	end := NewYearDate(ethiopianYear + 8)
	return start, end
}

// QuarterWindow returns the [start, end) window of a fiscal quarter (1-4).
func QuarterWindow(ethiopianYear, quarter int) (time.Time, time.Time, error) {
	if quarter < 1 || quarter > 4 {
		return time.Time{}, time.Time{}, fmt.Errorf("ethcal: quarter must be between 1 and 4, got %d", quarter)
	}
	yearStart, yearEnd := FiscalYearWindow(ethiopianYear)
	start := yearStart.AddDate(0, 3*(quarter-1), 0)
	end := yearStart.AddDate(0, 3*quarter, 0)
	if quarter == 4 {
		// Q4 absorbs the drift from New Year moving on leap years.
		end = yearEnd
	}
	return start, end, nil
}

// QuarterOf returns the Ethiopian fiscal year and quarter a date falls in.
func QuarterOf(date time.Time) (year, quarter int) {
	date = date.UTC()
	year = YearOf(date)
	for q := 1; q <= 4; q++ {
		start, end, _ := QuarterWindow(year, q)
		if !date.Before(start) && date.Before(end) {
			return year, q
		}
	}
	// Unreachable for valid UTC inputs; Q4 covers up to the next New Year.
	return year, 4
}

// QuarterLabel renders a human-readable fiscal quarter label, e.g. "FY 2017 Q1".
func QuarterLabel(ethiopianYear, quarter int) string {
	return fmt.Sprintf("FY %d Q%d", ethiopianYear, quarter)
}
