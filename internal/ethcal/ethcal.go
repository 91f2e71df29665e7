// Package ethcal converts Gregorian dates to the Ethiopian calendar used for
// fiscal boundaries. The Ethiopian year is 7-8 years behind the Gregorian
// year; Ethiopian New Year (Enkutatash) falls on September 11, or September
// 12 when the Gregorian year it falls in is a leap year. All dates are UTC.
package ethcal

import "time"

// IsGregorianLeapYear reports whether a Gregorian year is a leap year.
func IsGregorianLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// NewYearDate returns the Ethiopian New Year date within the given
// Gregorian year, at midnight UTC.
func NewYearDate(gregorianYear int) time.Time {
	day := 11
	if IsGregorianLeapYear(gregorianYear) {
		day = 12
	}
	return time.Date(gregorianYear, time.September, day, 0, 0, 0, 0, time.UTC)
}

// YearOf returns the Ethiopian year a Gregorian instant falls in.
// Before New Year the offset is 8 years, after it 7.
func YearOf(date time.Time) int {
	date = date.UTC()
	if date.Before(NewYearDate(date.Year())) {
		return date.Year() - 8
	}
	return date.Year() - 7
}

// NextNewYear returns the first Ethiopian New Year strictly after from.
func NextNewYear(from time.Time) time.Time {
	from = from.UTC()
	thisYear := NewYearDate(from.Year())
	if from.Before(thisYear) {
		return thisYear
	}
	return NewYearDate(from.Year() + 1)
}

// YearInfo describes the Ethiopian calendar position of an instant.
type YearInfo struct {
	CurrentYear      int
	NextYear         int
	NextNewYearDate  time.Time
	DaysUntilNewYear int
	IsLeapYear       bool
}

// Info computes YearInfo for the given instant.
func Info(now time.Time) YearInfo {
	now = now.UTC()
	current := YearOf(now)
	next := NextNewYear(now)
	days := int(next.Sub(now).Hours() / 24)
	if next.Sub(now)%(24*time.Hour) != 0 {
		days++
	}
	return YearInfo{
		CurrentYear:      current,
		NextYear:         current + 1,
		NextNewYearDate:  next,
		DaysUntilNewYear: days,
		IsLeapYear:       IsGregorianLeapYear(next.Year()),
	}
}
