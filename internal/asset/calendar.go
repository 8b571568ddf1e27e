package asset

import "time"

// Date returns the calendar date y-m-d at midnight UTC. Out-of-range values
// are normalized the way time.Date normalizes them.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the time of day and location of t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// IsLeapYear applies the proleptic Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// LastDayOf returns the number of days in month for the given year.
func LastDayOf(month time.Month, year int) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// maxDayOf is the largest day a month can have in any year.
func maxDayOf(month time.Month) int {
	if month == time.February {
		return 29
	}
	return LastDayOf(month, 1)
}
