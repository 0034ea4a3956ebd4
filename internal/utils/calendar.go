package utils

import "time"

// DaysInMonth returns the number of days in a given month
func DaysInMonth(year, month int) int {
	if month == 2 {
		// Check for leap year
		if (year%4 == 0 && year%100 != 0) || (year%400 == 0) {
			return 29
		}
		return 28
	}

	// Months with 30 days: April, June, September, November
	if month == 4 || month == 6 || month == 9 || month == 11 {
		return 30
	}

	// All other months have 31 days
	return 31
}

// ClampDay maps a configured day of month onto the given month, so the 31st
// falls on the 30th in April and on the 28th or 29th in February.
func ClampDay(year, month, day int) int {
	if day < 1 {
		return 1
	}
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	return day
}

// IsDayOfMonth reports whether t falls on the clamped day of its own month.
func IsDayOfMonth(t time.Time, day int) bool {
	return t.Day() == ClampDay(t.Year(), int(t.Month()), day)
}
