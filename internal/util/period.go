package util

import (
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
)

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CalculateActualDate returns the actual date for a target day in a given month,
// handling months with fewer days (e.g., day 31 in February returns Feb 28/29)
func CalculateActualDate(year int, month time.Month, targetDay int) time.Time {
	// day 0 of the next month is the last day of this one
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	actualDay := targetDay
	if actualDay > lastDay {
		actualDay = lastDay
	}

	return time.Date(year, month, actualDay, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped moves t forward by n months keeping the day of month where it exists.
// Jan 31 + 1 month is Feb 28 (or 29), not Mar 3.
func AddMonthsClamped(t time.Time, n int) time.Time {
	t = StartOfDay(t)
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return CalculateActualDate(firstOfTarget.Year(), firstOfTarget.Month(), t.Day())
}

// PeriodEnd returns the inclusive last day of a budget period beginning on start
func PeriodEnd(start time.Time, period domain.BudgetPeriod) time.Time {
	start = StartOfDay(start)
	switch period {
	case domain.BudgetPeriodDaily:
		return start
	case domain.BudgetPeriodWeekly:
		return start.AddDate(0, 0, 6)
	case domain.BudgetPeriodMonthly:
		return AddMonthsClamped(start, 1).AddDate(0, 0, -1)
	case domain.BudgetPeriodYearly:
		return AddMonthsClamped(start, 12).AddDate(0, 0, -1)
	}
	return start
}
