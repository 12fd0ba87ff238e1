/*
daycount.go - Day-count conventions and pause-aware interest day math

PURPOSE:
  Interest is a function of time, and the day-count convention decides how
  time is measured: how many days separate two dates, and how many days a
  year has for the purpose of a daily rate. Interest pauses cut days out of
  the measurement entirely - a paused day earns no interest, it is excluded,
  never deferred.

CONVENTIONS:
  ActualActual: actual days elapsed over the actual year length (365/366)
  Actual360:    actual days elapsed over a 360-day year
  Thirty360:    30-day months over a 360-day year

SEE ALSO:
  - recalc.go: day-by-day interest recomputation over the principal curve
  - accrual.go: accrued-interest measurement between accrual postings
*/
package loan

import "github.com/shopspring/decimal"

// =============================================================================
// DAY-COUNT CONVENTION
// =============================================================================

type DayCountConvention string

const (
	ActualActual DayCountConvention = "actual/actual"
	Actual360    DayCountConvention = "actual/360"
	Thirty360    DayCountConvention = "30/360"
)

// YearDays returns the year-length denominator for a daily rate on the
// given day.
func (dc DayCountConvention) YearDays(d Date) int {
	switch dc {
	case ActualActual:
		if d.IsLeapYear() {
			return 366
		}
		return 365
	default:
		return 360
	}
}

// DaysBetween counts interest-bearing days in [from, to) under the
// convention. Thirty360 caps each month at 30 days.
func (dc DayCountConvention) DaysBetween(from, to Date) int {
	if !to.After(from) {
		return 0
	}
	if dc == Thirty360 {
		d1, d2 := from.Day(), to.Day()
		if d1 > 30 {
			d1 = 30
		}
		if d2 > 30 && d1 == 30 {
			d2 = 30
		}
		return (to.Year()-from.Year())*360 + (int(to.Month())-int(from.Month()))*30 + (d2 - d1)
	}
	return CalendarDaysBetween(from, to)
}

// =============================================================================
// DAILY RATE
// =============================================================================

// DailyRate returns the interest rate for a single day given a nominal
// annual percentage rate (e.g. 9.99 for 9.99%).
func (dc DayCountConvention) DailyRate(annualRatePercent decimal.Decimal, d Date) decimal.Decimal {
	return annualRatePercent.
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(dc.YearDays(d))))
}

// PeriodFraction returns the fraction of a year covered by [from, to) under
// the convention, used for period-level (non-daily) interest.
func (dc DayCountConvention) PeriodFraction(from, to Date) decimal.Decimal {
	days := dc.DaysBetween(from, to)
	return decimal.NewFromInt(int64(days)).
		Div(decimal.NewFromInt(int64(dc.YearDays(from))))
}

// =============================================================================
// PAUSE-AWARE DAY ITERATION
// =============================================================================

// isPaused reports whether the day falls inside any interest pause.
func isPaused(d Date, pauses []InterestPause) bool {
	for _, p := range pauses {
		if p.Contains(d) {
			return true
		}
	}
	return false
}

// interestOver walks [from, to) one day at a time and sums
// dailyRate * outstanding(day), skipping paused days. This is the single
// measurement used by both the recalculation engine and accrual generation,
// so the two can never disagree.
func interestOver(
	from, to Date,
	dc DayCountConvention,
	annualRatePercent decimal.Decimal,
	outstanding func(Date) Money,
	pauses []InterestPause,
) decimal.Decimal {
	sum := decimal.Zero
	for d := from; d.Before(to); d = d.AddDays(1) {
		// Thirty360 prices at most 30 days per month; the 31st earns
		// nothing, matching the period-level day count.
		if dc == Thirty360 && d.Day() == 31 {
			continue
		}
		if isPaused(d, pauses) {
			continue
		}
		principal := outstanding(d)
		if !principal.IsPositive() {
			continue
		}
		sum = sum.Add(principal.Value.Mul(dc.DailyRate(annualRatePercent, d)))
	}
	return sum
}
