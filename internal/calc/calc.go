// Package calc holds the small numeric helpers shared by the metric components.
package calc

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Ratio returns num/den rounded to places, or an invalid NullDecimal when den is zero.
func Ratio(num, den decimal.Decimal, places int32) decimal.NullDecimal {
	if den.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(num.DivRound(den, places))
}

// IntRatio is Ratio over integer counts.
func IntRatio(num, den int, places int32) decimal.NullDecimal {
	return Ratio(decimal.NewFromInt(int64(num)), decimal.NewFromInt(int64(den)), places)
}

// Growth returns (cur-prev)/prev*100 rounded to 2 places; invalid when prev is zero.
func Growth(prev, cur decimal.Decimal) decimal.NullDecimal {
	if prev.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(cur.Sub(prev).Mul(decimal.NewFromInt(100)).DivRound(prev, 2))
}

// ElapsedDays is the number of whole 24h periods from from to to, floored.
func ElapsedDays(from, to time.Time) int {
	d := to.Sub(from)
	n := int(d / day)
	if d < 0 && d%day != 0 {
		n--
	}
	return n
}

// CalendarDays is the difference in UTC calendar dates from from to to.
func CalendarDays(from, to time.Time) int {
	return ElapsedDays(midnight(from), midnight(to))
}

// Mean averages ints to places; invalid for an empty input.
func Mean(values []int, places int32) decimal.NullDecimal {
	if len(values) == 0 {
		return decimal.NullDecimal{}
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return IntRatio(sum, len(values), places)
}

func midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
