package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// Contains reports whether day falls inside the criterion's validity window.
func (c Criterion) Contains(day time.Time) bool {
	day = Day(day)
	if day.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || !day.After(*c.EndDate)
}

// Overlaps reports whether two closed windows intersect; a nil end is +inf.
func Overlaps(s1 time.Time, e1 *time.Time, s2 time.Time, e2 *time.Time) bool {
	startsBeforeOtherEnds := func(s time.Time, e *time.Time) bool {
		return e == nil || !s.After(*e)
	}
	return startsBeforeOtherEnds(s1, e2) && startsBeforeOtherEnds(s2, e1)
}

// CompletionPercentage rounds actual/target*100 half away from zero; no clamp.
func CompletionPercentage(actual, target float64) int64 {
	return int64(math.Round(actual / target * 100))
}

// PercentageFits reports whether CompletionPercentage(actual, target) is
// representable as an int64.
func PercentageFits(actual, target float64) bool {
	pct := math.Round(actual / target * 100)
	return pct >= float64(math.MinInt64) && pct < float64(math.MaxInt64)
}

// Evaluate is the only transition into COMPLETED. It applies to both
// ASSIGNED and COMPLETED assignments and always recomputes from actual.
func Evaluate(a Assignment, actual, target float64, at time.Time) Assignment {
	next := Evaluation{
		ActualValue:          actual,
		CompletionPercentage: CompletionPercentage(actual, target),
		Count:                1,
		FirstEvaluatedAt:     at,
		LastEvaluatedAt:      at,
	}
	if prev := a.Evaluation; prev != nil {
		next.Count = prev.Count + 1
		next.FirstEvaluatedAt = prev.FirstEvaluatedAt
	}
	a.Evaluation = &next
	a.UpdatedAt = at
	return a
}

// Rescore recomputes the percentage of an evaluated assignment against a new
// target without counting as an evaluation.
func Rescore(a Assignment, target float64) Assignment {
	if a.Evaluation == nil {
		return a
	}
	ev := *a.Evaluation
	ev.CompletionPercentage = CompletionPercentage(ev.ActualValue, target)
	a.Evaluation = &ev
	return a
}
