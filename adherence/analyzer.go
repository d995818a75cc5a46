/*
Package adherence computes adherence analytics over compliance history.

PURPOSE:
  Pure functions over a snapshot of (plan item names, records). Nothing here
  touches a store, a clock or a logger; "today" is always an argument.

RATIOS:
  dailyRatio = |items_completed ∩ plan items| / |plan items|

  Ratios are decimal.Decimal so that "perfect" (exactly 1) and "flat" trend
  (exactly 0 delta) are exact comparisons. Names no longer in the plan stay
  in the record but never count.

AVERAGING POLICIES (intentionally different):
  OverallCompliance: mean over EVERY record, zero-ratio records included.
  WindowAverage (weekly/monthly): mean over days in the window that have a
    record with ratio > 0. Days without a record and zero days are left out
    of both numerator and denominator.

DUPLICATES:
  Day-indexed functions union same-day records before computing, so a stale
  duplicate in the snapshot cannot double count a day.

SEE ALSO:
  - calendar.go: Day buckets for rendering
  - summary.go: Everything a dashboard needs in one call
*/
package adherence

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/adherence-engine/compliance"
)

var (
	one       = decimal.NewFromInt(1)
	hundred   = decimal.NewFromInt(100)
	goodFloor = decimal.RequireFromString("0.8")
	fairFloor = decimal.RequireFromString("0.5")
	trendBand = decimal.NewFromInt(10)
)

// =============================================================================
// RATIOS
// =============================================================================

// DailyRatio is the fraction of the plan's items completed in rec. An empty
// plan yields 0.
func DailyRatio(rec compliance.Record, planItemNames []string) decimal.Decimal {
	total := distinctCount(planItemNames)
	if total == 0 {
		return decimal.Zero
	}
	done := rec.ItemsCompleted.CountIn(planItemNames)
	return decimal.NewFromInt(int64(done)).Div(decimal.NewFromInt(int64(total)))
}

// OverallCompliance is the mean DailyRatio over every record given. Days
// with no record are not represented. No records yields 0.
func OverallCompliance(records []compliance.Record, planItemNames []string) decimal.Decimal {
	if len(records) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, rec := range records {
		sum = sum.Add(DailyRatio(rec, planItemNames))
	}
	return sum.Div(decimal.NewFromInt(int64(len(records))))
}

// WindowAverage averages DailyRatio over the days in [from, to] that have a
// record with a ratio above zero.
func WindowAverage(records []compliance.Record, from, to compliance.Date, planItemNames []string) decimal.Decimal {
	days := ByDay(records)
	sum := decimal.Zero
	counted := 0
	for _, d := range compliance.DateRange(from, to) {
		rec, ok := days[d]
		if !ok {
			continue
		}
		ratio := DailyRatio(rec, planItemNames)
		if !ratio.IsPositive() {
			continue
		}
		sum = sum.Add(ratio)
		counted++
	}
	if counted == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(counted)))
}

// WeeklyAverage is WindowAverage over one week.
func WeeklyAverage(records []compliance.Record, weekStart, weekEnd compliance.Date, planItemNames []string) decimal.Decimal {
	return WindowAverage(records, weekStart, weekEnd, planItemNames)
}

// MonthlyAverage is WindowAverage over one calendar month.
func MonthlyAverage(records []compliance.Record, year int, month time.Month, planItemNames []string) decimal.Decimal {
	return WindowAverage(records, compliance.StartOfMonth(year, month), compliance.EndOfMonth(year, month), planItemNames)
}

// =============================================================================
// STREAK
// =============================================================================

// Streak counts consecutive days ending at today that each have a record
// with a ratio above zero. The first missing or zero day ends the walk.
func Streak(records []compliance.Record, planItemNames []string, today compliance.Date) int {
	days := ByDay(records)
	streak := 0
	for d := today; ; d = d.AddDays(-1) {
		rec, ok := days[d]
		if !ok || !DailyRatio(rec, planItemNames).IsPositive() {
			return streak
		}
		streak++
	}
}

// =============================================================================
// BUCKETS & TRENDS
// =============================================================================

type Bucket string

const (
	BucketPerfect Bucket = "perfect"
	BucketGood    Bucket = "good"
	BucketFair    Bucket = "fair"
	BucketPoor    Bucket = "poor"
	BucketNone    Bucket = "none"
)

// ClassifyBucket maps a day's ratio to its display bucket. A day without a
// record, or with nothing completed, is BucketNone.
func ClassifyBucket(ratio decimal.Decimal, hasRecord bool) Bucket {
	switch {
	case !hasRecord:
		return BucketNone
	case ratio.GreaterThanOrEqual(one):
		return BucketPerfect
	case ratio.GreaterThanOrEqual(goodFloor):
		return BucketGood
	case ratio.GreaterThanOrEqual(fairFloor):
		return BucketFair
	case ratio.IsPositive():
		return BucketPoor
	default:
		return BucketNone
	}
}

type Trend string

const (
	TrendExcellentImprovement Trend = "excellent improvement"
	TrendSlightImprovement    Trend = "slight improvement"
	TrendFlat                 Trend = "flat"
	TrendSlightDecline        Trend = "slight decline"
	TrendSignificantDecline   Trend = "significant decline"
)

// ClassifyTrend compares two averages expressed as percentages (0-100).
func ClassifyTrend(thisWeekPct, lastWeekPct decimal.Decimal) Trend {
	delta := thisWeekPct.Sub(lastWeekPct)
	switch {
	case delta.GreaterThan(trendBand):
		return TrendExcellentImprovement
	case delta.IsPositive():
		return TrendSlightImprovement
	case delta.IsZero():
		return TrendFlat
	case delta.GreaterThanOrEqual(trendBand.Neg()):
		return TrendSlightDecline
	default:
		return TrendSignificantDecline
	}
}

// Percent converts a ratio in [0, 1] to a percentage.
func Percent(ratio decimal.Decimal) decimal.Decimal {
	return ratio.Mul(hundred)
}

// =============================================================================
// HELPERS
// =============================================================================

// ByDay indexes records by date, unioning the completions of same-day
// duplicates.
func ByDay(records []compliance.Record) map[compliance.Date]compliance.Record {
	days := make(map[compliance.Date]compliance.Record, len(records))
	for _, rec := range records {
		if existing, ok := days[rec.Date]; ok {
			existing.ItemsCompleted = existing.ItemsCompleted.Union(rec.ItemsCompleted)
			days[rec.Date] = existing
			continue
		}
		days[rec.Date] = rec
	}
	return days
}

func distinctCount(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	return len(seen)
}
