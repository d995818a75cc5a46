package adherence_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/adherence-engine/adherence"
	"github.com/warp/adherence-engine/compliance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	threeItems = []string{"A", "B", "C"}
	tenItems   = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	monday     = compliance.NewDate(2025, 3, 10)
)

func day(date compliance.Date, items ...string) compliance.Record {
	return compliance.Record{
		ID:             compliance.RecordID(date.String()),
		ClientID:       "client-1",
		PlanID:         "plan-1",
		Date:           date,
		ItemsCompleted: compliance.NewItemSet(items...),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// RATIOS
// =============================================================================

func TestDailyRatio_TwoOfThree_IsFair(t *testing.T) {
	ratio := adherence.DailyRatio(day(monday, "A", "B"), threeItems)

	assert.Equal(t, "0.667", ratio.StringFixed(3))
	assert.Equal(t, adherence.BucketFair, adherence.ClassifyBucket(ratio, true))
}

func TestDailyRatio_AllItems_IsPerfect(t *testing.T) {
	ratio := adherence.DailyRatio(day(monday, "A", "B", "C"), threeItems)

	assert.True(t, ratio.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, adherence.BucketPerfect, adherence.ClassifyBucket(ratio, true))
}

func TestDailyRatio_NamesOutsidePlanIgnored(t *testing.T) {
	ratio := adherence.DailyRatio(day(monday, "A", "Retired", "Other"), threeItems)

	assert.Equal(t, "0.333", ratio.StringFixed(3))
	assert.True(t, ratio.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestDailyRatio_EmptyPlan_IsZero(t *testing.T) {
	ratio := adherence.DailyRatio(day(monday, "A"), nil)

	assert.True(t, ratio.IsZero())
}

func TestDailyRatio_AlwaysWithinBounds(t *testing.T) {
	zero, one := decimal.Zero, decimal.NewFromInt(1)
	outside := []string{"Retired", "Typo"}

	for size := 0; size <= 6; size++ {
		plan := make([]string, size)
		for i := range plan {
			plan[i] = fmt.Sprintf("item-%d", i)
		}
		// The plan repeated once more: duplicate names count once.
		repeated := append(append([]string{}, plan...), plan...)
		candidates := append(append([]string{}, plan...), outside...)

		for mask := 0; mask < 1<<len(candidates); mask++ {
			var taken []string
			inPlan := 0
			for i, name := range candidates {
				if mask&(1<<i) == 0 {
					continue
				}
				taken = append(taken, name)
				if i < size {
					inPlan++
				}
			}
			rec := day(monday, taken...)

			for _, names := range [][]string{plan, repeated} {
				ratio := adherence.DailyRatio(rec, names)
				assert.True(t, ratio.GreaterThanOrEqual(zero), "size=%d mask=%b ratio=%s", size, mask, ratio)
				assert.True(t, ratio.LessThanOrEqual(one), "size=%d mask=%b ratio=%s", size, mask, ratio)
				if size > 0 {
					want := decimal.NewFromInt(int64(inPlan)).Div(decimal.NewFromInt(int64(size)))
					assert.True(t, want.Equal(ratio), "size=%d mask=%b want=%s got=%s", size, mask, want, ratio)
				}
			}
		}
	}
}

func TestOverallCompliance_CountsZeroDays(t *testing.T) {
	records := []compliance.Record{
		day(monday, "A", "B", "C"),
		day(monday.AddDays(1)),
	}

	overall := adherence.OverallCompliance(records, threeItems)

	assert.Equal(t, "0.5", overall.String())
	assert.True(t, adherence.OverallCompliance(nil, threeItems).IsZero())
}

func TestWeeklyAverage_ExcludesDaysWithoutRecords(t *testing.T) {
	// GIVEN: a week where only 3 days have records, ratios 1.0, 0.5 and 0.8
	// WHEN: the weekly average is computed
	// THEN: it is their mean (~76.7%), not the sum divided by 7

	records := []compliance.Record{
		day(monday, tenItems...),
		day(monday.AddDays(2), tenItems[:5]...),
		day(monday.AddDays(4), tenItems[:8]...),
	}

	avg := adherence.WeeklyAverage(records, monday, monday.AddDays(6), tenItems)

	assert.Equal(t, "0.767", avg.StringFixed(3))
	assert.Equal(t, "76.7", adherence.Percent(avg).StringFixed(1))
}

func TestWeeklyAverage_ExcludesZeroDays(t *testing.T) {
	records := []compliance.Record{
		day(monday, "A", "B", "C"),
		day(monday.AddDays(1)),
	}

	avg := adherence.WeeklyAverage(records, monday, monday.AddDays(6), threeItems)

	assert.True(t, avg.Equal(decimal.NewFromInt(1)))
}

func TestWeeklyAverage_NoRecords_IsZero(t *testing.T) {
	assert.True(t, adherence.WeeklyAverage(nil, monday, monday.AddDays(6), threeItems).IsZero())
}

func TestWindowAverage_SameDayDuplicatesCountOnce(t *testing.T) {
	records := []compliance.Record{
		day(monday, "A"),
		day(monday, "B"),
	}

	avg := adherence.WeeklyAverage(records, monday, monday.AddDays(6), threeItems)

	assert.Equal(t, "0.667", avg.StringFixed(3))
}

func TestMonthlyAverage_OnlyThatMonth(t *testing.T) {
	records := []compliance.Record{
		day(compliance.NewDate(2025, 2, 28), "A"),
		day(compliance.NewDate(2025, 3, 1), "A", "B", "C"),
		day(compliance.NewDate(2025, 3, 31), "A", "B", "C"),
		day(compliance.NewDate(2025, 4, 1), "A"),
	}

	avg := adherence.MonthlyAverage(records, 2025, time.March, threeItems)

	assert.True(t, avg.Equal(decimal.NewFromInt(1)))
}

// =============================================================================
// STREAK
// =============================================================================

func TestStreak_GapStopsWalk(t *testing.T) {
	// GIVEN: today 0.5, yesterday missing, two days ago 1.0
	// THEN: streak is 1

	plan := []string{"A", "B"}
	today := monday.AddDays(2)
	records := []compliance.Record{
		day(today, "A"),
		day(today.AddDays(-2), "A", "B"),
	}

	assert.Equal(t, 1, adherence.Streak(records, plan, today))
}

func TestStreak_TodayMissing_IsZero(t *testing.T) {
	records := []compliance.Record{day(monday.AddDays(-1), "A")}

	assert.Zero(t, adherence.Streak(records, threeItems, monday))
}

func TestStreak_ZeroDayStopsWalk(t *testing.T) {
	records := []compliance.Record{
		day(monday, "A"),
		day(monday.AddDays(-1), "A"),
		day(monday.AddDays(-2)),
		day(monday.AddDays(-3), "A"),
	}

	assert.Equal(t, 2, adherence.Streak(records, threeItems, monday))
}

func TestStreak_GapAtEveryPosition(t *testing.T) {
	// GIVEN: a run of n days ending today with one day broken at offset gap
	// THEN: the streak is exactly the unbroken run after the gap, whether
	// the day is missing or recorded with nothing taken

	plan := []string{"A", "B"}
	today := monday.AddDays(20)

	for n := 1; n <= 8; n++ {
		for gap := 0; gap < n; gap++ {
			for _, zeroDay := range []bool{false, true} {
				var records []compliance.Record
				for offset := 0; offset < n; offset++ {
					d := today.AddDays(-offset)
					switch {
					case offset != gap:
						records = append(records, day(d, "A"))
					case zeroDay:
						records = append(records, day(d, "Retired"))
					}
				}

				got := adherence.Streak(records, plan, today)

				assert.Equal(t, gap, got, "n=%d gap=%d zeroDay=%v", n, gap, zeroDay)
			}
		}

		// Unbroken run, then one more day before it extends the streak.
		var run []compliance.Record
		for offset := 0; offset < n; offset++ {
			run = append(run, day(today.AddDays(-offset), "A", "B"))
		}
		assert.Equal(t, n, adherence.Streak(run, plan, today))
		longer := append(run, day(today.AddDays(-n), "B"))
		assert.Equal(t, n+1, adherence.Streak(longer, plan, today))
	}
}

// =============================================================================
// BUCKETS & TRENDS
// =============================================================================

func TestClassifyBucket(t *testing.T) {
	tests := []struct {
		ratio     string
		hasRecord bool
		want      adherence.Bucket
	}{
		{"1", true, adherence.BucketPerfect},
		{"0.8", true, adherence.BucketGood},
		{"0.79", true, adherence.BucketFair},
		{"0.5", true, adherence.BucketFair},
		{"0.49", true, adherence.BucketPoor},
		{"0.01", true, adherence.BucketPoor},
		{"0", true, adherence.BucketNone},
		{"0", false, adherence.BucketNone},
		{"1", false, adherence.BucketNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, adherence.ClassifyBucket(dec(tt.ratio), tt.hasRecord), "%s/%v", tt.ratio, tt.hasRecord)
	}
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		this, last string
		want       adherence.Trend
	}{
		{"90", "70", adherence.TrendExcellentImprovement},
		{"80.1", "70", adherence.TrendExcellentImprovement},
		{"80", "70", adherence.TrendSlightImprovement},
		{"70.5", "70", adherence.TrendSlightImprovement},
		{"70", "70", adherence.TrendFlat},
		{"65", "70", adherence.TrendSlightDecline},
		{"60", "70", adherence.TrendSlightDecline},
		{"59.9", "70", adherence.TrendSignificantDecline},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, adherence.ClassifyTrend(dec(tt.this), dec(tt.last)), "%s vs %s", tt.this, tt.last)
	}
}
