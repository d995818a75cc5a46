package adherence

import (
	"github.com/shopspring/decimal"

	"github.com/warp/adherence-engine/compliance"
)

// Summary is the dashboard view of a client's adherence to one plan.
// Percentages are 0-100.
type Summary struct {
	PlanID        compliance.PlanID   `json:"plan_id"`
	ClientID      compliance.ClientID `json:"client_id"`
	AsOf          compliance.Date     `json:"as_of"`
	Overall       decimal.Decimal     `json:"overall_pct"`
	Streak        int                 `json:"streak"`
	ThisWeek      decimal.Decimal     `json:"this_week_pct"`
	LastWeek      decimal.Decimal     `json:"last_week_pct"`
	Trend         Trend               `json:"trend"`
	ThisMonth     decimal.Decimal     `json:"this_month_pct"`
	TrackedDays   int                 `json:"tracked_days"`
	PerfectDays   int                 `json:"perfect_days"`
	PlanItemCount int                 `json:"plan_item_count"`
}

// Summarize computes every aggregate for plan over records as of today.
// Weeks run Monday to Sunday.
func Summarize(plan compliance.Plan, records []compliance.Record, today compliance.Date) Summary {
	names := plan.ItemNames()

	weekStart := today.StartOfWeek()
	thisWeek := WeeklyAverage(records, weekStart, weekStart.AddDays(6), names)
	lastWeek := WeeklyAverage(records, weekStart.AddDays(-7), weekStart.AddDays(-1), names)

	s := Summary{
		PlanID:        plan.ID,
		ClientID:      plan.ClientID,
		AsOf:          today,
		Overall:       Percent(OverallCompliance(records, names)),
		Streak:        Streak(records, names, today),
		ThisWeek:      Percent(thisWeek),
		LastWeek:      Percent(lastWeek),
		ThisMonth:     Percent(MonthlyAverage(records, today.Year(), today.Month(), names)),
		PlanItemCount: distinctCount(names),
	}
	s.Trend = ClassifyTrend(s.ThisWeek, s.LastWeek)

	for _, rec := range ByDay(records) {
		s.TrackedDays++
		if ClassifyBucket(DailyRatio(rec, names), true) == BucketPerfect {
			s.PerfectDays++
		}
	}
	return s
}
