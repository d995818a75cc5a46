package adherence

import (
	"github.com/warp/adherence-engine/compliance"
)

// CalendarDay is one rendered day of the adherence calendar.
type CalendarDay struct {
	Date           compliance.Date `json:"date"`
	Bucket         Bucket          `json:"bucket"`
	CompletedCount int             `json:"completed_count"`
	TotalCount     int             `json:"total_count"`
}

// BuildCalendar returns one entry per day in [from, to], ascending. It is a
// pure function of its inputs and safe to recompute on every read. A range
// with to before from yields an empty calendar.
func BuildCalendar(from, to compliance.Date, records []compliance.Record, planItemNames []string) []CalendarDay {
	days := ByDay(records)
	total := distinctCount(planItemNames)
	span := compliance.DateRange(from, to)

	calendar := make([]CalendarDay, 0, len(span))
	for _, d := range span {
		day := CalendarDay{Date: d, Bucket: BucketNone, TotalCount: total}
		if rec, ok := days[d]; ok {
			day.CompletedCount = rec.ItemsCompleted.CountIn(planItemNames)
			day.Bucket = ClassifyBucket(DailyRatio(rec, planItemNames), true)
		}
		calendar = append(calendar, day)
	}
	return calendar
}
