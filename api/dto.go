/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Records and plans are
  returned as their compliance types (they carry JSON tags already); the
  types here are request bodies and response wrappers.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers
  - *DTO:      Flattened views (decimals rendered as numbers)

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/adherence-engine/adherence"
	"github.com/warp/adherence-engine/compliance"
)

// =============================================================================
// COMPLIANCE
// =============================================================================

// ToggleRequest marks one item taken or not taken.
type ToggleRequest struct {
	Item  string `json:"item"`
	Taken bool   `json:"taken"`
}

// ToggleResponse carries the canonical record after a toggle. Warning is set
// when the item is not part of the plan's current items.
type ToggleResponse struct {
	Record  compliance.Record             `json:"record"`
	Warning *compliance.ValidationWarning `json:"warning,omitempty"`
}

// NotesRequest replaces a day's notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// DayResponse is the reconciled state of one day.
type DayResponse struct {
	Date   compliance.Date    `json:"date"`
	Record *compliance.Record `json:"record"`
	Ratio  float64            `json:"ratio"`
	Bucket adherence.Bucket   `json:"bucket"`
}

// HistoryResponse lists one canonical record per tracked day.
type HistoryResponse struct {
	ClientID compliance.ClientID `json:"client_id"`
	PlanID   compliance.PlanID   `json:"plan_id"`
	Records  []compliance.Record `json:"records"`
}

// CalendarResponse is the rendered calendar for a date range.
type CalendarResponse struct {
	From compliance.Date         `json:"from"`
	To   compliance.Date         `json:"to"`
	Days []adherence.CalendarDay `json:"days"`
}

// SummaryDTO flattens adherence.Summary; percentages rounded to 0.1.
type SummaryDTO struct {
	ClientID      compliance.ClientID `json:"client_id"`
	PlanID        compliance.PlanID   `json:"plan_id"`
	AsOf          compliance.Date     `json:"as_of"`
	OverallPct    float64             `json:"overall_pct"`
	Streak        int                 `json:"streak"`
	ThisWeekPct   float64             `json:"this_week_pct"`
	LastWeekPct   float64             `json:"last_week_pct"`
	Trend         adherence.Trend     `json:"trend"`
	ThisMonthPct  float64             `json:"this_month_pct"`
	TrackedDays   int                 `json:"tracked_days"`
	PerfectDays   int                 `json:"perfect_days"`
	PlanItemCount int                 `json:"plan_item_count"`
}

func toSummaryDTO(clientID compliance.ClientID, s adherence.Summary) SummaryDTO {
	return SummaryDTO{
		ClientID:      clientID,
		PlanID:        s.PlanID,
		AsOf:          s.AsOf,
		OverallPct:    pct(s.Overall),
		Streak:        s.Streak,
		ThisWeekPct:   pct(s.ThisWeek),
		LastWeekPct:   pct(s.LastWeek),
		Trend:         s.Trend,
		ThisMonthPct:  pct(s.ThisMonth),
		TrackedDays:   s.TrackedDays,
		PerfectDays:   s.PerfectDays,
		PlanItemCount: s.PlanItemCount,
	}
}

func pct(d decimal.Decimal) float64 {
	return d.Round(1).InexactFloat64()
}

// RenameItemRequest rewrites historical completions of one item name.
type RenameItemRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RenameItemResponse reports how many records were rewritten.
type RenameItemResponse struct {
	Records int `json:"records"`
}

// =============================================================================
// PLANS
// =============================================================================

// CreatePlanRequest creates a template plan.
type CreatePlanRequest struct {
	ID    string                `json:"id,omitempty"`
	Name  string                `json:"name"`
	Kind  compliance.PlanKind   `json:"kind"`
	Items []compliance.PlanItem `json:"items"`
}

// AssignPlanRequest binds a plan to a client.
type AssignPlanRequest struct {
	ClientID string `json:"client_id"`
}

// PlanStateResponse is returned by lifecycle transitions.
type PlanStateResponse struct {
	Plan           compliance.Plan `json:"plan"`
	RemovedRecords int             `json:"removed_records"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
