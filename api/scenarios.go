/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	compliance data. Each scenario creates plans, assigns them to a client
	and writes raw records directly to the store, including the same-day
	duplicates that concurrent devices leave behind.

AVAILABLE SCENARIOS:

	duplicate-devices: Phone and tablet both created today's record
	streak-gap:        Two perfect days after a missed day
	weekly-trend:      Strong last week, weaker this week
	renamed-item:      History recorded under an item's old name

HOW SCENARIOS WORK:
 1. Reset store (clear all data, drop cached histories)
 2. Create plan templates and assign them
 3. Write raw records relative to today

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "duplicate-devices"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Compliance handlers that read the seeded data
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warp/adherence-engine/compliance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "duplicate-devices",
		Name:        "Duplicate Devices",
		Description: "Two devices created today's record concurrently; reads merge them",
		Category:    "reconciliation",
	},
	{
		ID:          "streak-gap",
		Name:        "Streak Gap",
		Description: "Perfect today and yesterday after a missed day",
		Category:    "analytics",
	},
	{
		ID:          "weekly-trend",
		Name:        "Weekly Trend",
		Description: "Nutrition plan with a strong last week and a weaker current week",
		Category:    "analytics",
	},
	{
		ID:          "renamed-item",
		Name:        "Renamed Item",
		Description: "History stored under an old item name, ready for rename-item",
		Category:    "plans",
	},
}

// Scenario fixtures use fixed IDs so demo frontends can deep-link.
const (
	scenarioClient     compliance.ClientID = "client-ava"
	scenarioSupplement compliance.PlanID   = "plan-foundations"
	scenarioNutrition  compliance.PlanID   = "plan-lean-meals"
)

var foundationItems = []compliance.PlanItem{
	{Name: "Creatine", Dosage: "5g", Timing: "morning"},
	{Name: "Vitamin D", Dosage: "2000 IU", Timing: "morning"},
	{Name: "Omega-3", Dosage: "1g", Timing: "with dinner"},
	{Name: "Magnesium", Dosage: "400mg", Timing: "before bed"},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "duplicate-devices":
		load = h.loadDuplicateDevicesScenario
	case "streak-gap":
		load = h.loadStreakGapScenario
	case "weekly-trend":
		load = h.loadWeeklyTrendScenario
	case "renamed-item":
		load = h.loadRenamedItemScenario
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeServiceError(w, "reset failed", err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeServiceError(w, fmt.Sprintf("failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all records and plans.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeServiceError(w, "reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reset drops cached histories for every stored pair before clearing the
// store.
func (h *Handler) reset(ctx context.Context) error {
	all, err := h.Store.Filter(ctx, compliance.Query{})
	if err != nil {
		return &compliance.StorageError{Op: "filter", Err: err}
	}
	if err := h.Store.Reset(ctx); err != nil {
		return &compliance.StorageError{Op: "reset", Err: err}
	}
	seen := make(map[compliance.PairKey]bool)
	for _, rec := range all {
		pair := compliance.PairKey{ClientID: rec.ClientID, PlanID: rec.PlanID}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		if err := h.Cache.Invalidate(ctx, pair); err != nil {
			h.Log.WithError(err).WithField("key", pair.String()).Warn("cache invalidation failed")
		}
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDuplicateDevicesScenario(ctx context.Context) error {
	if err := h.assignPlan(ctx, scenarioSupplement, "Foundations Stack", compliance.PlanSupplement, foundationItems); err != nil {
		return err
	}
	today := h.Today()
	days := [][]string{
		{"Creatine", "Vitamin D", "Omega-3", "Magnesium"},
		{"Creatine", "Vitamin D", "Omega-3"},
		{"Creatine", "Omega-3", "Magnesium"},
		{"Creatine", "Vitamin D", "Omega-3", "Magnesium"},
	}
	for i, items := range days {
		if err := h.seedRecord(ctx, scenarioSupplement, today.AddDays(-(len(days) - i)), "", items...); err != nil {
			return err
		}
	}
	// Phone and tablet both created today's record.
	if err := h.seedRecord(ctx, scenarioSupplement, today, "", "Creatine"); err != nil {
		return err
	}
	return h.seedRecord(ctx, scenarioSupplement, today, "taken with breakfast", "Vitamin D")
}

func (h *Handler) loadStreakGapScenario(ctx context.Context) error {
	if err := h.assignPlan(ctx, scenarioSupplement, "Foundations Stack", compliance.PlanSupplement, foundationItems); err != nil {
		return err
	}
	all := []string{"Creatine", "Vitamin D", "Omega-3", "Magnesium"}
	today := h.Today()
	for _, offset := range []int{-5, -4, -3, -1, 0} {
		if err := h.seedRecord(ctx, scenarioSupplement, today.AddDays(offset), "", all...); err != nil {
			return err
		}
	}
	// Opened the app two days ago but ticked nothing.
	return h.seedRecord(ctx, scenarioSupplement, today.AddDays(-2), "travel day")
}

func (h *Handler) loadWeeklyTrendScenario(ctx context.Context) error {
	items := []compliance.PlanItem{
		{Name: "Breakfast", Timing: "07:30"},
		{Name: "Lunch", Timing: "12:30"},
		{Name: "Snack", Timing: "16:00"},
		{Name: "Dinner", Timing: "19:00"},
	}
	if err := h.assignPlan(ctx, scenarioNutrition, "Lean Meals", compliance.PlanNutrition, items); err != nil {
		return err
	}

	today := h.Today()
	lastWeek := today.StartOfWeek().AddDays(-7)
	for i := 0; i < 7; i++ {
		if err := h.seedRecord(ctx, scenarioNutrition, lastWeek.AddDays(i), "", "Breakfast", "Lunch", "Snack", "Dinner"); err != nil {
			return err
		}
	}
	for d := today.StartOfWeek(); d.BeforeOrEqual(today); d = d.AddDays(1) {
		if err := h.seedRecord(ctx, scenarioNutrition, d, "", "Breakfast", "Dinner"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRenamedItemScenario(ctx context.Context) error {
	if err := h.assignPlan(ctx, scenarioSupplement, "Foundations Stack", compliance.PlanSupplement, foundationItems); err != nil {
		return err
	}
	today := h.Today()
	for i := 1; i <= 5; i++ {
		if err := h.seedRecord(ctx, scenarioSupplement, today.AddDays(-i), "", "Creatine", "Vitamin D", "Fish Oil", "Magnesium"); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) assignPlan(ctx context.Context, id compliance.PlanID, name string, kind compliance.PlanKind, items []compliance.PlanItem) error {
	plan, err := h.Lifecycle.CreateTemplate(ctx, compliance.Plan{
		ID:    id,
		Name:  name,
		Kind:  kind,
		Items: append([]compliance.PlanItem(nil), items...),
	})
	if err != nil {
		return err
	}
	_, err = h.Lifecycle.Assign(ctx, plan.ID, scenarioClient)
	return err
}

// seedRecord writes a raw record, bypassing the mutator so duplicates land
// as they would from concurrent devices.
func (h *Handler) seedRecord(ctx context.Context, planID compliance.PlanID, date compliance.Date, notes string, items ...string) error {
	now := time.Now().UTC()
	rec := compliance.Record{
		ID:             compliance.RecordID(uuid.NewString()),
		ClientID:       scenarioClient,
		PlanID:         planID,
		Date:           date,
		ItemsCompleted: compliance.NewItemSet(items...),
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := h.Store.Create(ctx, rec); err != nil {
		return &compliance.StorageError{Op: "create", Key: rec.Key().String(), Err: err}
	}
	return h.Cache.Invalidate(ctx, compliance.PairKey{ClientID: scenarioClient, PlanID: planID})
}
