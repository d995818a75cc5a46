/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements the HTTP handlers for the REST API. Handlers decode requests,
  call into the compliance and adherence packages, and map results (or
  errors) to JSON responses.

HANDLER PATTERN:
  Each handler follows:
  1. Parse URL params and request body
  2. Validate input
  3. Call the compliance service (Mutator, History, Lifecycle, Sweeper)
  4. Return JSON response or mapped error

ERROR MAPPING:
  400 Bad Request:  invalid date, empty item name, malformed body
  404 Not Found:    plan or record not found
  409 Conflict:     plan lifecycle transition not allowed, or a write
                    against a plan the client does not hold
  503 Unavailable:  backing store failed (safe to retry the same call)
  500 Internal:     anything else

CONCURRENCY:
  Handlers hold no locks around store access. Duplicate records created by
  concurrent writers are merged by the next read or write of the same day.

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route definitions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/adherence-engine/adherence"
	"github.com/warp/adherence-engine/compliance"
)

// Backend is the storage a Handler runs against: records, plans and a reset
// for demo scenarios.
type Backend interface {
	compliance.Store
	compliance.PlanStore
	Reset(ctx context.Context) error
}

// Options configures a Handler.
type Options struct {
	Cache compliance.Cache
	Retry *compliance.RetryPolicy
	Log   logrus.FieldLogger
	Today func() compliance.Date
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store     Backend
	Mutator   *compliance.Mutator
	History   *compliance.History
	Lifecycle *compliance.Lifecycle
	Sweeper   *compliance.Sweeper
	Cache     compliance.Cache
	Log       logrus.FieldLogger
	Today     func() compliance.Date

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the compliance services on top of one backend.
func NewHandler(store Backend, opts Options) *Handler {
	if opts.Cache == nil {
		opts.Cache = compliance.NopCache{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Today == nil {
		opts.Today = compliance.Today
	}
	mutator := compliance.NewMutator(store, compliance.MutatorOptions{
		Plans: store,
		Cache: opts.Cache,
		Retry: opts.Retry,
		Log:   opts.Log,
	})
	return &Handler{
		Store:     store,
		Mutator:   mutator,
		History:   compliance.NewHistory(store, mutator.Reconciler(), opts.Cache, opts.Log),
		Lifecycle: compliance.NewLifecycle(store, store, opts.Cache, opts.Log),
		Sweeper:   compliance.NewSweeper(store, mutator.Reconciler(), opts.Cache, opts.Log),
		Cache:     opts.Cache,
		Log:       opts.Log.WithField("component", "api"),
		Today:     opts.Today,
	}
}

// =============================================================================
// COMPLIANCE HANDLERS
// =============================================================================

// ToggleItem marks one plan item taken or not taken for a day.
func (h *Handler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	clientID, planID, date, ok := h.dayParams(w, r)
	if !ok {
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.Mutator.Toggle(r.Context(), clientID, planID, date, req.Item, req.Taken)
	if err != nil {
		h.writeServiceError(w, "toggle failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ToggleResponse{Record: res.Record, Warning: res.Warning})
}

// SetNotes replaces the notes of a day.
func (h *Handler) SetNotes(w http.ResponseWriter, r *http.Request) {
	clientID, planID, date, ok := h.dayParams(w, r)
	if !ok {
		return
	}

	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, err := h.Mutator.SetNotes(r.Context(), clientID, planID, date, req.Notes)
	if err != nil {
		h.writeServiceError(w, "saving notes failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetDay returns the reconciled record of one day with its ratio.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	clientID, planID, date, ok := h.dayParams(w, r)
	if !ok {
		return
	}

	plan, err := h.Store.GetPlan(r.Context(), planID)
	if err != nil {
		h.writeServiceError(w, "plan lookup failed", err)
		return
	}

	rec, err := h.History.Day(r.Context(), clientID, planID, date)
	if err != nil {
		h.writeServiceError(w, "reading day failed", err)
		return
	}

	resp := DayResponse{Date: date, Record: rec, Bucket: adherence.BucketNone}
	if rec != nil {
		ratio := adherence.DailyRatio(*rec, plan.ItemNames())
		resp.Ratio = ratio.InexactFloat64()
		resp.Bucket = adherence.ClassifyBucket(ratio, true)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory returns one canonical record per tracked day.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	clientID := compliance.ClientID(chi.URLParam(r, "clientID"))
	planID := compliance.PlanID(chi.URLParam(r, "planID"))

	records, err := h.History.Records(r.Context(), clientID, planID)
	if err != nil {
		h.writeServiceError(w, "reading history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ClientID: clientID, PlanID: planID, Records: records})
}

// maxCalendarDays caps one calendar response.
const maxCalendarDays = 366

// GetCalendar renders buckets for every day in [from, to]. Both bounds are
// optional; the default window is the 30 days ending today. Spans longer
// than maxCalendarDays are rejected.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	clientID := compliance.ClientID(chi.URLParam(r, "clientID"))
	planID := compliance.PlanID(chi.URLParam(r, "planID"))

	to := h.Today()
	from := to.AddDays(-29)
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := compliance.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date", err)
			return
		}
		to = d
		from = to.AddDays(-29)
	}
	if s := r.URL.Query().Get("from"); s != "" {
		d, err := compliance.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date", err)
			return
		}
		from = d
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to", nil)
		return
	}
	if to.After(from.AddDays(maxCalendarDays - 1)) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("calendar range is limited to %d days", maxCalendarDays), nil)
		return
	}

	plan, records, ok := h.planAndHistory(w, r, clientID, planID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{
		From: from,
		To:   to,
		Days: adherence.BuildCalendar(from, to, records, plan.ItemNames()),
	})
}

// GetSummary returns the dashboard summary for a client's plan.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	clientID := compliance.ClientID(chi.URLParam(r, "clientID"))
	planID := compliance.PlanID(chi.URLParam(r, "planID"))

	today := h.Today()
	if s := r.URL.Query().Get("today"); s != "" {
		d, err := compliance.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid today date", err)
			return
		}
		today = d
	}

	plan, records, ok := h.planAndHistory(w, r, clientID, planID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(clientID, adherence.Summarize(plan, records, today)))
}

// RenameItem rewrites historical completions after a plan item is renamed.
func (h *Handler) RenameItem(w http.ResponseWriter, r *http.Request) {
	clientID := compliance.ClientID(chi.URLParam(r, "clientID"))
	planID := compliance.PlanID(chi.URLParam(r, "planID"))

	var req RenameItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	n, err := h.Mutator.RenameItem(r.Context(), clientID, planID, req.From, req.To)
	if err != nil {
		h.writeServiceError(w, "rename failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RenameItemResponse{Records: n})
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns all plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListPlans(r.Context())
	if err != nil {
		h.writeServiceError(w, "listing plans failed", err)
		return
	}
	if plans == nil {
		plans = []compliance.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// CreatePlan stores a new template plan.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	for _, item := range req.Items {
		if item.Name == "" {
			writeError(w, http.StatusBadRequest, "item name is required", compliance.ErrEmptyItemName)
			return
		}
	}
	if req.Kind != "" && req.Kind != compliance.PlanSupplement && req.Kind != compliance.PlanNutrition {
		writeError(w, http.StatusBadRequest, "unknown plan kind", nil)
		return
	}

	plan, err := h.Lifecycle.CreateTemplate(r.Context(), compliance.Plan{
		ID:    compliance.PlanID(req.ID),
		Name:  req.Name,
		Kind:  req.Kind,
		Items: req.Items,
	})
	if err != nil {
		h.writeServiceError(w, "creating plan failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// GetPlan returns one plan.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Store.GetPlan(r.Context(), compliance.PlanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "plan lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// AssignPlan binds a plan to a client.
func (h *Handler) AssignPlan(w http.ResponseWriter, r *http.Request) {
	var req AssignPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required", nil)
		return
	}

	plan, err := h.Lifecycle.Assign(r.Context(), compliance.PlanID(chi.URLParam(r, "id")), compliance.ClientID(req.ClientID))
	if err != nil {
		h.writeServiceError(w, "assign failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanStateResponse{Plan: plan})
}

// UnassignPlan detaches a plan and removes the client's history for it.
func (h *Handler) UnassignPlan(w http.ResponseWriter, r *http.Request) {
	plan, removed, err := h.Lifecycle.Unassign(r.Context(), compliance.PlanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "unassign failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanStateResponse{Plan: plan, RemovedRecords: removed})
}

// DeletePlan retires a plan, cascading to its history if assigned.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	plan, removed, err := h.Lifecycle.Delete(r.Context(), compliance.PlanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanStateResponse{Plan: plan, RemovedRecords: removed})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Sweep runs a duplicate sweep over the whole store.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		h.writeServiceError(w, "sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) dayParams(w http.ResponseWriter, r *http.Request) (compliance.ClientID, compliance.PlanID, compliance.Date, bool) {
	clientID := compliance.ClientID(chi.URLParam(r, "clientID"))
	planID := compliance.PlanID(chi.URLParam(r, "planID"))
	date, err := compliance.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return "", "", compliance.Date{}, false
	}
	return clientID, planID, date, true
}

func (h *Handler) planAndHistory(w http.ResponseWriter, r *http.Request, clientID compliance.ClientID, planID compliance.PlanID) (compliance.Plan, []compliance.Record, bool) {
	plan, err := h.Store.GetPlan(r.Context(), planID)
	if err != nil {
		h.writeServiceError(w, "plan lookup failed", err)
		return compliance.Plan{}, nil, false
	}
	records, err := h.History.Records(r.Context(), clientID, planID)
	if err != nil {
		h.writeServiceError(w, "reading history failed", err)
		return compliance.Plan{}, nil, false
	}
	return plan, records, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).Error(message)
	}
	writeJSONError(w, status, message, code, err)
}

// statusFor maps compliance errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case compliance.IsClientError(err):
		return http.StatusBadRequest, "invalid_input"
	case compliance.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, compliance.ErrPlanNotAssigned):
		return http.StatusConflict, "plan_not_assigned"
	case errors.Is(err, compliance.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, compliance.ErrStorage):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeJSONError(w, status, message, "", err)
}

func writeJSONError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
