// Package handler exposes custody duration, movement history, the overdue
// and daily movement reports, and the filtered audit log over HTTP.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pims/internal/custody"
	filemodels "pims/internal/file/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/httputil"
	"pims/pkg/requestcontext"
)

type Tracker interface {
	Threshold() int
	Duration(ctx context.Context, f *filemodels.File) (int, error)
	IsOverdue(ctx context.Context, f *filemodels.File, threshold int) (bool, error)
	Movements(ctx context.Context, fileID domain.FileID) ([]custody.Movement, error)
	OverdueReport(ctx context.Context, threshold int) ([]custody.OverdueItem, error)
	EscalateOverdue(ctx context.Context, actor domain.UserID, threshold int) (int, error)
	DailyMovements(ctx context.Context, date time.Time) (*custody.DailyMovementReport, error)
	AuditLog(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// FileGetter loads the file a custody query is about.
type FileGetter interface {
	Get(ctx context.Context, id domain.FileID) (*filemodels.File, error)
}

type Handler struct {
	tracker Tracker
	files   FileGetter
	logger  *slog.Logger
}

func New(tracker Tracker, files FileGetter, logger *slog.Logger) *Handler {
	return &Handler{tracker: tracker, files: files, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/custody", func(r chi.Router) {
		r.Get("/overdue", h.HandleOverdueReport)
		r.Post("/overdue/escalate", h.HandleEscalate)
		r.Get("/files/{id}", h.HandleFileCustody)
		r.Get("/files/{id}/movements", h.HandleMovements)
		r.Get("/reports/daily", h.HandleDailyMovements)
	})
	r.Get("/audit", h.HandleAuditLog)
}

type CustodyResponse struct {
	FileID        string `json:"file_id"`
	FileNumber    string `json:"file_number"`
	CustodianID   string `json:"custodian_id,omitempty"`
	Days          int    `json:"days"`
	Overdue       bool   `json:"overdue"`
	ThresholdDays int    `json:"threshold_days"`
}

type OverdueReportResponse struct {
	ThresholdDays int                   `json:"threshold_days"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Items         []custody.OverdueItem `json:"items"`
	Count         int                   `json:"count"`
}

// AuditEntryResponse is one audit log entry.
type AuditEntryResponse struct {
	ID         string            `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func fromEntry(e audit.Entry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:         e.ID.String(),
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		Action:     string(e.Action),
		Details:    e.Details,
		RequestID:  e.RequestID,
		Timestamp:  e.Timestamp,
	}
	if !e.ActorID.IsNil() {
		resp.ActorID = e.ActorID.String()
	}
	return resp
}

// HandleFileCustody handles GET /custody/files/{id}?threshold_days=.
func (h *Handler) HandleFileCustody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, ctx); !ok {
		return
	}
	threshold, ok := h.threshold(w, r)
	if !ok {
		return
	}
	f, ok := h.loadFile(w, r)
	if !ok {
		return
	}
	days, err := h.tracker.Duration(ctx, f)
	if err != nil {
		h.fail(ctx, w, "custody duration", err)
		return
	}
	overdue, err := h.tracker.IsOverdue(ctx, f, threshold)
	if err != nil {
		h.fail(ctx, w, "custody overdue check", err)
		return
	}
	resp := CustodyResponse{
		FileID:        f.ID.String(),
		FileNumber:    f.FileNumber,
		Days:          days,
		Overdue:       overdue,
		ThresholdDays: threshold,
	}
	if f.CustodianID != nil {
		resp.CustodianID = f.CustodianID.String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleMovements handles GET /custody/files/{id}/movements.
func (h *Handler) HandleMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, ctx); !ok {
		return
	}
	f, ok := h.loadFile(w, r)
	if !ok {
		return
	}
	moves, err := h.tracker.Movements(ctx, f.ID)
	if err != nil {
		h.fail(ctx, w, "custody movements", err)
		return
	}
	if moves == nil {
		moves = []custody.Movement{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"file_id": f.ID.String(), "movements": moves})
}

// HandleOverdueReport handles GET /custody/overdue?threshold_days=.
func (h *Handler) HandleOverdueReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireManager(w, ctx, "view custody reports"); !ok {
		return
	}
	threshold, ok := h.threshold(w, r)
	if !ok {
		return
	}
	items, err := h.tracker.OverdueReport(ctx, threshold)
	if err != nil {
		h.fail(ctx, w, "overdue report", err)
		return
	}
	if items == nil {
		items = []custody.OverdueItem{}
	}
	httputil.WriteJSON(w, http.StatusOK, OverdueReportResponse{
		ThresholdDays: threshold,
		GeneratedAt:   requestcontext.Now(ctx),
		Items:         items,
		Count:         len(items),
	})
}

// HandleEscalate handles POST /custody/overdue/escalate?threshold_days=.
func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireManager(w, ctx, "escalate overdue files")
	if !ok {
		return
	}
	threshold, ok := h.threshold(w, r)
	if !ok {
		return
	}
	n, err := h.tracker.EscalateOverdue(ctx, actor.ID, threshold)
	if err != nil {
		h.fail(ctx, w, "escalate overdue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"escalated": n, "threshold_days": threshold})
}

// HandleDailyMovements handles GET /custody/reports/daily?date=YYYY-MM-DD.
// The date defaults to today.
func (h *Handler) HandleDailyMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireManager(w, ctx, "view custody reports"); !ok {
		return
	}
	date := requestcontext.Now(ctx)
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "date must be YYYY-MM-DD"))
			return
		}
		date = d
	}
	report, err := h.tracker.DailyMovements(ctx, date)
	if err != nil {
		h.fail(ctx, w, "daily movement report", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleAuditLog handles GET /audit with optional actor_id, action (repeatable),
// entity_type, entity_id, from, to and limit filters. Dates are YYYY-MM-DD or
// RFC 3339; a date-only "to" includes that whole day.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireManager(w, ctx, "view the audit log"); !ok {
		return
	}
	filter, err := parseAuditFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.tracker.AuditLog(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "audit log query", err)
		return
	}
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromEntry(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var filter audit.Filter
	if raw := q.Get("actor_id"); raw != "" {
		id, err := domain.ParseUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.ActorID = &id
	}
	for _, raw := range q["action"] {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
				filter.Actions = append(filter.Actions, audit.Action(a))
			}
		}
	}
	filter.EntityType = audit.EntityType(strings.TrimSpace(q.Get("entity_type")))
	filter.EntityID = strings.TrimSpace(q.Get("entity_id"))

	var err error
	if filter.From, _, err = parseBound(q.Get("from"), "from"); err != nil {
		return filter, err
	}
	to, dateOnly, err := parseBound(q.Get("to"), "to")
	if err != nil {
		return filter, err
	}
	if dateOnly {
		to = to.AddDate(0, 0, 1)
	}
	filter.To = to
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return filter, dErrors.New(dErrors.CodeValidation, "from must be before to")
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > audit.MaxQueryLimit {
			return filter, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("limit must be between 1 and %d", audit.MaxQueryLimit))
		}
		filter.Limit = n
	}
	return filter, nil
}

func parseBound(raw, name string) (time.Time, bool, error) {
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, dErrors.New(dErrors.CodeValidation, name+" must be YYYY-MM-DD or RFC 3339")
	}
	return t, false, nil
}

func (h *Handler) threshold(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("threshold_days")
	if raw == "" {
		return h.tracker.Threshold(), true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "threshold_days must be a positive integer"))
		return 0, false
	}
	return n, true
}

func (h *Handler) loadFile(w http.ResponseWriter, r *http.Request) (*filemodels.File, bool) {
	id, err := domain.ParseFileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	f, err := h.files.Get(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "load file", err)
		return nil, false
	}
	return f, true
}

func requireActor(w http.ResponseWriter, ctx context.Context) (domain.Actor, bool) {
	actor := requestcontext.Actor(ctx)
	if actor.ID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}

func requireManager(w http.ResponseWriter, ctx context.Context, what string) (domain.Actor, bool) {
	actor, ok := requireActor(w, ctx)
	if !ok {
		return actor, false
	}
	if !actor.Can(domain.CapManageFiles) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only registry can "+what))
		return actor, false
	}
	return actor, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	args := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed", args...)
	} else {
		h.logger.WarnContext(ctx, op+" rejected", args...)
	}
	httputil.WriteError(w, err)
}
