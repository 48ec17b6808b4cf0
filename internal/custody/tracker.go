// Package custody derives custody duration, overdue flags and movement
// history from the append-only audit log. Nothing here is stored; every
// answer is recomputed from the log at read time.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	filemodels "pims/internal/file/models"
	"pims/internal/notification"
	"pims/pkg/domain"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
	"pims/pkg/requestcontext"
)

// DefaultThresholdDays is how long a custodian may hold a file before it is overdue.
const DefaultThresholdDays = 2

const day = 24 * time.Hour

// FileLister lists files for the overdue report.
type FileLister interface {
	List(ctx context.Context, filter filemodels.ListFilter) ([]*filemodels.File, error)
}

// AuditRecorder appends overdue warnings.
type AuditRecorder interface {
	Record(ctx context.Context, entityType audit.EntityType, entityID string, action audit.Action, actor domain.UserID, details map[string]string) error
}

// Movement is one custody change of a file.
type Movement struct {
	Action  audit.Action   `json:"action"`
	From    *domain.UserID `json:"from,omitempty"`
	To      *domain.UserID `json:"to,omitempty"`
	ActorID domain.UserID  `json:"actor_id"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
}

// OverdueItem is one line of the overdue report.
type OverdueItem struct {
	FileID      domain.FileID `json:"file_id"`
	FileNumber  string        `json:"file_number"`
	Title       string        `json:"title"`
	CustodianID domain.UserID `json:"custodian_id"`
	Days        int           `json:"days"`
}

// DailyMovementReport counts file registrations and movements on one day.
type DailyMovementReport struct {
	Date           string   `json:"date"`
	Created        int      `json:"created"`
	Activated      int      `json:"activated"`
	Sent           int      `json:"sent"`
	Recalled       int      `json:"recalled"`
	CreatedFiles   []string `json:"created_files"`
	ActivatedFiles []string `json:"activated_files"`
}

type Tracker struct {
	log       audit.Store
	files     FileLister
	recorder  AuditRecorder
	notifier  *notification.Notifier
	logger    *slog.Logger
	threshold int
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithNotifier(n *notification.Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// WithRecorder makes EscalateOverdue append a warning entry per overdue file.
func WithRecorder(r AuditRecorder) Option {
	return func(t *Tracker) {
		t.recorder = r
	}
}

// WithThreshold sets the default overdue threshold in days.
func WithThreshold(days int) Option {
	return func(t *Tracker) {
		if days > 0 {
			t.threshold = days
		}
	}
}

func New(log audit.Store, files FileLister, opts ...Option) (*Tracker, error) {
	if log == nil {
		return nil, errors.New("audit store is required")
	}
	if files == nil {
		return nil, errors.New("file lister is required")
	}
	t := &Tracker{
		log:       log,
		files:     files,
		logger:    slog.Default(),
		threshold: DefaultThresholdDays,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Threshold returns the default overdue threshold in days.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Duration returns whole days since the file last changed hands, counting
// from creation when it never moved. A file nobody holds reports 0.
func (t *Tracker) Duration(ctx context.Context, f *filemodels.File) (int, error) {
	if f.CustodianID == nil {
		return 0, nil
	}
	since := f.CreatedAt
	latest, err := t.log.LatestByActions(ctx, audit.EntityFile, f.ID.String(), audit.CustodyActions...)
	switch {
	case err == nil:
		since = latest.Timestamp
	case !errors.Is(err, sentinel.ErrNotFound):
		return 0, fmt.Errorf("load latest movement for %s: %w", f.FileNumber, err)
	}
	return elapsedDays(since, requestcontext.Now(ctx)), nil
}

// IsOverdue reports whether the custody duration exceeds threshold days.
// A non-positive threshold uses the tracker default.
func (t *Tracker) IsOverdue(ctx context.Context, f *filemodels.File, threshold int) (bool, error) {
	days, err := t.Duration(ctx, f)
	if err != nil {
		return false, err
	}
	return days > t.resolve(threshold), nil
}

// Movements returns the custody history of a file, oldest first.
func (t *Tracker) Movements(ctx context.Context, fileID domain.FileID) ([]Movement, error) {
	entries, err := t.log.ListByEntity(ctx, audit.EntityFile, fileID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit entries for %s: %w", fileID, err)
	}
	var out []Movement
	for _, e := range entries {
		m, ok := toMovement(e)
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// OverdueReport lists active files held longer than threshold days, longest first.
func (t *Tracker) OverdueReport(ctx context.Context, threshold int) ([]OverdueItem, error) {
	threshold = t.resolve(threshold)
	active := filemodels.StatusActive
	files, err := t.files.List(ctx, filemodels.ListFilter{Status: &active})
	if err != nil {
		return nil, fmt.Errorf("list active files: %w", err)
	}
	var out []OverdueItem
	for _, f := range files {
		days, err := t.Duration(ctx, f)
		if err != nil {
			return nil, err
		}
		if days <= threshold {
			continue
		}
		out = append(out, OverdueItem{
			FileID:      f.ID,
			FileNumber:  f.FileNumber,
			Title:       f.Title,
			CustodianID: *f.CustodianID,
			Days:        days,
		})
	}
	slices.SortStableFunc(out, func(a, b OverdueItem) int {
		return b.Days - a.Days
	})
	return out, nil
}

// EscalateOverdue notifies the custodian of every overdue file and the
// registry with a summary. It returns the number of overdue files.
func (t *Tracker) EscalateOverdue(ctx context.Context, actor domain.UserID, threshold int) (int, error) {
	threshold = t.resolve(threshold)
	items, err := t.OverdueReport(ctx, threshold)
	if err != nil {
		return 0, err
	}
	notes := make([]notification.Notification, 0, len(items)+1)
	for _, item := range items {
		if t.recorder != nil {
			err := t.recorder.Record(ctx, audit.EntityFile, item.FileID.String(), audit.ActionCustodyOverdueWarning, actor, map[string]string{
				"file_number":    item.FileNumber,
				"custodian_id":   item.CustodianID.String(),
				"days":           strconv.Itoa(item.Days),
				"threshold_days": strconv.Itoa(threshold),
			})
			if err != nil {
				return 0, fmt.Errorf("record overdue warning for %s: %w", item.FileNumber, err)
			}
		}
		notes = append(notes, notification.Notification{
			UserID:     item.CustodianID,
			Kind:       "custody_overdue",
			Message:    fmt.Sprintf("File %s has been with you for %d days; please move it on", item.FileNumber, item.Days),
			EntityType: string(audit.EntityFile),
			EntityID:   item.FileID.String(),
			Link:       "/files/" + item.FileID.String(),
		})
	}
	if len(items) > 0 {
		notes = append(notes, notification.Notification{
			Role:    domain.RoleRegistry,
			Kind:    "custody_overdue_summary",
			Message: fmt.Sprintf("%d files held longer than %d days", len(items), threshold),
			Link:    "/custody/overdue",
		})
	}
	t.notifier.Send(ctx, notes...)
	t.logger.InfoContext(ctx, "overdue custody escalated",
		"count", len(items),
		"threshold_days", threshold,
		"request_id", requestcontext.RequestID(ctx),
	)
	return len(items), nil
}

// DailyMovements reports what happened to files on the calendar day of date,
// in date's location. Activations count distinct files; sends and recalls
// count every movement.
func (t *Tracker) DailyMovements(ctx context.Context, date time.Time) (*DailyMovementReport, error) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	entries, err := t.log.Query(ctx, audit.Filter{
		EntityType: audit.EntityFile,
		Actions: []audit.Action{
			audit.ActionFileCreated, audit.ActionFileActivated,
			audit.ActionFileSent, audit.ActionFileRecalled,
		},
		From: start,
		To:   start.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("query movements for %s: %w", start.Format(time.DateOnly), err)
	}

	report := &DailyMovementReport{
		Date:           start.Format(time.DateOnly),
		CreatedFiles:   []string{},
		ActivatedFiles: []string{},
	}
	// oldest first so the file lists read in order
	slices.Reverse(entries)
	for _, e := range entries {
		switch e.Action {
		case audit.ActionFileCreated:
			if !slices.Contains(report.CreatedFiles, e.EntityID) {
				report.CreatedFiles = append(report.CreatedFiles, e.EntityID)
			}
		case audit.ActionFileActivated:
			if !slices.Contains(report.ActivatedFiles, e.EntityID) {
				report.ActivatedFiles = append(report.ActivatedFiles, e.EntityID)
			}
		case audit.ActionFileSent:
			report.Sent++
		case audit.ActionFileRecalled:
			report.Recalled++
		}
	}
	report.Created = len(report.CreatedFiles)
	report.Activated = len(report.ActivatedFiles)
	return report, nil
}

// AuditLog returns log entries matching filter, newest first, capped at
// audit.MaxQueryLimit.
func (t *Tracker) AuditLog(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	if filter.Limit <= 0 || filter.Limit > audit.MaxQueryLimit {
		filter.Limit = audit.MaxQueryLimit
	}
	entries, err := t.log.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return entries, nil
}

func (t *Tracker) resolve(threshold int) int {
	if threshold <= 0 {
		return t.threshold
	}
	return threshold
}

// elapsedDays floors the time between since and now to whole days, never negative.
func elapsedDays(since, now time.Time) int {
	if !now.After(since) {
		return 0
	}
	return int(now.Sub(since) / day)
}

func toMovement(e audit.Entry) (Movement, bool) {
	m := Movement{Action: e.Action, ActorID: e.ActorID, At: e.Timestamp, Note: e.Details["note"]}
	switch e.Action {
	case audit.ActionFileCreated:
		m.To = userRef(e.ActorID.String())
	case audit.ActionFileActivated:
		m.To = userRef(e.Details["custodian"])
	case audit.ActionFileSent:
		m.From = userRef(e.Details["from"])
		m.To = userRef(e.Details["to"])
	case audit.ActionFileRecalled:
		m.From = userRef(e.Details["previous_custodian"])
		m.To = userRef(e.Details["to"])
	case audit.ActionFileArchived, audit.ActionFileDeactivated:
		m.From = userRef(e.Details["previous_custodian"])
	default:
		return Movement{}, false
	}
	return m, true
}

func userRef(raw string) *domain.UserID {
	if raw == "" {
		return nil
	}
	id, err := domain.ParseUserID(raw)
	if err != nil {
		return nil
	}
	return &id
}
