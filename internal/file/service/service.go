// Package service implements the file lifecycle: creation, activation,
// custody moves, closure, archival and temporary access grants.
//
// Every mutation runs in one unit of work that loads the rows it changes
// for update, validates, writes, and appends the audit entry. Notifications
// go out only after the unit of work committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pims/internal/file/metrics"
	"pims/internal/file/models"
	"pims/internal/notification"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
	"pims/pkg/requestcontext"
)

type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	FindByID(ctx context.Context, id domain.FileID) (*models.File, error)
	FindByIDForUpdate(ctx context.Context, id domain.FileID) (*models.File, error)
	FindByNumber(ctx context.Context, number string) (*models.File, error)
	FindPersonalByOwner(ctx context.Context, owner domain.UserID) (*models.File, error)
	Update(ctx context.Context, f *models.File) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.File, error)
}

type ActivationStore interface {
	Create(ctx context.Context, r *models.ActivationRequest) error
	FindByID(ctx context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error)
	FindByIDForUpdate(ctx context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error)
	FindPendingByFile(ctx context.Context, fileID domain.FileID) (*models.ActivationRequest, error)
	Update(ctx context.Context, r *models.ActivationRequest) error
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.ActivationRequest, error)
}

type AccessStore interface {
	Create(ctx context.Context, r *models.AccessRequest) error
	FindByID(ctx context.Context, id domain.AccessRequestID) (*models.AccessRequest, error)
	FindByIDForUpdate(ctx context.Context, id domain.AccessRequestID) (*models.AccessRequest, error)
	Update(ctx context.Context, r *models.AccessRequest) error
	ListByFileAndRequester(ctx context.Context, fileID domain.FileID, requester domain.UserID) ([]*models.AccessRequest, error)
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AccessRequest, error)
}

// NumberAuthority issues file numbers inside the caller's unit of work.
type NumberAuthority interface {
	Generate(ctx context.Context, category domain.FileCategory, code string) (string, error)
}

// AuditRecorder appends to the audit log inside the caller's unit of work.
type AuditRecorder interface {
	Record(ctx context.Context, entityType audit.EntityType, entityID string, action audit.Action, actor domain.UserID, details map[string]string) error
}

// StoreTx provides the transactional boundary for file mutations.
// Implementations wrap a database transaction or, in memory, a coarse lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	files          FileStore
	activations    ActivationStore
	access         AccessStore
	numbers        NumberAuthority
	audit          AuditRecorder
	tx             StoreTx
	notifier       *notification.Notifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	accessDuration time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n *notification.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithAccessDuration sets how long approved access grants last.
func WithAccessDuration(d time.Duration) Option {
	return func(s *Service) {
		s.accessDuration = d
	}
}

// Stores groups the persistence dependencies of the service.
type Stores struct {
	Files       FileStore
	Activations ActivationStore
	Access      AccessStore
}

func New(stores Stores, numbers NumberAuthority, recorder AuditRecorder, tx StoreTx, opts ...Option) (*Service, error) {
	switch {
	case stores.Files == nil:
		return nil, errors.New("file store is required")
	case stores.Activations == nil:
		return nil, errors.New("activation store is required")
	case stores.Access == nil:
		return nil, errors.New("access store is required")
	case numbers == nil:
		return nil, errors.New("number authority is required")
	case recorder == nil:
		return nil, errors.New("audit recorder is required")
	case tx == nil:
		return nil, errors.New("store tx is required")
	}
	s := &Service{
		files:          stores.Files,
		activations:    stores.Activations,
		access:         stores.Access,
		numbers:        numbers,
		audit:          recorder,
		tx:             tx,
		logger:         slog.Default(),
		tracer:         otel.Tracer("pims/internal/file"),
		accessDuration: 5 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// translate keeps domain errors and wraps anything else as internal.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) loadFile(ctx context.Context, id domain.FileID, forUpdate bool) (*models.File, error) {
	var (
		f   *models.File
		err error
	)
	if forUpdate {
		f, err = s.files.FindByIDForUpdate(ctx, id)
	} else {
		f, err = s.files.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file")
	}
	return f, nil
}

func (s *Service) saveFile(ctx context.Context, f *models.File) error {
	if err := s.files.Update(ctx, f); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save file")
	}
	return nil
}

func (s *Service) record(ctx context.Context, f *models.File, action audit.Action, actor domain.UserID, details map[string]string) error {
	if details == nil {
		details = map[string]string{}
	}
	details["file_number"] = f.FileNumber
	details["status"] = string(f.Status)
	if err := s.audit.Record(ctx, audit.EntityFile, f.ID.String(), action, actor, details); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, msg string, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx))
	s.logger.InfoContext(ctx, msg, args...)
}

func (s *Service) notify(ctx context.Context, notes []notification.Notification) {
	s.notifier.Send(ctx, notes...)
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func (s *Service) incrementTransition(t models.Transition) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(t))
	}
}

func requireManager(actor domain.Actor, what string) error {
	if !actor.Can(domain.CapManageFiles) {
		return dErrors.New(dErrors.CodeForbidden, "only registry can "+what)
	}
	return nil
}

func fileLink(id domain.FileID) string {
	return "/files/" + id.String()
}

func userDetail(u *domain.UserID) string {
	if u == nil {
		return ""
	}
	return u.String()
}
