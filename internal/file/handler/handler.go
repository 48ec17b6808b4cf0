package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pims/internal/file/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/platform/httputil"
	"pims/pkg/requestcontext"
)

// Service defines the file operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, actor domain.Actor, req models.CreateRequest) (*models.File, error)
	Get(ctx context.Context, id domain.FileID) (*models.File, error)
	GetByNumber(ctx context.Context, number string) (*models.File, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.File, error)
	RequestActivation(ctx context.Context, actor domain.Actor, fileID domain.FileID, reason string) (*models.ActivationRequest, error)
	ApproveActivation(ctx context.Context, actor domain.Actor, requestID domain.ActivationRequestID) (*models.File, error)
	RejectActivation(ctx context.Context, actor domain.Actor, requestID domain.ActivationRequestID, reason string) (*models.ActivationRequest, error)
	ListActivationRequests(ctx context.Context, actor domain.Actor, status models.RequestStatus) ([]*models.ActivationRequest, error)
	Close(ctx context.Context, actor domain.Actor, fileID domain.FileID) (*models.File, error)
	Archive(ctx context.Context, actor domain.Actor, fileID domain.FileID, directive string) (*models.File, error)
	Deactivate(ctx context.Context, actor domain.Actor, fileID domain.FileID) (*models.File, error)
	Dispatch(ctx context.Context, actor domain.Actor, fileID domain.FileID, recipient domain.UserID, note string) (*models.File, error)
	Recall(ctx context.Context, actor domain.Actor, fileID domain.FileID) (*models.File, error)
	RequestAccess(ctx context.Context, actor domain.Actor, fileID domain.FileID, accessType models.AccessType, reason string) (*models.AccessRequest, error)
	ApproveAccess(ctx context.Context, actor domain.Actor, requestID domain.AccessRequestID) (*models.AccessRequest, error)
	RejectAccess(ctx context.Context, actor domain.Actor, requestID domain.AccessRequestID) (*models.AccessRequest, error)
	HasAccess(ctx context.Context, actor domain.Actor, fileID domain.FileID) (bool, error)
	ListAccessRequests(ctx context.Context, actor domain.Actor, status models.RequestStatus) ([]*models.AccessRequest, error)
}

// Handler wires file endpoints to the file service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts file endpoints on the router. Callers apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/lookup", h.HandleGetByNumber)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/activation-requests", h.HandleRequestActivation)
			r.Post("/close", h.HandleClose)
			r.Post("/archive", h.HandleArchive)
			r.Post("/deactivate", h.HandleDeactivate)
			r.Post("/dispatch", h.HandleDispatch)
			r.Post("/recall", h.HandleRecall)
			r.Post("/access-requests", h.HandleRequestAccess)
			r.Get("/access", h.HandleHasAccess)
		})
	})
	r.Get("/activation-requests", h.HandleListActivationRequests)
	r.Post("/activation-requests/{id}/approve", h.HandleApproveActivation)
	r.Post("/activation-requests/{id}/reject", h.HandleRejectActivation)
	r.Get("/access-requests", h.HandleListAccessRequests)
	r.Post("/access-requests/{id}/approve", h.HandleApproveAccess)
	r.Post("/access-requests/{id}/reject", h.HandleRejectAccess)
}

// HandleCreate handles POST /files.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateFileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.Create(ctx, actor, req.Parsed())
	if err != nil {
		h.fail(ctx, w, "create file", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromFile(f))
}

// HandleList handles GET /files.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireActor(w, ctx); !ok {
		return
	}
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	files, err := h.service.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list files", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFiles(files))
}

// HandleGet handles GET /files/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireActor(w, ctx); !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	f, err := h.service.Get(ctx, fileID)
	if err != nil {
		h.fail(ctx, w, "get file", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFile(f))
}

// HandleGetByNumber handles GET /files/lookup?number=PS/001.
func (h *Handler) HandleGetByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireActor(w, ctx); !ok {
		return
	}
	f, err := h.service.GetByNumber(ctx, r.URL.Query().Get("number"))
	if err != nil {
		h.fail(ctx, w, "get file by number", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFile(f))
}

// HandleRequestActivation handles POST /files/{id}/activation-requests.
func (h *Handler) HandleRequestActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ar, err := h.service.RequestActivation(ctx, actor, fileID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "request activation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromActivation(ar))
}

// HandleApproveActivation handles POST /activation-requests/{id}/approve.
func (h *Handler) HandleApproveActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseActivationRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	f, err := h.service.ApproveActivation(ctx, actor, id)
	if err != nil {
		h.fail(ctx, w, "approve activation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFile(f))
}

// HandleRejectActivation handles POST /activation-requests/{id}/reject.
func (h *Handler) HandleRejectActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseActivationRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ar, err := h.service.RejectActivation(ctx, actor, id, req.Reason)
	if err != nil {
		h.fail(ctx, w, "reject activation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromActivation(ar))
}

// HandleListActivationRequests handles GET /activation-requests?status=.
func (h *Handler) HandleListActivationRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	status, err := parseRequestStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.service.ListActivationRequests(ctx, actor, status)
	if err != nil {
		h.fail(ctx, w, "list activation requests", err)
		return
	}
	out := make([]*ActivationRequestResponse, 0, len(reqs))
	for _, ar := range reqs {
		out = append(out, FromActivation(ar))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": out, "count": len(out)})
}

// HandleClose handles POST /files/{id}/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	h.fileAction(w, r, "close file", h.service.Close)
}

// HandleDeactivate handles POST /files/{id}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.fileAction(w, r, "deactivate file", h.service.Deactivate)
}

// HandleRecall handles POST /files/{id}/recall.
func (h *Handler) HandleRecall(w http.ResponseWriter, r *http.Request) {
	h.fileAction(w, r, "recall file", h.service.Recall)
}

// HandleArchive handles POST /files/{id}/archive.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ArchiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	f, err := h.service.Archive(ctx, actor, fileID, req.Directive)
	if err != nil {
		h.fail(ctx, w, "archive file", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFile(f))
}

// HandleDispatch handles POST /files/{id}/dispatch.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DispatchRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	f, err := h.service.Dispatch(ctx, actor, fileID, req.recipient, req.Note)
	if err != nil {
		h.fail(ctx, w, "dispatch file", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFile(f))
}

// HandleRequestAccess handles POST /files/{id}/access-requests.
func (h *Handler) HandleRequestAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AccessRequestBody](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ar, err := h.service.RequestAccess(ctx, actor, fileID, req.accessType, req.Reason)
	if err != nil {
		h.fail(ctx, w, "request access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromAccess(ar, requestcontext.Now(ctx)))
}

// HandleApproveAccess handles POST /access-requests/{id}/approve.
func (h *Handler) HandleApproveAccess(w http.ResponseWriter, r *http.Request) {
	h.decideAccess(w, r, "approve access", h.service.ApproveAccess)
}

// HandleRejectAccess handles POST /access-requests/{id}/reject.
func (h *Handler) HandleRejectAccess(w http.ResponseWriter, r *http.Request) {
	h.decideAccess(w, r, "reject access", h.service.RejectAccess)
}

// HandleHasAccess handles GET /files/{id}/access.
func (h *Handler) HandleHasAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	allowed, err := h.service.HasAccess(ctx, actor, fileID)
	if err != nil {
		h.fail(ctx, w, "check access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AccessCheckResponse{FileID: fileID.String(), HasAccess: allowed})
}

// HandleListAccessRequests handles GET /access-requests?status=.
func (h *Handler) HandleListAccessRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	status, err := parseRequestStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.service.ListAccessRequests(ctx, actor, status)
	if err != nil {
		h.fail(ctx, w, "list access requests", err)
		return
	}
	now := requestcontext.Now(ctx)
	out := make([]*AccessRequestResponse, 0, len(reqs))
	for _, ar := range reqs {
		out = append(out, FromAccess(ar, now))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": out, "count": len(out)})
}

func (h *Handler) fileAction(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, domain.Actor, domain.FileID) (*models.File, error),
) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	fileID, ok := h.fileID(w, r)
	if !ok {
		return
	}
	f, err := fn(ctx, actor, fileID)
	if err != nil {
		h.fail(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFile(f))
}

func (h *Handler) decideAccess(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, domain.Actor, domain.AccessRequestID) (*models.AccessRequest, error),
) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseAccessRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ar, err := fn(ctx, actor, id)
	if err != nil {
		h.fail(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAccess(ar, requestcontext.Now(ctx)))
}

func (h *Handler) requireActor(w http.ResponseWriter, ctx context.Context) (domain.Actor, bool) {
	actor := requestcontext.Actor(ctx)
	if actor.ID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handler) fileID(w http.ResponseWriter, r *http.Request) (domain.FileID, bool) {
	id, err := domain.ParseFileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.FileID{}, false
	}
	return id, true
}

// fail logs server-side failures at error and caller mistakes at warn.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	args := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed", args...)
	} else {
		h.logger.WarnContext(ctx, op+" rejected", args...)
	}
	httputil.WriteError(w, err)
}
