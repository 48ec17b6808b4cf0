package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pims/internal/workflow/models"
	"pims/internal/workflow/service"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/platform/httputil"
	"pims/pkg/requestcontext"
)

// Service defines the workflow operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, actor domain.Actor, req service.SubmitRequest) (*models.DocumentWorkflow, error)
	Transition(ctx context.Context, actor domain.Actor, id domain.WorkflowID, requested models.Status, comment string) (*models.DocumentWorkflow, error)
	BulkTransition(ctx context.Context, actor domain.Actor, ids []domain.WorkflowID, requested models.Status, comment string) ([]service.BulkResult, error)
	Get(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error)
	ListInbox(ctx context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error)
	ListSent(ctx context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error)
	AllowedTransitions(ctx context.Context, id domain.WorkflowID) ([]models.Status, error)
	CreateTemplate(ctx context.Context, actor domain.Actor, name string, steps []models.TemplateStep) (*models.Template, error)
	GetTemplate(ctx context.Context, id domain.TemplateID) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
}

// Handler wires workflow endpoints to the workflow service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts workflow and template endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/inbox", h.HandleInbox)
		r.Get("/sent", h.HandleSent)
		r.Post("/bulk-transition", h.HandleBulkTransition)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/transition", h.HandleTransition)
		r.Get("/{id}/transitions", h.HandleAllowedTransitions)
	})
	r.Route("/workflow-templates", func(r chi.Router) {
		r.Post("/", h.HandleCreateTemplate)
		r.Get("/", h.HandleListTemplates)
		r.Get("/{id}", h.HandleGetTemplate)
	})
}

// HandleSubmit handles POST /workflows.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	wf, err := h.service.Submit(ctx, actor, req.Parsed())
	if err != nil {
		h.fail(ctx, w, "submit workflow", err)
		return
	}
	h.logger.InfoContext(ctx, "workflow submitted",
		"request_id", requestID,
		"workflow_id", wf.ID.String(),
		"sender_id", actor.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromWorkflow(wf))
}

// HandleTransition handles POST /workflows/{id}/transition.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseWorkflowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	wf, err := h.service.Transition(ctx, actor, id, req.status, req.Comment)
	if err != nil {
		h.fail(ctx, w, "transition workflow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWorkflow(wf))
}

// HandleBulkTransition handles POST /workflows/bulk-transition. Each id is
// reported separately; the response is 200 even when some items failed.
func (h *Handler) HandleBulkTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BulkTransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	results, err := h.service.BulkTransition(ctx, actor, req.ids, req.status, req.Comment)
	if err != nil {
		h.fail(ctx, w, "bulk transition", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromBulk(results))
}

// HandleGet handles GET /workflows/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, ctx); !ok {
		return
	}
	id, err := domain.ParseWorkflowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	wf, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get workflow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWorkflow(wf))
}

// HandleInbox handles GET /workflows/inbox.
func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list inbox", h.service.ListInbox)
}

// HandleSent handles GET /workflows/sent.
func (h *Handler) HandleSent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list sent", h.service.ListSent)
}

// HandleAllowedTransitions handles GET /workflows/{id}/transitions.
func (h *Handler) HandleAllowedTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, ctx); !ok {
		return
	}
	id, err := domain.ParseWorkflowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	allowed, err := h.service.AllowedTransitions(ctx, id)
	if err != nil {
		h.fail(ctx, w, "allowed transitions", err)
		return
	}
	out := make([]string, 0, len(allowed))
	for _, st := range allowed {
		out = append(out, string(st))
	}
	httputil.WriteJSON(w, http.StatusOK, TransitionsResponse{WorkflowID: id.String(), Allowed: out})
}

// HandleCreateTemplate handles POST /workflow-templates.
func (h *Handler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateTemplateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.service.CreateTemplate(ctx, actor, req.Name, req.steps)
	if err != nil {
		h.fail(ctx, w, "create template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromTemplate(t))
}

// HandleListTemplates handles GET /workflow-templates.
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, ctx); !ok {
		return
	}
	templates, err := h.service.ListTemplates(ctx)
	if err != nil {
		h.fail(ctx, w, "list templates", err)
		return
	}
	out := make([]*TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, FromTemplate(t))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"templates": out, "count": len(out)})
}

// HandleGetTemplate handles GET /workflow-templates/{id}.
func (h *Handler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, ctx); !ok {
		return
	}
	id, err := domain.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.GetTemplate(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTemplate(t))
}

func (h *Handler) list(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, domain.Actor) ([]*models.DocumentWorkflow, error),
) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	ws, err := fn(ctx, actor)
	if err != nil {
		h.fail(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWorkflows(ws))
}

func requireActor(w http.ResponseWriter, ctx context.Context) (domain.Actor, bool) {
	actor := requestcontext.Actor(ctx)
	if actor.ID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Actor{}, false
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
