// Package handler serves the notification inbox of the calling user.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pims/internal/notification"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/platform/httputil"
	"pims/pkg/requestcontext"
)

const defaultLimit = 50

// Inbox reads delivered notifications back and tracks what each reader has seen.
type Inbox interface {
	Inbox(ctx context.Context, user domain.UserID, role domain.Role, limit int64) ([]notification.Notification, error)
	MarkRead(ctx context.Context, user domain.UserID, role domain.Role, id string) (bool, error)
	MarkAllRead(ctx context.Context, user domain.UserID, role domain.Role) (int, error)
}

type Handler struct {
	inbox  Inbox
	logger *slog.Logger
}

func New(inbox Inbox, logger *slog.Logger) *Handler {
	return &Handler{inbox: inbox, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.HandleInbox)
	r.Post("/notifications/read", h.HandleMarkAllRead)
	r.Post("/notifications/{id}/read", h.HandleMarkRead)
}

// HandleInbox handles GET /notifications?limit=.
func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	limit := int64(defaultLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	notes, err := h.inbox.Inbox(ctx, actor.ID, actor.Role, limit)
	if err != nil {
		h.fail(ctx, w, "failed to read inbox", err)
		return
	}
	if notes == nil {
		notes = []notification.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"notifications": notes,
		"count":         len(notes),
		"unread":        notification.CountUnread(notes),
	})
}

// HandleMarkRead handles POST /notifications/{id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	found, err := h.inbox.MarkRead(ctx, actor.ID, actor.Role, id)
	if err != nil {
		h.fail(ctx, w, "failed to mark notification read", err)
		return
	}
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "notification not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkAllRead handles POST /notifications/read.
func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	n, err := h.inbox.MarkAllRead(ctx, actor.ID, actor.Role)
	if err != nil {
		h.fail(ctx, w, "failed to mark inbox read", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func requireActor(w http.ResponseWriter, ctx context.Context) (domain.Actor, bool) {
	actor := requestcontext.Actor(ctx)
	if actor.ID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, msg))
}
