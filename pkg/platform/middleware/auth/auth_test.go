package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pims/pkg/domain"
	"pims/pkg/requestcontext"
)

type stubValidator struct {
	actor domain.Actor
	err   error
	seen  string
}

func (s *stubValidator) ValidateToken(token string) (domain.Actor, error) {
	s.seen = token
	return s.actor, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actor := domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleHOD}

	var got domain.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token stores actor", func(t *testing.T) {
		v := &stubValidator{actor: actor}
		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()

		RequireAuth(v, logger)(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "abc", v.seen)
		assert.Equal(t, actor, got)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		rec := httptest.NewRecorder()

		RequireAuth(&stubValidator{actor: actor}, logger)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()

		RequireAuth(&stubValidator{err: errors.New("expired")}, logger)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "unauthorized")
	})
}

func TestRequireCapability(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guard := RequireCapability(domain.CapManageTemplates)(next)

	admin := domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleAdmin}
	staff := domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleStaff}

	req := httptest.NewRequest(http.MethodPost, "/templates", nil)
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req.WithContext(requestcontext.WithActor(req.Context(), admin)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	guard.ServeHTTP(rec, req.WithContext(requestcontext.WithActor(req.Context(), staff)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
