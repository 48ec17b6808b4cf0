package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pims/pkg/domain"
	"pims/pkg/requestcontext"
)

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter()
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "user:a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clock = clock.Add(10 * time.Second)
	}

	res, err := l.Allow(ctx, "user:a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Date(2024, 5, 2, 10, 1, 0, 0, time.UTC), res.ResetAt)

	other, err := l.Allow(ctx, "user:b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock = time.Date(2024, 5, 2, 10, 1, 0, 0, time.UTC)
	res, err = l.Allow(ctx, "user:a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "oldest hit left the window")
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	clock := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, "pims:ratelimit:")
	l.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "user:a", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		clock = clock.Add(time.Second)
	}
	res, err := l.Allow(ctx, "user:a", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, mr.Exists("pims:ratelimit:user:a"))

	clock = clock.Add(time.Minute)
	res, err = l.Allow(ctx, "user:a", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func TestPerActor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	actor := domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleStaff}
	call := func(h http.Handler, a domain.Actor) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		req = req.WithContext(requestcontext.WithActor(req.Context(), a))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("rejects over limit per actor", func(t *testing.T) {
		h := PerActor(NewMemoryLimiter(), Policy{Limit: 2, Window: time.Minute}, logger)(ok)

		assert.Equal(t, http.StatusNoContent, call(h, actor).Code)
		rec := call(h, actor)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		rec = call(h, actor)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		other := domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleStaff}
		assert.Equal(t, http.StatusNoContent, call(h, other).Code)
	})

	t.Run("zero limit disables", func(t *testing.T) {
		h := PerActor(NewMemoryLimiter(), Policy{}, logger)(ok)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusNoContent, call(h, actor).Code)
		}
	})

	t.Run("limiter errors fail open", func(t *testing.T) {
		h := PerActor(failingLimiter{}, Policy{Limit: 1, Window: time.Minute}, logger)(ok)
		assert.Equal(t, http.StatusNoContent, call(h, actor).Code)
		assert.Equal(t, http.StatusNoContent, call(h, actor).Code)
	})
}
