package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pims/pkg/platform/httputil"
	"pims/pkg/platform/middleware/request"
	"pims/pkg/requestcontext"
)

// Policy is the number of requests allowed per caller per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// PerActor limits each authenticated actor, or each client IP when the actor
// is unknown. A zero limit disables the middleware. Limiter errors fail open.
func PerActor(limiter Limiter, policy Policy, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || policy.Limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ip:" + request.GetClientIP(ctx)
			if actor := requestcontext.Actor(ctx); !actor.ID.IsNil() {
				key = "user:" + actor.ID.String()
			}

			result, err := limiter.Allow(ctx, key, policy.Limit, policy.Window)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"key", key,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(time.Now())))
				logger.WarnContext(ctx, "rate limit exceeded",
					"key", key,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "too many requests, try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
