package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey int

const actorKey ctxKey = iota

// MockAuthMiddleware trusts the X-User-ID, X-User-Role and X-Shop-ID headers
// (replace with real JWT validation)
func MockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.Actor{
			UserID: strings.TrimSpace(r.Header.Get("X-User-ID")),
			Role:   domain.ActorRole(strings.ToUpper(r.Header.Get("X-User-Role"))),
			ShopID: strings.TrimSpace(r.Header.Get("X-Shop-ID")),
		}
		if actor.Role == "" {
			actor.Role = domain.RoleBuyer
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger puts a request scoped logger on the context and logs every
// finished request.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			l := base.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), l)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.WithTrace(ctx, l).Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, false
	}
	switch actor.Role {
	case domain.RoleBuyer, domain.RoleSeller, domain.RoleAdmin:
		return actor, true
	}
	return domain.Actor{}, false
}
