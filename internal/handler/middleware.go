package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"netwatch/internal/model"
	"netwatch/internal/service"
	"netwatch/internal/util"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionMiddleware resolves the session cookie into a request-scoped
// identity. Requests without a valid session pass through anonymously; the
// authorization helpers decide whether that is acceptable per operation.
func SessionMiddleware(auth *service.AuthService, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err == nil && cookie.Value != "" {
				identity, err := auth.ResolveSession(r.Context(), cookie.Value)
				if err == nil {
					r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identityFrom returns the caller identity, or nil for anonymous requests.
func identityFrom(r *http.Request) *model.Identity {
	identity, _ := r.Context().Value(identityKey).(*model.Identity)
	return identity
}

// LoggerMiddleware logs every HTTP request with its status and duration.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
