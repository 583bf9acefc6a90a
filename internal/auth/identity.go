// Package auth reads the caller identity forwarded by the upstream gateway.
// Authentication itself happens before requests reach this service.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

type contextKey string

const (
	OwnerIDKey    contextKey = "owner_id"
	OwnerEmailKey contextKey = "owner_email"

	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// Owner is the authenticated account a request acts for.
type Owner struct {
	ID    string
	Email string
}

type IdentityMiddleware struct {
	logger *zap.Logger
}

func NewIdentityMiddleware(logger *zap.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{logger: logger}
}

// RequireOwner rejects requests without a forwarded user id and injects the
// owner into the request context.
func (m *IdentityMiddleware) RequireOwner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if id == "" {
				m.logger.Warn("request without owner identity",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]interface{}{
					"success": false,
					"message": "missing user identity",
				})
				return
			}

			ctx := context.WithValue(r.Context(), OwnerIDKey, id)
			ctx = context.WithValue(ctx, OwnerEmailKey, strings.TrimSpace(r.Header.Get(HeaderUserEmail)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the owner injected by RequireOwner.
func OwnerFromContext(ctx context.Context) (Owner, bool) {
	id, ok := ctx.Value(OwnerIDKey).(string)
	if !ok || id == "" {
		return Owner{}, false
	}
	email, _ := ctx.Value(OwnerEmailKey).(string)
	return Owner{ID: id, Email: email}, true
}
