package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	dErrors "immimate/pkg/domain-errors"
	"immimate/pkg/platform/httputil"
	"immimate/pkg/requestcontext"
)

// Identity is the verified user carried by a bearer token.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Identity, error)
}

// OptionalAuth attaches the identity when a valid bearer token is present and
// otherwise passes the request through anonymously. An invalid token is
// treated as no identity, not as an error.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token, ok := bearerToken(r); ok {
				identity, err := validator.ValidateToken(token)
				if err != nil {
					logger.DebugContext(ctx, "ignoring invalid bearer token",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				} else {
					ctx = withIdentity(ctx, identity)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			identity, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(ctx, identity)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func withIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = requestcontext.WithUserID(ctx, identity.UserID)
	return requestcontext.WithEmail(ctx, identity.Email)
}
