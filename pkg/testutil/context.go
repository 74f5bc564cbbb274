package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"immimate/pkg/requestcontext"
)

// WithUser attaches an authenticated identity to the request context, the way
// the auth middleware does for a valid bearer token.
func WithUser(req *http.Request, userID uuid.UUID, email string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithEmail(ctx, email)
	return req.WithContext(ctx)
}

// WithUserAgent sets both the header and the context value.
func WithUserAgent(req *http.Request, ua string) *http.Request {
	req.Header.Set("User-Agent", ua)
	return req.WithContext(requestcontext.WithUserAgent(req.Context(), ua))
}
