package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for the import log.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // Already resolved by TrustedRealIP
	ctx = core.ContextWithClientIP(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
