package router

import (
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/logger"
	"github.com/keygate/keygate/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	// Public validation API (legacy wire contract). Method handling lives
	// inside the handlers so a wrong verb gets the contract's JSON body
	// instead of the mux default.
	checkRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Limit:  120,
		Window: 1 * time.Minute,
		KeyFn:  middleware.IPKey,
	})
	activateRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Limit:  20,
		Window: 1 * time.Minute,
		KeyFn:  middleware.IPKey,
	})
	bulkRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Limit:  10,
		Window: 1 * time.Minute,
		KeyFn:  middleware.IPKey,
	})

	mux.Handle("/api/check", checkRateLimit(http.HandlerFunc(h.APICheck)))
	mux.Handle("/api/activate", activateRateLimit(http.HandlerFunc(h.APIActivate)))
	mux.Handle("/api/keys/bulk", bulkRateLimit(http.HandlerFunc(h.APIBulkCreate)))

	// Management API (require auth, per-user rate limit)
	authMw := mw.Auth()
	userRateLimit := mw.UserRateLimit()
	manage := func(hf http.HandlerFunc) http.Handler {
		return authMw(userRateLimit(hf))
	}

	mux.Handle("POST /api/v1/apps", manage(h.CreateApp))
	mux.Handle("GET /api/v1/apps", manage(h.ListApps))
	mux.Handle("GET /api/v1/apps/{id}", manage(h.GetApp))
	mux.Handle("PUT /api/v1/apps/{id}", manage(h.UpdateApp))
	mux.Handle("DELETE /api/v1/apps/{id}", manage(h.DeleteApp))
	mux.Handle("GET /api/v1/apps/{id}/keys", manage(h.ListAppKeys))

	mux.Handle("POST /api/v1/keys", manage(h.CreateKey))
	mux.Handle("GET /api/v1/keys", manage(h.ListKeys))
	mux.Handle("GET /api/v1/keys/{id}", manage(h.GetKey))
	mux.Handle("PATCH /api/v1/keys/{id}", manage(h.UpdateKey))
	mux.Handle("DELETE /api/v1/keys/{id}", manage(h.DeleteKey))

	mux.Handle("GET /api/v1/audit", manage(h.ListAuditLog))

	// Apply middleware stack
	var root http.Handler = mux

	// CORS for the management UI (configure allowed origins based on environment)
	root = mw.CORS([]string{"http://localhost:3000", "http://localhost:5173"})(root)

	// Security headers
	root = mw.SecurityHeaders(root)

	// Request logging
	root = mw.Logger(root)

	// Timing
	root = mw.Timing(root)

	// Request ID
	root = mw.RequestID(root)

	// Panic recovery (outermost)
	root = mw.Recover(root)

	return root
}
