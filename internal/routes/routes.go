package routes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mgclub/smartpass/internal/auth"
	"github.com/mgclub/smartpass/internal/handlers"
	"github.com/mgclub/smartpass/internal/middleware"
	pkghttp "github.com/mgclub/smartpass/pkg/http"
)

// HealthChecker reports whether the verifier's storage is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	passHandler *handlers.PassHandler,
	tokenManager *auth.TokenManager,
	health HealthChecker,
	scanLimit middleware.RateLimitConfig,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := health.HealthCheck(r.Context()); err != nil {
			logger.Error("health check failed", slog.Any("error", err))
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Scanner routes. Readers are not members, so these are public and IP limited.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(scanLimit, ipConfig))
		r.Post("/smartpass/scan", passHandler.Scan)
		r.Post("/smartpass/scan/envelope", passHandler.ScanEnvelope)
	})

	// Member routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(middleware.RateLimitByMember(middleware.DefaultEnrollRateLimit(), ipConfig))

		r.Post("/passes/enroll", passHandler.Enroll)
		r.Get("/passes/me", passHandler.Status)
		r.Delete("/passes/me", passHandler.Revoke)
	})
}
