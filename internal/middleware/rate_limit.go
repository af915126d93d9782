package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/mgclub/smartpass/internal/auth"
	pkghttp "github.com/mgclub/smartpass/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultScanRateLimit returns the per-reader limit for scan endpoints (60 requests per minute)
func DefaultScanRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 60,
		Window:   time.Minute,
	}
}

// DefaultEnrollRateLimit returns the per-member limit for enrollment endpoints (10 requests per minute)
func DefaultEnrollRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// Forwarding headers count only when sent by one of ipConfig's trusted proxies.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// RateLimitByMember rate limits authenticated requests by member ID,
// falling back to the client IP when no claims are present
func RateLimitByMember(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "member:" + claims.UserID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}
