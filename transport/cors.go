package transport

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access to the HTTP transport.
type CORSConfig struct {
	// AllowOrigins lists the permitted origins. A single "*" permits
	// every origin.
	AllowOrigins []string

	// AllowMethods lists permitted HTTP methods.
	// Empty means GET, POST, OPTIONS.
	AllowMethods []string

	// AllowHeaders lists permitted request headers.
	// Empty means Content-Type, Authorization, X-Request-ID.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers on
	// cross-origin requests.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero means
	// 86400 (24 hours).
	MaxAge int
}

// DefaultCORSConfig returns a permissive configuration suitable for
// development setups.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:       86400,
	}
}

// CORSHandler wraps next with CORS handling: preflight requests from
// permitted origins are answered directly, other requests gain the
// appropriate response headers. Requests from origins outside the
// configuration pass through untouched, with no CORS headers.
func CORSHandler(config CORSConfig, next http.Handler) http.Handler {
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(config.AllowHeaders) == 0 {
		config.AllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if config.MaxAge == 0 {
		config.MaxAge = 86400
	}

	allowAllOrigins := len(config.AllowOrigins) == 1 && config.AllowOrigins[0] == "*"
	allowedOrigins := make(map[string]bool)
	for _, origin := range config.AllowOrigins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		var allowOrigin string
		if allowAllOrigins {
			allowOrigin = "*"
		} else if origin != "" && allowedOrigins[origin] {
			allowOrigin = origin
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			if config.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
				if config.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if len(config.ExposeHeaders) > 0 {
				w.Header().Set("Access-Control-Expose-Headers", strings.Join(config.ExposeHeaders, ", "))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// WithCORS enables CORS on the HTTP transport with the given config.
func WithCORS(config CORSConfig) HTTPOption {
	return func(h *HTTP) {
		h.corsConfig = &config
	}
}

// WithDefaultCORS enables CORS with the permissive default settings.
func WithDefaultCORS() HTTPOption {
	config := DefaultCORSConfig()
	return func(h *HTTP) {
		h.corsConfig = &config
	}
}
