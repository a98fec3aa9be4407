package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

// DefaultRequestsPerMinute is the per-client budget when none is configured
const DefaultRequestsPerMinute = 600

// publicPaths skip API key authentication. Webhooks authenticate with
// their signature instead.
var publicPaths = map[string]bool{
	"/health":         true,
	"/webhook/github": true,
}

// Options configures the middleware chain
type Options struct {
	RequestsPerMinute int

	// TrustProxyHeaders keys clients on X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// Middleware holds the state shared by the HTTP middleware chain
type Middleware struct {
	log        *logger.Logger
	limiter    *limiter
	trustProxy bool
	signed     *SignedDeliveries
	apiKeys    [][]byte
}

// New creates the middleware chain state
func New(log *logger.Logger, opts Options) *Middleware {
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}
	return &Middleware{
		log:        log,
		limiter:    newLimiter(opts.RequestsPerMinute, time.Minute),
		trustProxy: opts.TrustProxyHeaders,
	}
}

// SetAPIKeys replaces the keys accepted on protected routes
func (m *Middleware) SetAPIKeys(keys []string) {
	m.apiKeys = make([][]byte, 0, len(keys))
	for _, key := range keys {
		m.apiKeys = append(m.apiKeys, []byte(key))
	}
}

// Logging logs each completed request
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log := m.log.With("method", r.Method).
			With("path", r.URL.Path).
			With("status", rec.status).
			With("duration", time.Since(start).String()).
			With("client", m.clientKey(r))
		if rec.status >= http.StatusInternalServerError {
			log.Warn("HTTP request failed")
			return
		}
		log.Info("HTTP request completed")
	})
}

// Recovery turns a handler panic into a 500
func (m *Middleware) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				m.log.With("path", r.URL.Path).Errorf("Panic in HTTP handler: %v", p)
				writeError(w, errors.New(errors.ErrCodeInternalError, "Internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth requires X-API-Key (or ?api_key=) on every non-public path
func (m *Middleware) APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}

		switch {
		case key == "":
			m.log.Warnf("Missing API key from %s", m.clientKey(r))
			writeError(w, errors.New(errors.ErrCodeUnauthorized, "Missing API key"))
		case !m.validAPIKey(key):
			m.log.Warnf("Invalid API key from %s", m.clientKey(r))
			writeError(w, errors.New(errors.ErrCodeUnauthorized, "Invalid API key"))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// validAPIKey compares against every key in constant time
func (m *Middleware) validAPIKey(provided string) bool {
	match := 0
	for _, key := range m.apiKeys {
		match |= subtle.ConstantTimeCompare([]byte(provided), key)
	}
	return match == 1
}

// Security sets response headers for a JSON API
func (m *Middleware) Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if r.URL.Path != "/health" {
			h.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller for rate limiting and logs
func (m *Middleware) clientKey(r *http.Request) string {
	if m.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: appErr.Message,
		Code:  string(appErr.Code),
	})
}

// statusRecorder captures the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}
