package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
)

// DefaultMaxClients bounds how many client buckets are tracked at once
const DefaultMaxClients = 10000

// overflowKey is the bucket shared by new clients while the table is full
const overflowKey = "\x00overflow"

// DeliveryVerifier checks a webhook body against its signature header
type DeliveryVerifier interface {
	AuthenticDelivery(body []byte, signature string) bool
}

// SignedDeliveries exempts correctly signed webhook deliveries on Path
// from the per-client limit
type SignedDeliveries struct {
	Path         string
	Header       string
	MaxBodyBytes int64
	Verifier     DeliveryVerifier
}

// ExemptSignedDeliveries registers the webhook route whose signed
// deliveries bypass rate limiting
func (m *Middleware) ExemptSignedDeliveries(cfg SignedDeliveries) {
	m.signed = &cfg
}

// RateLimit limits each client to the configured requests per minute
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed, err := m.signedDelivery(r)
		if err != nil {
			writeError(w, errors.InvalidRequest("Failed to read request body: "+err.Error()))
			return
		}
		if signed {
			next.ServeHTTP(w, r)
			return
		}

		client := m.clientKey(r)
		if !m.limiter.allow(client) {
			m.log.Warnf("Rate limit exceeded for client: %s", client)
			w.Header().Set("Retry-After", strconv.Itoa(int(m.limiter.window.Seconds())))
			writeError(w, errors.New(errors.ErrCodeTooManyRequests, "Rate limit exceeded, try again later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// signedDelivery reports whether r is a webhook delivery carrying a valid
// signature. The body is buffered and handed on unchanged.
func (m *Middleware) signedDelivery(r *http.Request) (bool, error) {
	cfg := m.signed
	if cfg == nil || r.URL.Path != cfg.Path || r.Method != http.MethodPost {
		return false, nil
	}
	signature := r.Header.Get(cfg.Header)
	if signature == "" {
		return false, nil
	}

	// One byte over the limit lets the handler report the oversize body
	body, err := io.ReadAll(io.LimitReader(r.Body, cfg.MaxBodyBytes+1))
	r.Body.Close()
	if err != nil {
		return false, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if int64(len(body)) > cfg.MaxBodyBytes {
		return false, nil
	}
	return cfg.Verifier.AuthenticDelivery(body, signature), nil
}

// limiter is a fixed-window request counter per client. Buckets idle for a
// full window are evicted, and once maxClients buckets exist new clients
// share a single overflow bucket.
type limiter struct {
	mu         sync.Mutex
	perWindow  int
	window     time.Duration
	maxClients int
	clients    map[string]*bucket
	lastSweep  time.Time
	now        func() time.Time
}

type bucket struct {
	remaining int
	started   time.Time
}

func newLimiter(perWindow int, window time.Duration) *limiter {
	return &limiter{
		perWindow:  perWindow,
		window:     window,
		maxClients: DefaultMaxClients,
		clients:    make(map[string]*bucket),
		now:        time.Now,
	}
}

func (l *limiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}

	b, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.sweep(now)
		}
		if len(l.clients) >= l.maxClients {
			client = overflowKey
			b, ok = l.clients[client]
		}
		if !ok {
			b = &bucket{remaining: l.perWindow, started: now}
			l.clients[client] = b
		}
	}

	if now.Sub(b.started) >= l.window {
		b.remaining = l.perWindow
		b.started = now
	}
	if b.remaining == 0 {
		return false
	}
	b.remaining--
	return true
}

// sweep drops buckets whose window has expired; they would start full anyway
func (l *limiter) sweep(now time.Time) {
	for client, b := range l.clients {
		if now.Sub(b.started) >= l.window {
			delete(l.clients, client)
		}
	}
	l.lastSweep = now
}
