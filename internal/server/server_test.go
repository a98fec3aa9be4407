package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/NickAwrist/dynamic-pr-templates/internal/app"
	"github.com/NickAwrist/dynamic-pr-templates/internal/config"
	"github.com/NickAwrist/dynamic-pr-templates/internal/handlers"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote/remotetest"
	"github.com/NickAwrist/dynamic-pr-templates/internal/seed"
	"github.com/NickAwrist/dynamic-pr-templates/internal/store"
)

const apiKey = "test-api-key-123456"

type staticClients struct{ api remote.API }

func (s staticClients) ForInstallation(context.Context, int64) (remote.API, error) {
	return s.api, nil
}

func newTestServer(t *testing.T) (http.Handler, *remotetest.Fake) {
	t.Helper()

	st, err := store.Open(context.Background(), "sqlite3", "file:"+filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := remotetest.New()
	fake.AddRepo("acme", "widgets", "main")

	log := logger.Nop()
	tree := seed.New(fstest.MapFS{"pr_templates/bug.md": {Data: []byte("## Bug Report")}}, ".")
	a := app.New(staticClients{api: fake}, tree, st, nil, log)
	h := handlers.New(a, st, handlers.WebhookConfig{}, log)

	cfg := &config.Config{}
	cfg.Security.APIKeys = []string{apiKey}
	return New(cfg, h, log).Routes(), fake
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestRoutes_OutcomesRequireAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/outcomes", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/outcomes", nil)
	req.Header.Set("X-API-Key", apiKey)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestRoutes_InstallationIsRecordedAndListed(t *testing.T) {
	srv, fake := newTestServer(t)

	body := `{"action": "added", "installation": {"id": 7, "account": {"login": "acme"}},
		"repositories_added": [{"name": "widgets"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "installation_repositories")
	req.Header.Set("X-GitHub-Delivery", "d-1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if n := fake.Repo("acme", "widgets").PullRequestsWithHead("dynamic-pr-templates"); n != 1 {
		t.Errorf("expected setup pull request, got %d", n)
	}

	req = httptest.NewRequest(http.MethodGet, "/outcomes?limit=10", nil)
	req.Header.Set("X-API-Key", apiKey)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"delivery_id":"d-1"`) {
		t.Errorf("expected recorded outcome, got %s", w.Body.String())
	}
}

func TestRoutes_SignedDeliveriesAreNotRateLimited(t *testing.T) {
	const secret = "hook-secret"

	st, err := store.Open(context.Background(), "sqlite3", "file:"+filepath.Join(t.TempDir(), "limits.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := logger.Nop()
	tree := seed.New(fstest.MapFS{}, ".")
	a := app.New(staticClients{api: remotetest.New()}, tree, st, nil, log)
	h := handlers.New(a, st, handlers.WebhookConfig{Secret: secret}, log)

	cfg := &config.Config{}
	cfg.Server.RateLimitPerMinute = 2
	cfg.Security.APIKeys = []string{apiKey}
	srv := New(cfg, h, log).Routes()

	body := `{"zen": "Practicality beats purity."}`
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	deliver := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(body))
		req.RemoteAddr = "140.82.115.10:443"
		req.Header.Set(handlers.HeaderEvent, "ping")
		if sig != "" {
			req.Header.Set(handlers.HeaderSignature, sig)
		}
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 5; i++ {
		if code := deliver(signature); code != http.StatusOK {
			t.Fatalf("signed delivery %d: expected 200, got %d", i, code)
		}
	}

	codes := []int{deliver(""), deliver(""), deliver("")}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected unsigned requests to be limited, got %v", codes)
	}
}
