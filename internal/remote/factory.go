package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v56/github"
)

// tokenRotationMargin is how long before expiry a cached installation
// token is replaced
const tokenRotationMargin = 5 * time.Minute

// FactoryConfig configures how API clients are authenticated.
// Exactly one of Auth (GitHub App) or Token (personal access token) is set.
type FactoryConfig struct {
	// BaseURL overrides https://api.github.com/, e.g. for GitHub Enterprise
	BaseURL string

	// HTTPClient is used for every request. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	Auth  *AppAuth
	Token string
}

// Factory hands out API clients scoped to a GitHub App installation
type Factory struct {
	baseURL    *url.URL
	httpClient *http.Client
	auth       *AppAuth
	token      string
	now        func() time.Time

	mu     sync.Mutex
	tokens map[int64]installationToken
}

type installationToken struct {
	value     string
	expiresAt time.Time
}

// NewFactory validates cfg and returns a Factory
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Auth == nil && cfg.Token == "" {
		return nil, fmt.Errorf("no github authentication configured")
	}
	if cfg.Auth != nil && cfg.Token != "" {
		return nil, fmt.Errorf("github app auth and token auth are mutually exclusive")
	}

	f := &Factory{
		httpClient: cfg.HTTPClient,
		auth:       cfg.Auth,
		token:      cfg.Token,
		now:        time.Now,
		tokens:     make(map[int64]installationToken),
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing github api url %q: %w", cfg.BaseURL, err)
		}
		f.baseURL = u
	}

	return f, nil
}

// ForInstallation returns a client acting as the given installation. In
// token mode the installation id is ignored.
func (f *Factory) ForInstallation(ctx context.Context, installationID int64) (API, error) {
	if f.auth == nil {
		return NewClient(f.newGitHub(f.token)), nil
	}

	if installationID == 0 {
		return nil, fmt.Errorf("delivery carries no installation id")
	}

	token, err := f.installationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return NewClient(f.newGitHub(token)), nil
}

// installationToken returns a cached token or exchanges a new app JWT for one
func (f *Factory) installationToken(ctx context.Context, installationID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.tokens[installationID]; ok && f.now().Before(cached.expiresAt.Add(-tokenRotationMargin)) {
		return cached.value, nil
	}

	appJWT, err := f.auth.JWT()
	if err != nil {
		return "", err
	}

	tok, _, err := f.newGitHub(appJWT).Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("creating token for installation %d: %w", installationID, err)
	}
	if tok.GetToken() == "" {
		return "", fmt.Errorf("token exchange for installation %d returned an empty token", installationID)
	}

	f.tokens[installationID] = installationToken{
		value:     tok.GetToken(),
		expiresAt: tok.GetExpiresAt().Time,
	}
	return tok.GetToken(), nil
}

// newGitHub builds a client authenticated with token. WithAuthToken wraps
// the transport of the http.Client it is given, so each client gets its
// own copy of the configured one.
func (f *Factory) newGitHub(token string) *github.Client {
	hc := *f.httpClient
	gh := github.NewClient(&hc).WithAuthToken(token)
	if f.baseURL != nil {
		gh.BaseURL = f.baseURL
	}
	return gh
}
