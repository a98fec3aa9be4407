package remote

import (
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// appJWTLifetime stays under GitHub's 10 minute maximum
const appJWTLifetime = 9 * time.Minute

// appJWTBackdate absorbs clock drift between us and GitHub
const appJWTBackdate = 60 * time.Second

// AppAuth signs the RS256 JSON Web Tokens that authenticate as a GitHub App
type AppAuth struct {
	appID      int64
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// NewAppAuth parses a PEM encoded RSA key (PKCS1 or PKCS8)
func NewAppAuth(appID int64, privateKeyPEM []byte) (*AppAuth, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("github app id must be positive, got %d", appID)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing github app private key: %w", err)
	}

	return &AppAuth{appID: appID, privateKey: key, now: time.Now}, nil
}

// AppID returns the GitHub App id the tokens are issued for
func (a *AppAuth) AppID() int64 {
	return a.appID
}

// JWT returns a freshly signed app token
func (a *AppAuth) JWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing github app jwt: %w", err)
	}
	return signed, nil
}
