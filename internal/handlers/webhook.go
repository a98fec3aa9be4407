package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultMaxBodyBytes matches the largest payload GitHub delivers
const DefaultMaxBodyBytes = 25 << 20

// GitHub delivery headers
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"

	signaturePrefix = "sha256="
)

// WebhookConfig holds configuration for webhook processing
type WebhookConfig struct {
	// Secret is the webhook secret configured on the GitHub App. When empty
	// signatures are not checked.
	Secret string

	MaxBodyBytes int64
}

// verifyWebhookSignature verifies the HMAC SHA256 signature of the webhook payload
func (h *Handler) verifyWebhookSignature(payload []byte, headerSignature string) bool {
	if !strings.HasPrefix(headerSignature, signaturePrefix) {
		return false
	}
	providedSignature := strings.TrimPrefix(headerSignature, signaturePrefix)

	// Calculate HMAC SHA256 signature
	mac := hmac.New(sha256.New, []byte(h.webhook.Secret))
	mac.Write(payload)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	// Compare signatures using constant time comparison to prevent timing attacks
	return hmac.Equal([]byte(providedSignature), []byte(expectedSignature))
}

// AuthenticDelivery reports whether signature is a valid signature of body
// under the configured secret. Without a secret nothing is authentic.
func (h *Handler) AuthenticDelivery(body []byte, signature string) bool {
	if h.webhook.Secret == "" {
		return false
	}
	return h.verifyWebhookSignature(body, signature)
}

// WebhookBodyLimit returns the largest delivery body accepted
func (h *Handler) WebhookBodyLimit() int64 {
	return h.webhook.MaxBodyBytes
}
