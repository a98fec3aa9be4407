// Package events publishes bootstrap outcomes to a message broker.
package events

import (
	"context"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/bootstrap"
)

// DefaultQueue receives outcome messages when no queue is configured
const DefaultQueue = "dynamic_pr_templates.bootstrap_outcomes"

// OutcomeMessage is the body of a published outcome
type OutcomeMessage struct {
	DeliveryID     string            `json:"delivery_id"`
	InstallationID int64             `json:"installation_id"`
	Succeeded      bool              `json:"succeeded"`
	Outcome        bootstrap.Outcome `json:"outcome"`
	PublishedAt    time.Time         `json:"published_at"`
}

// Publisher sends outcome messages somewhere
type Publisher interface {
	PublishOutcome(ctx context.Context, msg OutcomeMessage) error
	Close() error
}

// Nop discards every message
type Nop struct{}

func (Nop) PublishOutcome(context.Context, OutcomeMessage) error { return nil }

func (Nop) Close() error { return nil }
