package handlers

import (
	"context"

	"github.com/NickAwrist/dynamic-pr-templates/internal/app"
	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
	"github.com/NickAwrist/dynamic-pr-templates/internal/store"
	"github.com/NickAwrist/dynamic-pr-templates/internal/validation"
)

// EventProcessor runs the app flows for decoded webhook deliveries
type EventProcessor interface {
	HandlePullRequestOpened(ctx context.Context, installationID int64, evt models.PullRequestOpenedEvent) (*app.TemplateResult, *errors.AppError)
	HandleInstallation(ctx context.Context, deliveryID string, payload models.InstallationWebhookPayload) (*app.InstallationResult, *errors.AppError)
}

// Store is the persistence the handlers read and write
type Store interface {
	MarkDelivery(ctx context.Context, deliveryID, event string) (bool, error)
	RecentOutcomes(ctx context.Context, limit int) ([]store.RecordedOutcome, error)
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	events    EventProcessor
	store     Store
	webhook   WebhookConfig
	log       *logger.Logger
	validator *validation.Validator
}

// New creates a new handler instance
func New(events EventProcessor, st Store, webhook WebhookConfig, log *logger.Logger) *Handler {
	if webhook.MaxBodyBytes <= 0 {
		webhook.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		events:    events,
		store:     st,
		webhook:   webhook,
		log:       log,
		validator: validation.New(),
	}
}
