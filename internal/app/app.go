// Package app wires the template and bootstrap flows to installation
// scoped GitHub clients.
package app

import (
	"context"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/bootstrap"
	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/events"
	"github.com/NickAwrist/dynamic-pr-templates/internal/installation"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
	"github.com/NickAwrist/dynamic-pr-templates/internal/templates"
	"github.com/NickAwrist/dynamic-pr-templates/internal/validation"
)

// ClientFactory returns a remote client acting as an installation
type ClientFactory interface {
	ForInstallation(ctx context.Context, installationID int64) (remote.API, error)
}

// Recorder persists bootstrap outcomes
type Recorder interface {
	RecordOutcome(ctx context.Context, deliveryID string, outcome bootstrap.Outcome) error
}

// App handles the pull request and installation events
type App struct {
	clients   ClientFactory
	source    bootstrap.TemplateSource
	recorder  Recorder
	publisher events.Publisher
	validator *validation.Validator
	log       *logger.Logger
	now       func() time.Time
}

// New creates an App. recorder may be nil; a nil publisher discards outcomes.
func New(clients ClientFactory, source bootstrap.TemplateSource, recorder Recorder, publisher events.Publisher, log *logger.Logger) *App {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &App{
		clients:   clients,
		source:    source,
		recorder:  recorder,
		publisher: publisher,
		validator: validation.New(),
		log:       log,
		now:       time.Now,
	}
}

// TemplateResult describes a template applied to a pull request
type TemplateResult struct {
	Repository models.RepositoryRef `json:"repository"`
	Number     int                  `json:"number"`
	Prefix     string               `json:"prefix"`
	Path       string               `json:"path"`
}

// HandlePullRequestOpened replaces the body of a newly opened pull request
// with the template named by its title prefix. Any error leaves the body
// unchanged.
func (a *App) HandlePullRequestOpened(ctx context.Context, installationID int64, evt models.PullRequestOpenedEvent) (*TemplateResult, *errors.AppError) {
	log := a.log.WithRepository(evt.Repository.Owner, evt.Repository.Name).With("pull_request", evt.Number)

	prefix, appErr := a.validator.ExtractPrefix(evt.Title)
	if appErr != nil {
		log.Debugf("No template prefix in title %q", evt.Title)
		return nil, appErr
	}

	if appErr := a.validator.ValidatePrefix(prefix); appErr != nil {
		log.WarnErr("Rejected template prefix", appErr)
		return nil, appErr
	}

	api, err := a.clients.ForInstallation(ctx, installationID)
	if err != nil {
		appErr := errors.RemoteFailure(err, "Failed to authenticate as installation")
		log.Error("Could not get installation client", appErr)
		return nil, appErr
	}

	text, appErr := templates.NewResolver(api).Resolve(ctx, evt.Repository, prefix)
	if appErr != nil {
		log.Error("Could not fetch template", appErr)
		return nil, appErr
	}

	if appErr := templates.NewUpdater(api).Update(ctx, evt.Repository, evt.Number, text); appErr != nil {
		log.Error("Could not update pull request body", appErr)
		return nil, appErr
	}

	path := templates.TemplatePath(prefix)
	log.Infof("Applied template %s", path)
	return &TemplateResult{
		Repository: evt.Repository,
		Number:     evt.Number,
		Prefix:     prefix,
		Path:       path,
	}, nil
}

// InstallationResult summarizes an installation event
type InstallationResult struct {
	Targets  []models.RepositoryRef `json:"targets"`
	Skipped  []installation.Skipped `json:"skipped,omitempty"`
	Outcomes []bootstrap.Outcome    `json:"outcomes"`
}

// Succeeded counts repositories that ended up with a setup pull request
func (r *InstallationResult) Succeeded() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Succeeded() {
			n++
		}
	}
	return n
}

// HandleInstallation bootstraps every repository an installation event
// covers, one after another. Per-repository failures are recorded in the
// outcomes and never returned as an error.
func (a *App) HandleInstallation(ctx context.Context, deliveryID string, payload models.InstallationWebhookPayload) (*InstallationResult, *errors.AppError) {
	installationID := payload.InstallationID()
	log := a.log.With("installation", installationID)

	variant, appErr := installation.FromWebhook(payload)
	if appErr != nil {
		log.WarnErr("Nothing to bootstrap", appErr)
		return nil, appErr
	}

	targets, skipped, appErr := installation.Normalize(variant)
	if appErr != nil {
		log.WarnErr("Nothing to bootstrap", appErr)
		return nil, appErr
	}
	for _, s := range skipped {
		log.WarnErr("Skipping repository", s.Err)
	}

	result := &InstallationResult{Targets: targets, Skipped: skipped, Outcomes: []bootstrap.Outcome{}}
	if len(targets) == 0 {
		log.Warn("No repository with a resolvable owner")
		return result, nil
	}

	api, err := a.clients.ForInstallation(ctx, installationID)
	if err != nil {
		appErr := errors.RemoteFailure(err, "Failed to authenticate as installation")
		log.Error("Could not get installation client", appErr)
		return nil, appErr
	}

	log.Infof("Bootstrapping %d repositories", len(targets))
	result.Outcomes = bootstrap.New(api, a.source, log).BootstrapAll(ctx, targets)

	for _, outcome := range result.Outcomes {
		a.report(ctx, log, deliveryID, installationID, outcome)
	}

	log.Infof("Bootstrap batch finished: %d of %d repositories succeeded", result.Succeeded(), len(result.Outcomes))
	return result, nil
}

// report stores and publishes one outcome. Failures are logged only.
func (a *App) report(ctx context.Context, log *logger.Logger, deliveryID string, installationID int64, outcome bootstrap.Outcome) {
	if a.recorder != nil {
		if err := a.recorder.RecordOutcome(ctx, deliveryID, outcome); err != nil {
			log.Error("Failed to record bootstrap outcome", err)
		}
	}

	msg := events.OutcomeMessage{
		DeliveryID:     deliveryID,
		InstallationID: installationID,
		Succeeded:      outcome.Succeeded(),
		Outcome:        outcome,
		PublishedAt:    a.now().UTC(),
	}
	if err := a.publisher.PublishOutcome(ctx, msg); err != nil {
		log.Error("Failed to publish bootstrap outcome", err)
	}
}
