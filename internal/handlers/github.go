package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

// Webhook response statuses
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusIgnored   = "ignored"
	StatusDuplicate = "duplicate"
	StatusPong      = "pong"
)

// GitHubWebhook handles GitHub App webhook deliveries. Once a delivery is
// authenticated and decoded it is always acknowledged with 200, whatever
// happened while processing it.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeAppError(w, errors.New(errors.ErrCodeMethodNotAllowed, "Webhook deliveries must use POST"))
		return
	}

	// Read the raw body for signature verification
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.webhook.MaxBodyBytes))
	if err != nil {
		h.writeAppError(w, errors.InvalidRequest("Failed to read request body: "+err.Error()))
		return
	}

	if h.webhook.Secret == "" {
		h.log.Warn("GitHub webhook secret not configured, skipping signature verification")
	} else {
		headerSignature := r.Header.Get(HeaderSignature)
		if headerSignature == "" {
			h.log.Warn("GitHub webhook received without signature header")
			h.writeAppError(w, errors.New(errors.ErrCodeUnauthorized, fmt.Sprintf("Missing %s header", HeaderSignature)))
			return
		}
		if !h.verifyWebhookSignature(body, headerSignature) {
			h.log.Warn("Invalid GitHub webhook signature")
			h.writeAppError(w, errors.New(errors.ErrCodeUnauthorized, "Invalid webhook signature"))
			return
		}
	}

	event := r.Header.Get(HeaderEvent)
	if event == "" {
		h.writeAppError(w, errors.InvalidRequest(fmt.Sprintf("Missing %s header", HeaderEvent)))
		return
	}
	deliveryID := r.Header.Get(HeaderDelivery)

	log := h.log.With("event", event).With("delivery", deliveryID)
	log.Info("GitHub webhook received")

	response := &models.WebhookResponse{Event: event, DeliveryID: deliveryID}

	// GitHub may close the connection before processing finishes
	ctx := context.WithoutCancel(r.Context())

	var process func() (interface{}, *errors.AppError)

	switch event {
	case models.GitHubEventPing:
		response.Status = StatusPong

	case models.GitHubEventPullRequest:
		var payload models.PullRequestWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			h.writeAppError(w, errors.InvalidRequest("Invalid webhook payload: "+err.Error()))
			return
		}
		response.Action = payload.Action
		if payload.Action != "opened" {
			response.Status = StatusIgnored
			break
		}

		installationID := int64(0)
		if payload.Installation != nil {
			installationID = payload.Installation.ID
		}
		process = func() (interface{}, *errors.AppError) {
			return h.events.HandlePullRequestOpened(ctx, installationID, payload.OpenedEvent())
		}

	case models.GitHubEventInstallation, models.GitHubEventInstallationRepositories:
		var payload models.InstallationWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			h.writeAppError(w, errors.InvalidRequest("Invalid webhook payload: "+err.Error()))
			return
		}
		response.Action = payload.Action
		if !bootstrapsRepositories(event, payload.Action) {
			response.Status = StatusIgnored
			break
		}

		process = func() (interface{}, *errors.AppError) {
			return h.events.HandleInstallation(ctx, deliveryID, payload)
		}

	default:
		response.Status = StatusIgnored
	}

	// Only deliveries that will change something are recorded, and only
	// once their payload decoded
	if process != nil {
		if h.seenBefore(ctx, log, deliveryID, event) {
			response.Status = StatusDuplicate
		} else {
			h.finish(response, process)
		}
	}

	log.Infof("GitHub webhook %s", response.Status)
	h.writeJSON(w, response, http.StatusOK)
}

// bootstrapsRepositories reports whether an installation-class delivery
// grants the app new repositories
func bootstrapsRepositories(event, action string) bool {
	switch event {
	case models.GitHubEventInstallation:
		return action == "created"
	case models.GitHubEventInstallationRepositories:
		return action == "added"
	}
	return false
}

// seenBefore records the delivery id and reports whether it was already
// recorded. A ledger failure never blocks processing.
func (h *Handler) seenBefore(ctx context.Context, log *logger.Logger, deliveryID, event string) bool {
	if deliveryID == "" {
		return false
	}
	fresh, err := h.store.MarkDelivery(ctx, deliveryID, event)
	if err != nil {
		log.Error("Failed to record delivery, processing anyway", err)
		return false
	}
	if !fresh {
		log.Info("Duplicate delivery ignored")
	}
	return !fresh
}

// finish runs the flow and fills in the response from its result
func (h *Handler) finish(response *models.WebhookResponse, process func() (interface{}, *errors.AppError)) {
	result, appErr := process()
	if appErr != nil {
		response.Status = StatusSkipped
		response.Message = appErr.Error()
		response.Data = map[string]string{"code": string(appErr.Code)}
		return
	}
	response.Status = StatusProcessed
	response.Data = result
}
