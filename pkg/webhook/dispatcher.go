// Package webhook fans bus events out to configured notification targets
// with at-least-once delivery and bounded exponential-backoff retries.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/qaforge/qaforge/pkg/events"
	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/storage"
)

const (
	// maxAttempts bounds the delivery attempt chain.
	maxAttempts = 3

	// backoffBase is the first retry delay; it doubles per attempt with the
	// exponent capped at 5.
	backoffBase = 30 * time.Second

	// responseBodyLimit is how much of the target's response is persisted.
	responseBodyLimit = 1000
)

// Dispatcher consumes bus events, creates deliveries for matching webhook
// configs, and drives the delivery attempt chain.
type Dispatcher struct {
	webhooks   storage.WebhookRepository
	deliveries storage.WebhookDeliveryRepository
	mail       MailGateway
	client     *http.Client
	clock      storage.Clock
	ids        storage.IDGenerator
	logger     *slog.Logger
}

// NewDispatcher creates a webhook dispatcher. client and mail may be nil;
// defaults are a 30s-timeout HTTP client and the logging mail gateway.
func NewDispatcher(webhooks storage.WebhookRepository, deliveries storage.WebhookDeliveryRepository, mail MailGateway, client *http.Client, clock storage.Clock, ids storage.IDGenerator) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if mail == nil {
		mail = NewLogMailGateway()
	}
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &Dispatcher{
		webhooks:   webhooks,
		deliveries: deliveries,
		mail:       mail,
		client:     client,
		clock:      clock,
		ids:        ids,
		logger:     slog.Default().With("component", "webhook-dispatcher"),
	}
}

// Run consumes events until ctx is cancelled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			d.HandleEvent(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}

// RunScheduler periodically retries due deliveries until ctx is cancelled.
func (d *Dispatcher) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.ProcessDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// HandleEvent creates and attempts one delivery per matching active webhook.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt events.Event) {
	configs, err := d.webhooks.ListActive(ctx)
	if err != nil {
		d.logger.Error("Failed to list webhooks", "error", err)
		return
	}

	for _, cfg := range configs {
		eventType, ok := matchEvent(cfg, evt)
		if !ok {
			continue
		}
		payload, err := BuildPayload(cfg.Type, eventType, evt)
		if err != nil {
			d.logger.Error("Failed to build webhook payload",
				"webhook", cfg.Name, "event", eventType, "error", err)
			continue
		}

		delivery := &models.WebhookDelivery{
			ID:        d.ids.NewID(),
			WebhookID: cfg.ID,
			EventType: eventType,
			Payload:   payload,
			Status:    models.DeliveryPending,
			CreatedAt: d.clock.Now(),
		}
		if err := d.deliveries.Create(ctx, delivery); err != nil {
			d.logger.Error("Failed to persist delivery", "webhook", cfg.Name, "error", err)
			continue
		}
		d.attempt(ctx, cfg, delivery)
	}
}

// ProcessDue retries RETRYING deliveries whose nextRetryAt has passed.
func (d *Dispatcher) ProcessDue(ctx context.Context) {
	due, err := d.deliveries.ListDue(ctx, d.clock.Now())
	if err != nil {
		d.logger.Error("Failed to list due deliveries", "error", err)
		return
	}
	for _, delivery := range due {
		cfg, err := d.webhooks.Get(ctx, delivery.WebhookID)
		if err != nil {
			d.logger.Error("Webhook config missing for due delivery",
				"delivery_id", delivery.ID, "webhook_id", delivery.WebhookID, "error", err)
			continue
		}
		d.attempt(ctx, cfg, delivery)
	}
}

// matchEvent maps a bus event to the webhook event type cfg should receive.
// A failed run prefers RUN_FAILED when the config subscribes to it, so a
// config subscribed to both never receives two deliveries for one run.
func matchEvent(cfg *models.WebhookConfig, evt events.Event) (models.WebhookEvent, bool) {
	switch payload := evt.Payload.(type) {
	case events.RunCompletedPayload:
		failed := payload.Status != models.RunStatusPassed
		if failed && cfg.SubscribesTo(models.WebhookEventRunFailed) {
			return models.WebhookEventRunFailed, true
		}
		if cfg.SubscribesTo(models.WebhookEventRunCompleted) {
			return models.WebhookEventRunCompleted, true
		}
	case events.CoverageBreachPayload:
		if cfg.SubscribesTo(models.WebhookEventCoverageThreshold) {
			return models.WebhookEventCoverageThreshold, true
		}
	}
	return "", false
}

// attempt performs one delivery attempt and persists the outcome.
func (d *Dispatcher) attempt(ctx context.Context, cfg *models.WebhookConfig, delivery *models.WebhookDelivery) {
	now := d.clock.Now()
	delivery.AttemptCount++
	delivery.LastAttemptAt = &now
	delivery.NextRetryAt = nil

	status, body, err := d.send(ctx, cfg, delivery.Payload)
	if status != 0 {
		delivery.ResponseStatus = &status
		delivery.ResponseBody = truncate(body, responseBodyLimit)
	}

	switch {
	case err == nil && (status == 0 || (status >= 200 && status < 300)):
		delivery.Status = models.DeliverySuccess
		delivery.ErrorMessage = ""
		delivery.CompletedAt = &now
	case delivery.AttemptCount < maxAttempts:
		delivery.Status = models.DeliveryRetrying
		next := now.Add(backoffDelay(delivery.AttemptCount))
		delivery.NextRetryAt = &next
		delivery.ErrorMessage = attemptError(status, err)
	default:
		delivery.Status = models.DeliveryFailed
		delivery.ErrorMessage = attemptError(status, err)
		delivery.CompletedAt = &now
	}

	if err := d.deliveries.Update(ctx, delivery); err != nil {
		d.logger.Error("Failed to persist delivery outcome", "delivery_id", delivery.ID, "error", err)
	}
	d.logger.Info("Webhook delivery attempt",
		"webhook", cfg.Name, "event", delivery.EventType,
		"attempt", delivery.AttemptCount, "status", delivery.Status)
}

// send performs the type-specific transmission. The returned status is 0 for
// email deliveries and transport failures.
func (d *Dispatcher) send(ctx context.Context, cfg *models.WebhookConfig, payload string) (int, string, error) {
	if cfg.Type == models.WebhookTypeEmail {
		subject := fmt.Sprintf("qaforge notification: %s", cfg.Name)
		if err := d.mail.Send(ctx, cfg.URL, subject, payload); err != nil {
			return 0, "", fmt.Errorf("mail gateway: %w", err)
		}
		return 0, "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, strings.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range cfg.Headers {
		req.Header.Set(name, value)
	}
	if cfg.Secret != "" {
		req.Header.Set("X-Signature", Sign(cfg.Secret, payload))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit+1))
	return resp.StatusCode, string(body), nil
}

// Sign computes the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// backoffDelay returns the wait before retry n (1-indexed attempt count):
// 30s doubling per attempt, exponent capped at 5.
func backoffDelay(attempt int) time.Duration {
	exp := attempt
	if exp > 5 {
		exp = 5
	}
	return backoffBase * (1 << exp)
}

func attemptError(status int, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("target returned HTTP %d", status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
