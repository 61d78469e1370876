package models

import "time"

// WebhookType selects the outgoing payload envelope.
type WebhookType string

// Webhook types.
const (
	WebhookTypeSlack   WebhookType = "SLACK"
	WebhookTypeGeneric WebhookType = "GENERIC"
	WebhookTypeEmail   WebhookType = "EMAIL"
)

// WebhookEvent is an event type a webhook may subscribe to.
type WebhookEvent string

// Subscribable webhook events.
const (
	WebhookEventRunCompleted      WebhookEvent = "RUN_COMPLETED"
	WebhookEventRunFailed         WebhookEvent = "RUN_FAILED"
	WebhookEventCoverageThreshold WebhookEvent = "COVERAGE_THRESHOLD_BREACH"
)

// WebhookConfig describes one notification target.
type WebhookConfig struct {
	ID         string            `json:"id"`
	Name       string            `json:"name" yaml:"name"`
	URL        string            `json:"url" yaml:"url"`
	Type       WebhookType       `json:"type" yaml:"type"`
	Events     []WebhookEvent    `json:"events" yaml:"events"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers"`
	Secret     string            `json:"secret,omitempty" yaml:"secret"` // HMAC-SHA256 signing key
	Active     bool              `json:"active" yaml:"active"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SubscribesTo reports whether the config is active and subscribed to event.
func (c *WebhookConfig) SubscribesTo(event WebhookEvent) bool {
	if !c.Active {
		return false
	}
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Validate checks the webhook config before registration.
func (c *WebhookConfig) Validate() error {
	if c.Name == "" {
		return NewValidationError("name", "must not be blank")
	}
	if c.URL == "" {
		return NewValidationError("url", "must not be blank")
	}
	switch c.Type {
	case WebhookTypeSlack, WebhookTypeGeneric, WebhookTypeEmail:
	default:
		return NewValidationError("type", "must be SLACK, GENERIC, or EMAIL")
	}
	for _, e := range c.Events {
		switch e {
		case WebhookEventRunCompleted, WebhookEventRunFailed, WebhookEventCoverageThreshold:
		default:
			return NewValidationError("events", "unknown webhook event "+string(e))
		}
	}
	return nil
}

// DeliveryStatus is the state of one webhook delivery attempt chain.
type DeliveryStatus string

// Delivery states.
const (
	DeliveryPending  DeliveryStatus = "PENDING"
	DeliverySuccess  DeliveryStatus = "SUCCESS"
	DeliveryFailed   DeliveryStatus = "FAILED"
	DeliveryRetrying DeliveryStatus = "RETRYING"
)

// WebhookDelivery tracks at-least-once delivery of one event to one webhook.
type WebhookDelivery struct {
	ID             string         `json:"id"`
	WebhookID      string         `json:"webhook_id"`
	EventType      WebhookEvent   `json:"event_type"`
	Payload        string         `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	ResponseStatus *int           `json:"response_status,omitempty"`
	ResponseBody   string         `json:"response_body,omitempty"` // truncated to 1000 chars
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}
