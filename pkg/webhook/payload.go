package webhook

import (
	"encoding/json"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/qaforge/qaforge/pkg/events"
	"github.com/qaforge/qaforge/pkg/models"
)

// BuildPayload renders the outgoing body for one (webhook type, event) pair.
// Slack targets get a webhook-message envelope with Block Kit content,
// generic targets get a JSON event envelope, email targets get plain text.
func BuildPayload(whType models.WebhookType, eventType models.WebhookEvent, evt events.Event) (string, error) {
	switch whType {
	case models.WebhookTypeSlack:
		return buildSlackPayload(eventType, evt)
	case models.WebhookTypeEmail:
		return buildEmailBody(eventType, evt), nil
	default:
		return buildGenericPayload(eventType, evt)
	}
}

// genericEnvelope is the passthrough payload for GENERIC webhooks.
type genericEnvelope struct {
	Event     models.WebhookEvent `json:"event"`
	PackageID string              `json:"package_id,omitempty"`
	Timestamp string              `json:"timestamp"`
	Data      any                 `json:"data"`
}

func buildGenericPayload(eventType models.WebhookEvent, evt events.Event) (string, error) {
	payload, err := json.Marshal(genericEnvelope{
		Event:     eventType,
		PackageID: evt.PackageID,
		Timestamp: evt.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Data:      evt.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}
	return string(payload), nil
}

func buildSlackPayload(eventType models.WebhookEvent, evt events.Event) (string, error) {
	headline, detail := describeEvent(eventType, evt)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, "*"+headline+"*", false, false),
			nil, nil,
		),
	}
	if detail != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, detail, false, false),
			nil, nil,
		))
	}

	msg := goslack.WebhookMessage{
		Text:   headline,
		Blocks: &goslack.Blocks{BlockSet: blocks},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode slack payload: %w", err)
	}
	return string(payload), nil
}

func buildEmailBody(eventType models.WebhookEvent, evt events.Event) string {
	headline, detail := describeEvent(eventType, evt)
	if detail == "" {
		return headline + "\n"
	}
	return headline + "\n\n" + detail + "\n"
}

// describeEvent renders a human-readable headline and detail for the event.
func describeEvent(eventType models.WebhookEvent, evt events.Event) (headline, detail string) {
	switch payload := evt.Payload.(type) {
	case events.RunCompletedPayload:
		if eventType == models.WebhookEventRunFailed {
			headline = fmt.Sprintf(":x: Run failed: %s", payload.ScenarioName)
		} else {
			headline = fmt.Sprintf("Run %s: %s", payload.Status, payload.ScenarioName)
		}
		detail = fmt.Sprintf("%d passed, %d failed in %dms (run %s)",
			payload.PassedSteps, payload.FailedSteps, payload.DurationMs, payload.RunID)
	case events.CoverageBreachPayload:
		headline = fmt.Sprintf(":warning: Coverage %.1f%% below threshold %.1f%%",
			payload.CoveragePercentage, payload.Threshold)
		detail = fmt.Sprintf("package %s", payload.PackageID)
	default:
		headline = string(eventType)
	}
	return headline, detail
}
