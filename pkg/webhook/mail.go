package webhook

import (
	"context"
	"log/slog"
)

// MailGateway is the port EMAIL webhooks deliver through. The address comes
// from the webhook config's URL field.
type MailGateway interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailGateway logs outgoing mail instead of sending it. Used when no real
// gateway is configured.
type LogMailGateway struct {
	logger *slog.Logger
}

// NewLogMailGateway creates the logging gateway.
func NewLogMailGateway() *LogMailGateway {
	return &LogMailGateway{logger: slog.Default().With("component", "mail-gateway")}
}

// Send logs the message.
func (g *LogMailGateway) Send(ctx context.Context, to, subject, body string) error {
	g.logger.Info("Mail notification", "to", to, "subject", subject, "bytes", len(body))
	return nil
}
