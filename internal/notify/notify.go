// Package notify provides the outbound side-effect Sender a graph's
// f_on_save hook drives: best-effort notification that
// a node's value was just written. LogSender serves local dev,
// ResendSender staging/production; NewSender picks by ENV.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Sender delivers a notification about a node's newly-saved value.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs instead of sending — used in ENV=local so f_on_save
// hooks are exercisable without real credentials.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("f_on_save notification (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends via the Resend API — used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, a ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return NewLogSender(logger)
	}
	return NewResendSender(apiKey, from)
}
