package notify_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/journey/internal/notify"
)

func TestLogSender_NeverReturnsError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := notify.NewLogSender(logger)

	if err := s.Send(context.Background(), "ops@example.com", "node landed", "greeting = hi"); err != nil {
		t.Errorf("LogSender.Send returned an error: %v", err)
	}
}

func TestNewSender_Local_ReturnsLogSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := notify.NewSender("local", "", "", logger)

	if _, ok := s.(*notify.LogSender); !ok {
		t.Errorf("NewSender(\"local\", ...) = %T, want *LogSender", s)
	}
}

func TestNewSender_Production_ReturnsResendSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := notify.NewSender("production", "re_test_key", "noreply@example.com", logger)

	if _, ok := s.(*notify.ResendSender); !ok {
		t.Errorf("NewSender(\"production\", ...) = %T, want *ResendSender", s)
	}
}
