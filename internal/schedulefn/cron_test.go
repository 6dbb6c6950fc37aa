package schedulefn_test

import (
	"context"
	"testing"
	"time"

	"github.com/ErlanBelekov/journey/internal/schedulefn"
	"github.com/ErlanBelekov/journey/internal/value"
)

func TestOnce_FiresAfterDelay(t *testing.T) {
	fn := schedulefn.Once(time.Minute)
	before := time.Now()

	outcome := fn(context.Background(), nil)
	if !outcome.IsOk() {
		t.Fatalf("expected ok outcome, got error: %v", outcome.Err)
	}

	fireAt := time.Unix(outcome.Value.IntValue(), 0)
	if !fireAt.After(before.Add(50 * time.Second)) {
		t.Errorf("fire time %v is not roughly a minute after %v", fireAt, before)
	}
}

func TestRecurring_InvalidCron_ReturnsError(t *testing.T) {
	_, err := schedulefn.Recurring("not a cron expression")
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestRecurring_NextFireIsInTheFuture(t *testing.T) {
	fn, err := schedulefn.Recurring("* * * * *")
	if err != nil {
		t.Fatalf("Recurring: %v", err)
	}

	before := time.Now()
	outcome := fn(context.Background(), map[string]value.Value{})
	if !outcome.IsOk() {
		t.Fatalf("expected ok outcome, got error: %v", outcome.Err)
	}

	fireAt := time.Unix(outcome.Value.IntValue(), 0)
	if !fireAt.After(before) {
		t.Errorf("next fire time %v is not after %v", fireAt, before)
	}
	if fireAt.Sub(before) > 61*time.Second {
		t.Errorf("next fire time %v is more than a minute out for a \"* * * * *\" schedule", fireAt)
	}
}
