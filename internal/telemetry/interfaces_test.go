package telemetry

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/the-cubic-cat/sfera/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestEventLogger(t *testing.T) {
	var events []logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		events = append(events, event)
	})
	logger := EventLogger(pub, logging.CategoryPhysics)
	logger.Printf("step %d", 3)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventDiagnostic || events[0].Payload != "step 3" || events[0].Category != logging.CategoryPhysics {
		t.Fatalf("unexpected event %+v", events[0])
	}

	EventLogger(nil, "").Printf("ignored")
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("test_counter", 2)
	adapter.Store("test_counter", 5)
	adapter.Add("test_counter", 3)

	snapshot := metrics.Snapshot()
	if got := snapshot["test_counter"]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	// Ensure nil metrics do not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}
