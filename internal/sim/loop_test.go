package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/the-cubic-cat/sfera/internal/physics"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	"github.com/the-cubic-cat/sfera/logging/lifecycle"
)

type recordingExecutor struct {
	mu    sync.Mutex
	lines []string
	fail  map[string]error
}

func (e *recordingExecutor) Execute(_ context.Context, line string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, line)
	if err := e.fail[line]; err != nil {
		return "", err
	}
	return "ok " + line, nil
}

func (e *recordingExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.lines...)
}

func newTestLoop(t *testing.T, cfg LoopConfig, hooks LoopHooks, exec Executor, pub logging.Publisher) *Loop {
	t.Helper()
	engine := physics.NewEngine(world.New(), physics.DefaultConfig(), physics.Deps{})
	loop := NewLoop(engine, exec, nil, cfg, hooks, Deps{Publisher: pub})
	if loop == nil {
		t.Fatalf("expected loop")
	}
	return loop
}

func TestSubmitRunsOnLoopGoroutine(t *testing.T) {
	exec := &recordingExecutor{}
	loop := newTestLoop(t, DefaultLoopConfig(), LoopHooks{}, exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	out, err := loop.Submit(ctx, SourceConsole, "balls get")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok balls get" {
		t.Fatalf("expected executor output, got %q", out)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected loop to stop")
	}
}

func TestExecutePendingPreservesOrder(t *testing.T) {
	exec := &recordingExecutor{}
	loop := newTestLoop(t, DefaultLoopConfig(), LoopHooks{}, exec, nil)
	for _, line := range []string{"one", "two", "three"} {
		if ok, reason := loop.Enqueue(Command{Source: SourceScript, Line: line}); !ok {
			t.Fatalf("expected enqueue to succeed, got %s", reason)
		}
	}
	if n := loop.ExecutePending(context.Background()); n != 3 {
		t.Fatalf("expected 3 commands executed, got %d", n)
	}
	got := exec.executed()
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("unexpected execution order %v", got)
	}
	if loop.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", loop.Pending())
	}
}

func TestEnqueueEnforcesLimits(t *testing.T) {
	var dropped []string
	hooks := LoopHooks{OnCommandDrop: func(reason string, _ Command) { dropped = append(dropped, reason) }}
	loop := newTestLoop(t, LoopConfig{CommandCapacity: 3, PerSourceLimit: 2}, hooks, &recordingExecutor{}, nil)

	loop.Enqueue(Command{Source: "a", Line: "1"})
	loop.Enqueue(Command{Source: "a", Line: "2"})
	if ok, reason := loop.Enqueue(Command{Source: "a", Line: "3"}); ok || reason != CommandRejectQueueLimit {
		t.Fatalf("expected per-source limit, got ok=%v reason=%s", ok, reason)
	}
	if ok, _ := loop.Enqueue(Command{Source: "b", Line: "4"}); !ok {
		t.Fatalf("expected other source to fit")
	}
	if ok, reason := loop.Enqueue(Command{Source: "c", Line: "5"}); ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected full queue, got ok=%v reason=%s", ok, reason)
	}
	if len(dropped) != 2 {
		t.Fatalf("expected two drop notifications, got %v", dropped)
	}

	loop.ExecutePending(context.Background())
	if ok, _ := loop.Enqueue(Command{Source: "a", Line: "6"}); !ok {
		t.Fatalf("expected per-source budget to reset after drain")
	}
}

func TestFailedCommandPublishesRejection(t *testing.T) {
	var mu sync.Mutex
	var events []logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, e logging.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	exec := &recordingExecutor{fail: map[string]error{"balls delete 7": world.ErrBallNotFound}}
	var results []Result
	hooks := LoopHooks{AfterCommand: func(_ Command, r Result) { results = append(results, r) }}
	loop := newTestLoop(t, DefaultLoopConfig(), hooks, exec, pub)

	loop.Enqueue(Command{Source: SourceConsole, Line: "balls delete 7"})
	loop.ExecutePending(context.Background())

	if len(results) != 1 || !errors.Is(results[0].Err, world.ErrBallNotFound) {
		t.Fatalf("expected ErrBallNotFound result, got %+v", results)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Type != lifecycle.EventCommandRejected {
		t.Fatalf("expected command_rejected event, got %+v", events)
	}
	payload, ok := events[0].Payload.(lifecycle.CommandRejectedPayload)
	if !ok || payload.Kind != "validation" || payload.Source != SourceConsole {
		t.Fatalf("unexpected payload %+v", events[0].Payload)
	}
}

func TestSubmitRejectsBlankLines(t *testing.T) {
	loop := newTestLoop(t, DefaultLoopConfig(), LoopHooks{}, &recordingExecutor{}, nil)
	if _, err := loop.Submit(context.Background(), SourceConsole, "   "); !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("expected ErrCommandRejected, got %v", err)
	}
}

func TestRunRejectsCommandsLeftAtShutdown(t *testing.T) {
	loop := newTestLoop(t, DefaultLoopConfig(), LoopHooks{}, &recordingExecutor{}, nil)
	reply := make(chan Result, 1)
	loop.Enqueue(Command{Source: SourceConsole, Line: "time get", reply: reply})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case res := <-reply:
		if !errors.Is(res.Err, ErrCommandRejected) {
			t.Fatalf("expected rejection, got %+v", res)
		}
	default:
		t.Fatalf("expected staged command to be answered")
	}
}

func TestSubmitAfterShutdownIsRejected(t *testing.T) {
	loop := newTestLoop(t, DefaultLoopConfig(), LoopHooks{}, &recordingExecutor{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop.Run(ctx)

	_, err := loop.Submit(context.Background(), SourceConsole, "time get")
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("expected rejection after shutdown, got %v", err)
	}
	if ok, reason := loop.Enqueue(Command{Line: "time get"}); ok || reason != CommandRejectStopped {
		t.Fatalf("expected %q, got %v %q", CommandRejectStopped, ok, reason)
	}
}
