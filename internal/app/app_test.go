package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDefaultSceneIsValid(t *testing.T) {
	w := world.New()
	if err := DefaultScene(w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bounds, ok := w.Bounds()
	if !ok || bounds != geom.R(-5, -5, 10, 10) {
		t.Fatalf("expected 10x10 bounds, got %+v %v", bounds, ok)
	}
	balls := w.Balls()
	if len(balls) != 2 {
		t.Fatalf("expected two balls, got %d", len(balls))
	}
	if !balls[0].HasTag("red") || !balls[1].HasTag("green") {
		t.Fatalf("expected red and green balls, got %v %v", balls[0].Tags(), balls[1].Tags())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	logger := &recordingLogger{}
	cfg := ApplyEnv(DefaultConfig(), env(map[string]string{
		"SFERA_TIMESTEP":       "1ms",
		"SFERA_RUNAHEAD":       "0.5s",
		"SFERA_MAX_ITERATIONS": "40",
		"SFERA_MARGIN":         "0.001",
		"SFERA_ADDR":           "127.0.0.1:9000",
		"SFERA_LOG_SINKS":      "json, console, physics",
		"SFERA_LOG_LEVEL":      "WARN",
		"ENABLE_PPROF_TRACE":   "true",
	}), logger)

	if cfg.Physics.Timestep != simtime.MS(1) || cfg.Physics.Runahead != simtime.MS(500) {
		t.Fatalf("expected 1ms step and 500ms runahead, got %v %v", cfg.Physics.Timestep, cfg.Physics.Runahead)
	}
	if cfg.Physics.MaxCollisionIterations != 40 || cfg.Physics.CollisionErrMargin != 0.001 {
		t.Fatalf("unexpected search settings %+v", cfg.Physics)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected address override, got %q", cfg.Addr)
	}
	if len(cfg.Logging.EnabledSinks) != 3 || !cfg.Logging.HasSink(logging.SinkPhysics) {
		t.Fatalf("expected json, console and physics sinks, got %v", cfg.Logging.EnabledSinks)
	}
	if cfg.Logging.MinimumSeverity != logging.SeverityWarn {
		t.Fatalf("expected warn level, got %v", cfg.Logging.MinimumSeverity)
	}
	if !cfg.Observability.EnablePprofTrace {
		t.Fatalf("expected pprof enabled")
	}
	if out := logger.joined(); out != "" {
		t.Fatalf("expected no warnings, got %q", out)
	}
}

func TestApplyEnvIgnoresInvalidValues(t *testing.T) {
	logger := &recordingLogger{}
	def := DefaultConfig()
	cfg := ApplyEnv(def, env(map[string]string{
		"SFERA_TIMESTEP":       "soon",
		"SFERA_MAX_ITERATIONS": "-3",
		"SFERA_MARGIN":         "abc",
		"SFERA_ADDR":           "-",
		"ENABLE_PPROF_TRACE":   "maybe",
		"SFERA_LOG_LEVEL":      "loud",
	}), logger)

	if cfg.Physics != def.Physics {
		t.Fatalf("expected physics defaults kept, got %+v", cfg.Physics)
	}
	if cfg.Addr != "" {
		t.Fatalf("expected \"-\" to disable HTTP, got %q", cfg.Addr)
	}
	out := logger.joined()
	for _, key := range []string{"SFERA_TIMESTEP", "SFERA_MAX_ITERATIONS", "SFERA_MARGIN", "ENABLE_PPROF_TRACE", "SFERA_LOG_LEVEL"} {
		if !strings.Contains(out, "invalid "+key) {
			t.Fatalf("expected warning for %s, got %q", key, out)
		}
	}
}

func TestRunHeadlessConsole(t *testing.T) {
	r, w := io.Pipe()
	out := &syncBuffer{}
	cfg := DefaultConfig()
	cfg.Addr = ""
	cfg.Headless = true
	cfg.Logging.EnabledSinks = nil
	cfg.Logger = &recordingLogger{}
	cfg.Input = r
	cfg.Output = out

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	fmt.Fprintln(w, "balls get")
	fmt.Fprintln(w, "balls delete 99")
	fmt.Fprintln(w, "quit")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("expected quit to stop the run")
	}
	w.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "error:") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := out.String()
	if strings.Count(got, "ID:") != 2 {
		t.Fatalf("expected both scene balls listed, got %q", got)
	}
	if !strings.Contains(got, "error:") {
		t.Fatalf("expected failed delete to be reported, got %q", got)
	}
}

func TestRunRunsStartupScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "setup.txt")
	body := "balls clear\nballs new radius=0.25 position=0;0\nquit\n"
	if err := os.WriteFile(script, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Addr = ""
	cfg.Headless = true
	cfg.Script = script
	cfg.Logging.EnabledSinks = nil
	logger := &recordingLogger{}
	cfg.Logger = logger
	cfg.Input = strings.NewReader("")
	cfg.Output = io.Discard

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Run(ctx, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("expected the script's quit to stop the run")
	}
	if strings.Contains(logger.joined(), "startup script") {
		t.Fatalf("expected script to succeed, got %q", logger.joined())
	}
}
