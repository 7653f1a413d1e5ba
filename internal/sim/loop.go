// Package sim serialises world edits onto the physics goroutine: commands
// from every surface are staged in a bounded queue and executed between
// physics steps.
package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/the-cubic-cat/sfera/internal/physics"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	"github.com/the-cubic-cat/sfera/logging/lifecycle"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to
	// per-source queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the command queue is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectEmpty indicates a blank command line.
	CommandRejectEmpty = "empty"
	// CommandRejectStopped indicates the loop has exited.
	CommandRejectStopped = "stopped"
)

const (
	metricCommandsExecuted = "sim_commands_executed_total"
	metricCommandsFailed   = "sim_commands_failed_total"
)

var ErrCommandRejected = errors.New("command_rejected")

// Executor runs a single command line on the physics goroutine.
type Executor interface {
	Execute(ctx context.Context, line string) (string, error)
}

// LoopConfig tunes the command queue.
type LoopConfig struct {
	CommandCapacity int
	PerSourceLimit  int
	WarningStep     int
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		CommandCapacity: 64,
		PerSourceLimit:  32,
		WarningStep:     16,
	}
}

// LoopHooks observe queue pressure and command outcomes.
type LoopHooks struct {
	OnQueueWarning func(length int)
	OnCommandDrop  func(reason string, cmd Command)
	AfterCommand   func(cmd Command, result Result)
	AfterStep      func(physics.StepResult)
}

// Loop owns the physics goroutine. Only commands executed by the loop may
// edit the world.
type Loop struct {
	engine     *physics.Engine
	exec       Executor
	renderTime func() simtime.Time
	queue      *commandQueue
	hooks      LoopHooks
	config     LoopConfig
	deps       Deps

	dropMu     sync.Mutex
	dropCounts map[string]uint64
}

// NewLoop wires the engine to an executor. renderTime reports the render
// cursor the run-ahead budget is measured from; nil means zero.
func NewLoop(engine *physics.Engine, exec Executor, renderTime func() simtime.Time, cfg LoopConfig, hooks LoopHooks, deps Deps) *Loop {
	if engine == nil || exec == nil {
		return nil
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = DefaultLoopConfig().CommandCapacity
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	return &Loop{
		engine:     engine,
		exec:       exec,
		renderTime: renderTime,
		queue:      newCommandQueue(cfg.CommandCapacity, cfg.PerSourceLimit, deps.Metrics),
		hooks:      hooks,
		config:     cfg,
		deps:       deps,
		dropCounts: make(map[string]uint64),
	}
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.queue.depth()
}

// Enqueue stages a command, enforcing per-source throttling and capacity
// limits.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.deps.Clock.Now()
	}
	depth, reason := l.queue.push(cmd)
	if reason != "" {
		l.reportDrop(reason, cmd)
		return false, reason
	}
	if step := l.config.WarningStep; step > 0 && depth >= step && depth%step == 0 {
		l.warnQueue(depth)
	}
	return true, ""
}

// Submit stages line and waits for the physics goroutine to execute it.
func (l *Loop) Submit(ctx context.Context, source, line string) (string, error) {
	if l == nil {
		return "", fmt.Errorf("%s: %w", CommandRejectQueueFull, ErrCommandRejected)
	}
	if strings.TrimSpace(line) == "" {
		return "", fmt.Errorf("%s: %w", CommandRejectEmpty, ErrCommandRejected)
	}
	reply := make(chan Result, 1)
	ok, reason := l.Enqueue(Command{Source: source, Line: line, reply: reply})
	if !ok {
		return "", fmt.Errorf("%s: %w", reason, ErrCommandRejected)
	}
	select {
	case res := <-reply:
		return res.Output, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ExecutePending runs every staged command in FIFO order and returns how
// many ran. It must be called from the physics goroutine.
func (l *Loop) ExecutePending(ctx context.Context) int {
	if l == nil {
		return 0
	}
	commands := l.queue.drain(l.deps.Clock.Now())
	for _, cmd := range commands {
		out, err := l.exec.Execute(ctx, cmd.Line)
		result := Result{Output: out, Err: err}
		l.record(ctx, cmd, result)
		if cmd.reply != nil {
			cmd.reply <- result
		}
		if l.hooks.AfterCommand != nil {
			l.hooks.AfterCommand(cmd, result)
		}
	}
	return len(commands)
}

// Run drives the physics engine until ctx is cancelled, executing staged
// commands before every iteration.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := l.engine.Loop(ctx, physics.LoopHooks{
		RenderTime: l.renderTime,
		BeforeStep: func() { l.ExecutePending(ctx) },
		AfterStep:  l.hooks.AfterStep,
	})
	for _, cmd := range l.queue.stop(l.deps.Clock.Now()) {
		if cmd.reply != nil {
			cmd.reply <- Result{Err: fmt.Errorf("loop stopped: %w", ErrCommandRejected)}
		}
	}
	return err
}

func (l *Loop) record(ctx context.Context, cmd Command, result Result) {
	metrics := l.deps.Metrics
	if result.Err == nil {
		if metrics != nil {
			metrics.Add(metricCommandsExecuted, 1)
		}
		return
	}
	if metrics != nil {
		metrics.Add(metricCommandsFailed, 1)
	}
	kind := world.KindOf(result.Err)
	if kind == world.KindInvariant {
		l.deps.Logger.Printf("[invariant] command %q from %s: %v", cmd.Line, cmd.Source, result.Err)
	}
	lifecycle.CommandRejected(ctx, l.deps.Publisher, int64(l.engine.SimulationTime()), lifecycle.CommandRejectedPayload{
		Source: cmd.Source,
		Line:   cmd.Line,
		Reason: result.Err.Error(),
		Kind:   kind.String(),
	}, nil)
}

func (l *Loop) warnQueue(length int) {
	if l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(length)
	}
}

func (l *Loop) reportDrop(reason string, cmd Command) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if cmd.Source == "" || reason == CommandRejectStopped {
		return
	}
	l.dropMu.Lock()
	l.dropCounts[cmd.Source]++
	count := l.dropCounts[cmd.Source]
	l.dropMu.Unlock()
	if count&(count-1) == 0 {
		l.deps.Logger.Printf(
			"[backpressure] dropping command source=%s reason=%s count=%d limit=%d",
			cmd.Source,
			reason,
			count,
			l.config.PerSourceLimit,
		)
	}
}
