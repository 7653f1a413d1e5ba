// Package physics advances the world along its keyframed timeline,
// locating and resolving wall and ball contacts inside each timestep.
package physics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	loggingphysics "github.com/the-cubic-cat/sfera/logging/physics"
)

// CollisionErrorMarginHeuristic widens the cheap bounding-box pre-filter
// applied before exact pair distances are computed.
const CollisionErrorMarginHeuristic = 0.1

const (
	metricStepsTotal            = "physics_steps_total"
	metricSearchIterationsTotal = "physics_collision_search_iterations_total"
	metricSearchExhaustedTotal  = "physics_collision_search_exhausted_total"
	metricWallContactsTotal     = "physics_wall_contacts_total"
	metricPairContactsTotal     = "physics_pair_contacts_total"
	metricSimulationTimeNS      = "physics_simulation_time_ns"
)

// ErrInvalidSetting wraps every rejected setter value.
var ErrInvalidSetting = errors.New("invalid_physics_setting")

// Config tunes the engine. Zero values are replaced by DefaultConfig.
type Config struct {
	Timestep simtime.Time
	// CollisionErrMargin is the fraction of the larger radius within which
	// two surfaces count as touching.
	CollisionErrMargin     float64
	MaxCollisionIterations int
	// Runahead bounds how far simulation time may lead the render cursor.
	Runahead simtime.Time
	// IdleInterval is the wall-clock pause taken while the run-ahead budget
	// is exhausted.
	IdleInterval time.Duration
}

// DefaultConfig steps in 2 ms increments with a 1e-10 contact margin.
func DefaultConfig() Config {
	return Config{
		Timestep:               simtime.MS(2),
		CollisionErrMargin:     1e-10,
		MaxCollisionIterations: 100,
		Runahead:               simtime.MS(250),
		IdleInterval:           time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timestep <= 0 {
		c.Timestep = def.Timestep
	}
	if c.CollisionErrMargin < 0 || math.IsNaN(c.CollisionErrMargin) {
		c.CollisionErrMargin = def.CollisionErrMargin
	}
	if c.MaxCollisionIterations <= 0 {
		c.MaxCollisionIterations = def.MaxCollisionIterations
	}
	if c.Runahead < 0 {
		c.Runahead = def.Runahead
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = def.IdleInterval
	}
	return c
}

// Deps carries the shared infrastructure used by the engine.
type Deps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Engine owns the simulation clock. Step and Loop must be driven from a
// single goroutine; getters and setters are safe from any goroutine.
type Engine struct {
	world     *world.World
	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics

	mu  sync.RWMutex
	cfg Config

	simTime atomic.Int64

	energyMu sync.Mutex
	energy   *energyLog
}

// NewEngine binds an engine to w. It returns nil when w is nil.
func NewEngine(w *world.World, cfg Config, deps Deps) *Engine {
	if w == nil {
		return nil
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Engine{
		world:     w,
		logger:    logger,
		publisher: publisher,
		metrics:   deps.Metrics,
		cfg:       cfg.withDefaults(),
	}
}

// World returns the world the engine steps.
func (e *Engine) World() *world.World {
	if e == nil {
		return nil
	}
	return e.world
}

// Config returns a copy of the current settings.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Timestep is the simulated time covered by one Step.
func (e *Engine) Timestep() simtime.Time {
	return e.Config().Timestep
}

// SetTimestep rejects non-positive steps.
func (e *Engine) SetTimestep(t simtime.Time) error {
	if t <= 0 {
		return fmt.Errorf("timestep %s: %w", t, ErrInvalidSetting)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Timestep = t
	return nil
}

// Runahead is how far the simulation may lead the render cursor.
func (e *Engine) Runahead() simtime.Time {
	return e.Config().Runahead
}

// SetRunahead accepts zero, which holds the simulation at the render cursor.
func (e *Engine) SetRunahead(t simtime.Time) error {
	if t < 0 {
		return fmt.Errorf("runahead %s: %w", t, ErrInvalidSetting)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Runahead = t
	return nil
}

// MaxCollisionIterations caps the collision-time bisection.
func (e *Engine) MaxCollisionIterations() int {
	return e.Config().MaxCollisionIterations
}

// SetMaxCollisionIterations requires at least one iteration.
func (e *Engine) SetMaxCollisionIterations(n int) error {
	if n < 1 {
		return fmt.Errorf("max collision iterations %d: %w", n, ErrInvalidSetting)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.MaxCollisionIterations = n
	return nil
}

// CollisionErrMargin is the relaxed-contact tolerance as a fraction of the
// larger radius involved.
func (e *Engine) CollisionErrMargin() float64 {
	return e.Config().CollisionErrMargin
}

// SetCollisionErrMargin accepts any finite, non-negative fraction.
func (e *Engine) SetCollisionErrMargin(m float64) error {
	if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return fmt.Errorf("collision margin %v: %w", m, ErrInvalidSetting)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.CollisionErrMargin = m
	return nil
}

// SimulationTime is the instant up to which every ball's keyframes are
// resolved.
func (e *Engine) SimulationTime() simtime.Time {
	return simtime.Time(e.simTime.Load())
}

// StepResult summarizes one physics iteration.
type StepResult struct {
	Start      simtime.Time
	Time       simtime.Time
	Iterations int
	Exhausted  bool
	Walls      int
	Pairs      int
}

// Step advances the clock by one timestep, backdating to the first contact
// inside the step when there is one and resolving every contact found there.
func (e *Engine) Step() StepResult {
	cfg := e.Config()
	start := e.SimulationTime()
	end := start + cfg.Timestep

	search := e.findCollisionTime(start, end, cfg)
	result := StepResult{
		Start:      start,
		Time:       search.Time,
		Iterations: search.Iterations,
		Exhausted:  search.Exhausted,
	}
	if search.Contact {
		result.Walls = e.handleBoundsCollisions(search.Time, cfg)
		result.Pairs = e.handleBallCollisions(search.Time, cfg)
		if result.Walls+result.Pairs > 1 {
			loggingphysics.SimultaneousContacts(context.Background(), e.publisher, int64(search.Time), nil,
				loggingphysics.SimultaneousContactsPayload{Walls: result.Walls, Pairs: result.Pairs}, nil)
		}
	}
	if search.Exhausted {
		loggingphysics.CollisionSearchExhausted(context.Background(), e.publisher, int64(search.Time), loggingphysics.SearchExhaustedPayload{
			Iterations: search.Iterations,
			StepNS:     int64(search.Step),
			Margin:     cfg.CollisionErrMargin,
			Hint:       "consider a larger collision margin",
		}, nil)
	}

	e.simTime.Store(int64(search.Time))
	e.world.SetEndTime(search.Time)
	e.logEnergy(search.Time)
	e.recordStep(result)
	return result
}

func (e *Engine) recordStep(result StepResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.Add(metricStepsTotal, 1)
	e.metrics.Add(metricSearchIterationsTotal, uint64(result.Iterations))
	if result.Exhausted {
		e.metrics.Add(metricSearchExhaustedTotal, 1)
	}
	e.metrics.Add(metricWallContactsTotal, uint64(result.Walls))
	e.metrics.Add(metricPairContactsTotal, uint64(result.Pairs))
	if result.Time >= 0 {
		e.metrics.Store(metricSimulationTimeNS, uint64(result.Time))
	}
}

// Advance steps until the simulation clock reaches t and returns the
// number of steps taken.
func (e *Engine) Advance(t simtime.Time) int {
	steps := 0
	for e.SimulationTime() < t {
		e.Step()
		steps++
	}
	return steps
}

// LoopHooks let the owner of the loop interleave work with physics steps.
type LoopHooks struct {
	// RenderTime reports the render cursor the run-ahead budget is measured
	// from. Nil means zero.
	RenderTime func() simtime.Time
	// BeforeStep runs on the loop goroutine before every iteration, stepped
	// or idle.
	BeforeStep func()
	AfterStep  func(StepResult)
}

// Loop steps while the simulation is within the run-ahead budget of the
// render cursor and idles otherwise. It returns when ctx is cancelled.
func (e *Engine) Loop(ctx context.Context, hooks LoopHooks) error {
	if e == nil {
		return nil
	}
	var idle *time.Timer
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if hooks.BeforeStep != nil {
			hooks.BeforeStep()
		}

		cfg := e.Config()
		var renderTime simtime.Time
		if hooks.RenderTime != nil {
			renderTime = hooks.RenderTime()
		}
		if e.SimulationTime()+cfg.Timestep > renderTime+cfg.Runahead {
			if idle == nil {
				idle = time.NewTimer(cfg.IdleInterval)
			} else {
				idle.Reset(cfg.IdleInterval)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-idle.C:
			}
			continue
		}

		result := e.Step()
		if hooks.AfterStep != nil {
			hooks.AfterStep(result)
		}
	}
}

// KineticEnergy sums ½·m·|v|² at t over the balls carrying tag. The empty
// tag selects every ball. Balls that do not exist yet at t are skipped.
func (e *Engine) KineticEnergy(t simtime.Time, tag string) float64 {
	var total float64
	for _, b := range e.world.BallsWithTag(tag) {
		ke, err := b.KineticEnergy(t)
		if err != nil {
			continue
		}
		total += ke
	}
	return total
}

// PurgeKeyframes collapses every ball's history to its state at t and
// restarts the simulation clock from t.
func (e *Engine) PurgeKeyframes(t simtime.Time) {
	purged := 0
	for _, b := range e.world.Balls() {
		k, err := b.LastKeyframeBefore(t)
		if err != nil {
			e.logger.Printf("purge: skipping ball %d: %v", b.ID(), err)
			continue
		}
		b.PurgeKeyframes(world.Keyframe{Position: k.PositionAt(t), Velocity: k.Velocity, Time: t})
		purged++
	}
	e.simTime.Store(int64(t))
	e.world.SetEndTime(t)
	e.rebaseEnergyLog(t)
	loggingphysics.KeyframesPurged(context.Background(), e.publisher, int64(t), loggingphysics.KeyframesPurgedPayload{Balls: purged}, nil)
}
