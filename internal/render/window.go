// Package render owns the playback clock: a cursor on the simulation
// timeline that advances with wall-clock time, and the pan/zoom view frames
// are sampled through.
package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/harmonica"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	loggingrender "github.com/the-cubic-cat/sfera/logging/render"
)

var (
	ErrNegativeTimescale = errors.New("negative_timescale")
	ErrInvalidZoom       = errors.New("invalid_zoom")
)

// Config tunes the playback clock and view.
type Config struct {
	FPS       int
	Timescale float64
	Zoom      float64
	Pan       geom.Vec
	// SpringFrequency and SpringDamping shape how the displayed view eases
	// towards the requested zoom and pan.
	SpringFrequency float64
	SpringDamping   float64
}

func DefaultConfig() Config {
	return Config{
		FPS:             60,
		Timescale:       1,
		Zoom:            1,
		SpringFrequency: 6,
		SpringDamping:   1,
	}
}

// BallFrame is one ball as seen at the frame's time.
type BallFrame struct {
	ID       int64      `json:"id"`
	Position geom.Vec   `json:"position"`
	Velocity geom.Vec   `json:"velocity"`
	Radius   float64    `json:"radius"`
	Mass     float64    `json:"mass"`
	Color    color.RGBA `json:"color"`
	Tags     []string   `json:"tags,omitempty"`
}

// Frame is an immutable sample of the world at the render cursor.
type Frame struct {
	Time          simtime.Time
	EndTime       simtime.Time
	Timescale     float64
	Zoom          float64
	Pan           geom.Vec
	Bounds        *geom.Rect
	Balls         []BallFrame
	KineticEnergy float64
}

// FrameSink consumes frames produced by the render loop.
type FrameSink interface {
	DeliverFrame(Frame) error
}

// FrameSinkFunc adapts functions into the FrameSink interface.
type FrameSinkFunc func(Frame) error

func (f FrameSinkFunc) DeliverFrame(frame Frame) error {
	if f == nil {
		return nil
	}
	return f(frame)
}

// Window is the playback clock. It only reads the world.
type Window struct {
	world     *world.World
	clock     logging.Clock
	publisher logging.Publisher
	fps       int

	mu        sync.Mutex
	time      simtime.Time
	timescale float64
	lastTick  time.Time

	zoom   float64
	pan    geom.Vec
	spring harmonica.Spring
	shown  viewState
}

type viewState struct {
	zoom, zoomVel float64
	panX, panXVel float64
	panY, panYVel float64
}

func NewWindow(w *world.World, cfg Config, clock logging.Clock, publisher logging.Publisher) *Window {
	def := DefaultConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Timescale < 0 || math.IsNaN(cfg.Timescale) {
		cfg.Timescale = def.Timescale
	}
	if !(cfg.Zoom > 0) {
		cfg.Zoom = def.Zoom
	}
	if cfg.SpringFrequency <= 0 {
		cfg.SpringFrequency = def.SpringFrequency
	}
	if cfg.SpringDamping <= 0 {
		cfg.SpringDamping = def.SpringDamping
	}
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Window{
		world:     w,
		clock:     clock,
		publisher: publisher,
		fps:       cfg.FPS,
		timescale: cfg.Timescale,
		zoom:      cfg.Zoom,
		pan:       cfg.Pan,
		spring:    harmonica.NewSpring(harmonica.FPS(cfg.FPS), cfg.SpringFrequency, cfg.SpringDamping),
		shown:     viewState{zoom: cfg.Zoom, panX: cfg.Pan.X(), panY: cfg.Pan.Y()},
	}
}

// Time is the render cursor.
func (w *Window) Time() simtime.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.time
}

// SetTime moves the cursor. It is clamped to the computed horizon on the
// next Advance.
func (w *Window) SetTime(t simtime.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t < 0 {
		t = 0
	}
	w.time = t
}

func (w *Window) MoveTime(d simtime.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.time += d
	if w.time < 0 {
		w.time = 0
	}
}

func (w *Window) Timescale() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timescale
}

// SetTimescale sets playback speed; zero pauses.
func (w *Window) SetTimescale(scale float64) error {
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("timescale %v: %w", scale, ErrNegativeTimescale)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timescale = scale
	return nil
}

// Zoom is the requested zoom; the displayed zoom eases towards it.
func (w *Window) Zoom() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.zoom
}

func (w *Window) SetZoom(z float64) error {
	if !(z > 0) || math.IsInf(z, 0) {
		return fmt.Errorf("zoom %v: %w", z, ErrInvalidZoom)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.zoom = z
	return nil
}

// Pan is the requested world-space view centre.
func (w *Window) Pan() geom.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pan
}

func (w *Window) SetPan(p geom.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pan = p
}

func (w *Window) MovePan(d geom.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pan = w.pan.Add(d)
}

// Advance moves the cursor by the wall-clock time since the previous call
// scaled by the timescale, never past the world's computed horizon, and
// steps the view springs by one frame.
func (w *Window) Advance(now time.Time) simtime.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.lastTick.IsZero() {
		delta := now.Sub(w.lastTick)
		if delta > 0 && w.timescale > 0 {
			w.time += simtime.Time(math.Round(float64(delta.Nanoseconds()) * w.timescale))
		}
	}
	w.lastTick = now
	if end := w.world.EndTime(); w.time > end {
		w.time = end
	}

	s := &w.shown
	s.zoom, s.zoomVel = w.spring.Update(s.zoom, s.zoomVel, w.zoom)
	s.panX, s.panXVel = w.spring.Update(s.panX, s.panXVel, w.pan.X())
	s.panY, s.panYVel = w.spring.Update(s.panY, s.panYVel, w.pan.Y())
	return w.time
}

// Frame samples the world at the cursor. A ball whose history does not
// reach back to the cursor pauses playback and rewinds the cursor to 1ns;
// such balls are left out of the frame.
func (w *Window) Frame() Frame {
	w.mu.Lock()
	t := w.time
	frame := Frame{
		Time:      t,
		EndTime:   w.world.EndTime(),
		Timescale: w.timescale,
		Zoom:      w.shown.zoom,
		Pan:       geom.V(w.shown.panX, w.shown.panY),
	}
	w.mu.Unlock()

	if bounds, ok := w.world.Bounds(); ok {
		frame.Bounds = &bounds
	}
	var inaccessible error
	for _, b := range w.world.Balls() {
		k, err := b.LastKeyframeBefore(t)
		if err != nil {
			if inaccessible == nil {
				inaccessible = err
			}
			continue
		}
		frame.Balls = append(frame.Balls, BallFrame{
			ID:       b.ID(),
			Position: k.PositionAt(t),
			Velocity: k.Velocity,
			Radius:   b.Radius(),
			Mass:     b.Mass(),
			Color:    b.Color(),
			Tags:     b.Tags(),
		})
		frame.KineticEnergy += 0.5 * b.Mass() * k.Velocity.Dot(k.Velocity)
	}
	if inaccessible != nil && errors.Is(inaccessible, world.ErrTimeInaccessible) {
		w.recoverInaccessible(t, inaccessible)
		frame.Timescale = 0
	}
	return frame
}

func (w *Window) recoverInaccessible(requested simtime.Time, cause error) {
	w.mu.Lock()
	changed := w.time != simtime.Nanosecond || w.timescale != 0
	w.timescale = 0
	w.time = simtime.Nanosecond
	w.mu.Unlock()
	if !changed {
		return
	}
	loggingrender.TimeInaccessible(context.Background(), w.publisher, int64(requested),
		logging.EntityRef{Kind: logging.EntityKindRenderer},
		loggingrender.TimeInaccessiblePayload{
			RequestedNS: int64(requested),
			ResetNS:     int64(simtime.Nanosecond),
			Error:       cause.Error(),
		}, nil)
}

// Loop advances the cursor once per frame interval and hands every frame to
// each sink until ctx is cancelled.
func (w *Window) Loop(ctx context.Context, sinks ...FrameSink) error {
	ticker := time.NewTicker(time.Second / time.Duration(w.fps))
	defer ticker.Stop()
	failing := make(map[int]bool, len(sinks))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Advance(w.clock.Now())
			frame := w.Frame()
			for i, sink := range sinks {
				if sink == nil {
					continue
				}
				err := sink.DeliverFrame(frame)
				if err != nil && !failing[i] {
					loggingrender.FrameSinkFailed(ctx, w.publisher, int64(frame.Time), loggingrender.FrameSinkFailedPayload{
						Sink:  fmt.Sprintf("%T", sink),
						Error: err.Error(),
					}, nil)
				}
				failing[i] = err != nil
			}
		}
	}
}
