// Package world owns the ball collection, the optional boundary and the
// simulated horizon shared by the physics engine and the renderer.
package world

import (
	"fmt"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
)

// BallSpec describes a ball to be placed with NewBall.
type BallSpec struct {
	Radius   float64
	Mass     float64
	Position geom.Vec
	Velocity geom.Vec
	Color    color.RGBA
	Tags     []string
}

// DefaultBallSpec matches the interpreter's defaults for omitted parameters.
func DefaultBallSpec() BallSpec {
	return BallSpec{
		Radius: 1,
		Mass:   1,
		Color:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// World is safe for concurrent readers. Structural edits are expected from a
// single writer.
type World struct {
	mu        sync.RWMutex
	balls     map[int64]*Ball
	order     []int64
	bounds    geom.Rect
	hasBounds bool

	endTime atomic.Int64
}

func New() *World {
	return &World{balls: make(map[int64]*Ball)}
}

// NewBall validates spec against the bounds and every existing ball at t
// and appends the ball. The world is unchanged on error.
func (w *World) NewBall(spec BallSpec, t simtime.Time) (*Ball, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hasBounds && !fits(w.bounds, spec.Radius, spec.Position) {
		return nil, fmt.Errorf("ball at %v outside bounds %+v: %w", spec.Position, w.bounds, ErrInvalidBallPosition)
	}
	for _, id := range w.order {
		other := w.balls[id]
		pos, err := other.PositionAt(t)
		if err != nil {
			continue
		}
		d := pos.Sub(spec.Position)
		reach := spec.Radius + other.radius
		if d.Dot(d) <= reach*reach {
			return nil, fmt.Errorf("ball at %v overlaps ball %d: %w", spec.Position, id, ErrInvalidBallPosition)
		}
	}

	b := newBall(spec, t)
	w.balls[b.id] = b
	w.order = append(w.order, b.id)
	return b, nil
}

func validateSpec(spec BallSpec) error {
	if !(spec.Radius > 0) || math.IsInf(spec.Radius, 0) {
		return fmt.Errorf("radius %v: %w", spec.Radius, ErrInvalidBallParameter)
	}
	if !(spec.Mass > 0) || math.IsInf(spec.Mass, 0) {
		return fmt.Errorf("mass %v: %w", spec.Mass, ErrInvalidBallParameter)
	}
	if !geom.IsFinite(spec.Position) || !geom.IsFinite(spec.Velocity) {
		return fmt.Errorf("position %v velocity %v: %w", spec.Position, spec.Velocity, ErrInvalidBallParameter)
	}
	return nil
}

// fits reports whether a ball of the given radius centred at p lies
// inside bounds. Shrinking a box by more than half its extent flips the
// extent's sign, so balls at least as wide as the box are refused first.
func fits(bounds geom.Rect, radius float64, p geom.Vec) bool {
	if 2*radius >= math.Abs(bounds.W) || 2*radius >= math.Abs(bounds.H) {
		return false
	}
	return bounds.GrowBy(-radius).Contains(p)
}

// RemoveBall drops the ball with the given ID.
func (w *World) RemoveBall(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.balls[id]; !ok {
		return fmt.Errorf("ball %d: %w", id, ErrBallNotFound)
	}
	delete(w.balls, id)
	for i, candidate := range w.order {
		if candidate == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every ball. Bounds are kept.
func (w *World) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balls = make(map[int64]*Ball)
	w.order = nil
}

// SetBounds commits r only if every ball at t lies fully inside it.
func (w *World) SetBounds(r geom.Rect, t simtime.Time) error {
	if r.W == 0 || r.H == 0 || !geom.IsFinite(geom.V(r.X, r.Y)) || !geom.IsFinite(geom.V(r.W, r.H)) {
		return fmt.Errorf("bounds %+v: %w", r, ErrInvalidBounds)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.order {
		b := w.balls[id]
		pos, err := b.PositionAt(t)
		if err != nil {
			continue
		}
		if !fits(r, b.radius, pos) {
			return fmt.Errorf("ball %d at %v outside bounds %+v: %w", id, pos, r, ErrInvalidBallPosition)
		}
	}
	w.bounds = r
	w.hasBounds = true
	return nil
}

func (w *World) ClearBounds() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bounds = geom.Rect{}
	w.hasBounds = false
}

// Bounds reports the boundary and whether one is set.
func (w *World) Bounds() (geom.Rect, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bounds, w.hasBounds
}

// Balls returns the balls in insertion order.
func (w *World) Balls() []*Ball {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Ball, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.balls[id])
	}
	return out
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.order)
}

func (w *World) Ball(id int64) (*Ball, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.balls[id]
	if !ok {
		return nil, fmt.Errorf("ball %d: %w", id, ErrBallNotFound)
	}
	return b, nil
}

// BallsWithTag filters Balls by tag. The empty tag matches every ball.
func (w *World) BallsWithTag(tag string) []*Ball {
	all := w.Balls()
	if tag == "" {
		return all
	}
	out := all[:0]
	for _, b := range all {
		if b.HasTag(tag) {
			out = append(out, b)
		}
	}
	return out
}

// EndTime is the furthest instant the physics engine has computed.
func (w *World) EndTime() simtime.Time {
	return simtime.Time(w.endTime.Load())
}

func (w *World) SetEndTime(t simtime.Time) {
	w.endTime.Store(int64(t))
}
