package world

import (
	"fmt"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
)

// TagSeparator joins tags in their serialized form.
const TagSeparator = ";"

var lastBallID atomic.Int64

// Keyframe starts a constant-velocity segment of a trajectory at Time.
type Keyframe struct {
	Position geom.Vec     `json:"position"`
	Velocity geom.Vec     `json:"velocity"`
	Time     simtime.Time `json:"time"`
}

// PositionAt extrapolates the segment to t.
func (k Keyframe) PositionAt(t simtime.Time) geom.Vec {
	return k.Position.Add(k.Velocity.Mul((t - k.Time).Seconds()))
}

// Ball is a disk moving along a piecewise-linear trajectory. Balls are only
// created through World.NewBall.
type Ball struct {
	id     int64
	radius float64
	mass   float64
	color  color.RGBA

	mu        sync.RWMutex
	tags      []string
	keyframes []Keyframe
}

func newBall(spec BallSpec, t simtime.Time) *Ball {
	b := &Ball{
		id:        lastBallID.Add(1),
		radius:    spec.Radius,
		mass:      spec.Mass,
		color:     spec.Color,
		keyframes: []Keyframe{{Position: spec.Position, Velocity: spec.Velocity, Time: t}},
	}
	for _, tag := range spec.Tags {
		b.addTagLocked(tag)
	}
	return b
}

func (b *Ball) ID() int64 {
	return b.id
}

func (b *Ball) Radius() float64 {
	return b.radius
}

func (b *Ball) Mass() float64 {
	return b.mass
}

func (b *Ball) Color() color.RGBA {
	return b.color
}

// LastKeyframeBefore returns the newest keyframe with Time <= t.
func (b *Ball) LastKeyframeBefore(t simtime.Time) (Keyframe, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.keyframes) == 0 {
		return Keyframe{}, fmt.Errorf("ball %d: %w", b.id, ErrKeyframeListEmpty)
	}
	for i := len(b.keyframes) - 1; i >= 0; i-- {
		if b.keyframes[i].Time <= t {
			return b.keyframes[i], nil
		}
	}
	return Keyframe{}, fmt.Errorf("ball %d at %s: %w", b.id, t, ErrTimeInaccessible)
}

func (b *Ball) PositionAt(t simtime.Time) (geom.Vec, error) {
	k, err := b.LastKeyframeBefore(t)
	if err != nil {
		return geom.Vec{}, err
	}
	return k.PositionAt(t), nil
}

func (b *Ball) VelocityAt(t simtime.Time) (geom.Vec, error) {
	k, err := b.LastKeyframeBefore(t)
	if err != nil {
		return geom.Vec{}, err
	}
	return k.Velocity, nil
}

// KineticEnergy is ½·m·|v|² for the segment active at t.
func (b *Ball) KineticEnergy(t simtime.Time) (float64, error) {
	v, err := b.VelocityAt(t)
	if err != nil {
		return 0, err
	}
	return 0.5 * b.mass * v.Dot(v), nil
}

// NewKeyframe appends k. Callers keep timestamps non-decreasing.
func (b *Ball) NewKeyframe(k Keyframe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keyframes = append(b.keyframes, k)
}

// PurgeKeyframes replaces the whole trajectory with replacement. The
// replacement is appended before the old entries are dropped so the list is
// never observed empty.
func (b *Ball) PurgeKeyframes(replacement Keyframe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keyframes = append(b.keyframes, replacement)
	b.keyframes = append(b.keyframes[:0:0], b.keyframes[len(b.keyframes)-1])
}

// Keyframes returns a copy of the trajectory.
func (b *Ball) Keyframes() []Keyframe {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Keyframe(nil), b.keyframes...)
}

func (b *Ball) KeyframeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.keyframes)
}

// Tags returns the ordered tag set.
func (b *Ball) Tags() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.tags...)
}

// HasTag reports whether the ball carries tag. The empty tag matches every
// ball.
func (b *Ball) HasTag(tag string) bool {
	if tag == "" {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag reports whether the tag was new.
func (b *Ball) AddTag(tag string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addTagLocked(tag)
}

func (b *Ball) addTagLocked(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.Contains(tag, TagSeparator) {
		return false
	}
	for _, t := range b.tags {
		if t == tag {
			return false
		}
	}
	b.tags = append(b.tags, tag)
	return true
}

func (b *Ball) RemoveTag(tag string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.tags {
		if t == tag {
			b.tags = append(b.tags[:i], b.tags[i+1:]...)
			return true
		}
	}
	return false
}

// TagsString serializes the tag set as a ';'-joined list.
func (b *Ball) TagsString() string {
	return strings.Join(b.Tags(), TagSeparator)
}

// ParseTags splits a ';'-joined list, dropping empty entries.
func ParseTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, TagSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
