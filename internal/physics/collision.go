package physics

import (
	"context"
	"math"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	loggingphysics "github.com/the-cubic-cat/sfera/logging/physics"
)

// BallPair identifies two balls regardless of order. The lower ID is always
// stored first so the value can be compared and used as a map key directly.
type BallPair struct {
	First  int64
	Second int64
}

// NewBallPair orders the IDs so both argument orders compare equal.
func NewBallPair(a, b int64) BallPair {
	if b < a {
		a, b = b, a
	}
	return BallPair{First: a, Second: b}
}

// BoundBallPair is a ball together with the boundary edge it touches.
type BoundBallPair struct {
	BallID int64
	Dir    geom.Direction
}

type sample struct {
	ball *world.Ball
	pos  geom.Vec
	vel  geom.Vec
}

// sampleAt evaluates every ball at t. Balls that do not exist yet are left
// out.
func (e *Engine) sampleAt(t simtime.Time) []sample {
	balls := e.world.Balls()
	out := make([]sample, 0, len(balls))
	for _, b := range balls {
		k, err := b.LastKeyframeBefore(t)
		if err != nil {
			continue
		}
		out = append(out, sample{ball: b, pos: k.PositionAt(t), vel: k.Velocity})
	}
	return out
}

// slack is the relaxed tolerance: margin is a fraction of the larger of the
// radii involved, so a pair gets one tolerance rather than one per ball.
func slack(touching bool, margin float64, radii ...float64) float64 {
	if !touching {
		return 0
	}
	largest := 0.0
	for _, r := range radii {
		largest = math.Max(largest, r)
	}
	return largest * margin
}

// OutOfBoundsBalls lists every ball whose centre lies outside the bounds
// shrunk by its radius at t. With touching set the radius is inflated by the
// collision margin. A ball past a corner yields one entry per edge, checked
// in the order right, left, up, down.
func (e *Engine) OutOfBoundsBalls(t simtime.Time, touching bool) []BoundBallPair {
	return e.outOfBounds(e.sampleAt(t), touching, e.CollisionErrMargin(), false)
}

// CollidingBalls lists every unique pair whose surfaces overlap at t, or lie
// within the collision margin of the larger radius when touching is set.
func (e *Engine) CollidingBalls(t simtime.Time, touching bool) []BallPair {
	return e.colliding(e.sampleAt(t), touching, e.CollisionErrMargin(), false)
}

func (e *Engine) outOfBounds(samples []sample, touching bool, margin float64, approachingOnly bool) []BoundBallPair {
	bounds, ok := e.world.Bounds()
	if !ok {
		return nil
	}
	var out []BoundBallPair
	for _, s := range samples {
		r := s.ball.Radius()
		inner := bounds.GrowBy(-(r + slack(touching, margin, r)))
		if inner.Contains(s.pos) {
			continue
		}
		for _, dir := range crossedEdges(inner, s.pos) {
			if approachingOnly && !movingTowards(dir, s.vel) {
				continue
			}
			out = append(out, BoundBallPair{BallID: s.ball.ID(), Dir: dir})
		}
	}
	return out
}

func crossedEdges(inner geom.Rect, p geom.Vec) []geom.Direction {
	var dirs []geom.Direction
	if p.X() >= inner.Right() {
		dirs = append(dirs, geom.DirRight)
	}
	if p.X() <= inner.Left() {
		dirs = append(dirs, geom.DirLeft)
	}
	if p.Y() <= inner.Top() {
		dirs = append(dirs, geom.DirUp)
	}
	if p.Y() >= inner.Bottom() {
		dirs = append(dirs, geom.DirDown)
	}
	return dirs
}

// movingTowards reports whether v carries the ball further through edge dir.
// y grows downwards, so the top edge is "up".
func movingTowards(dir geom.Direction, v geom.Vec) bool {
	switch dir {
	case geom.DirRight:
		return v.X() > 0
	case geom.DirLeft:
		return v.X() < 0
	case geom.DirUp:
		return v.Y() < 0
	case geom.DirDown:
		return v.Y() > 0
	default:
		return false
	}
}

func (e *Engine) colliding(samples []sample, touching bool, margin float64, approachingOnly bool) []BallPair {
	var out []BallPair
	seen := make(map[BallPair]struct{})
	for i := 0; i < len(samples); i++ {
		a := samples[i]
		for j := i + 1; j < len(samples); j++ {
			b := samples[j]
			ra, rb := a.ball.Radius(), b.ball.Radius()
			reach := ra + rb + slack(touching, margin, ra, rb)
			d := b.pos.Sub(a.pos)

			coarse := reach * (1 + CollisionErrorMarginHeuristic)
			if math.Abs(d.X()) > coarse || math.Abs(d.Y()) > coarse {
				continue
			}
			dist2 := d.Dot(d)
			if touching {
				if dist2 > reach*reach {
					continue
				}
			} else if dist2 >= reach*reach {
				continue
			}
			if approachingOnly && d.Dot(b.vel.Sub(a.vel)) >= 0 {
				continue
			}
			pair := NewBallPair(a.ball.ID(), b.ball.ID())
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			out = append(out, pair)
		}
	}
	return out
}

// contactCount counts approaching contacts at t. Contacts that are already
// separating are ignored: the responses would skip them anyway.
func (e *Engine) contactCount(t simtime.Time, touching bool, margin float64) int {
	samples := e.sampleAt(t)
	return len(e.outOfBounds(samples, touching, margin, true)) + len(e.colliding(samples, touching, margin, true))
}

type searchAction int

const (
	actionNone searchAction = iota
	actionForward
	actionRewind
)

type searchResult struct {
	Time       simtime.Time
	Step       simtime.Time
	Iterations int
	Contact    bool
	Settled    bool
	Exhausted  bool
}

// findCollisionTime bisects [start, end] for the first instant at which an
// approaching contact exists without any exact overlap. The step starts at
// the full interval and halves whenever the direction of travel flips; the
// search stops at a 1ns step, on the iteration budget, or when it cannot
// rewind past start. The result never leaves the interval.
func (e *Engine) findCollisionTime(start, end simtime.Time, cfg Config) searchResult {
	margin := cfg.CollisionErrMargin
	if e.contactCount(end, true, margin) == 0 {
		return searchResult{Time: end}
	}

	t := end
	step := end - start
	if step < simtime.Nanosecond {
		step = simtime.Nanosecond
	}
	earliest := end
	last := actionNone
	res := searchResult{Contact: true}

	for {
		if res.Iterations >= cfg.MaxCollisionIterations {
			res.Exhausted = true
			break
		}
		res.Iterations++

		overlapping := e.contactCount(t, false, margin)
		touching := e.contactCount(t, true, margin)
		if touching > 0 && t < earliest {
			earliest = t
		}
		if touching > 0 && overlapping == 0 {
			res.Settled = true
			break
		}

		action := actionForward
		if overlapping > 0 {
			action = actionRewind
		}
		if last != actionNone && action != last {
			if step <= simtime.Nanosecond {
				break
			}
			step = step.Half()
		}
		last = action

		if action == actionRewind {
			if t <= start {
				break
			}
			t -= step
			if t < start {
				t = start
			}
		} else {
			if t >= end {
				break
			}
			t += step
			if t > end {
				t = end
			}
		}
	}

	if !res.Settled && e.contactCount(t, true, margin) == 0 {
		t = earliest
	}
	res.Time = t
	res.Step = step
	return res
}

// handleBoundsCollisions turns every outward velocity component of a ball
// touching the boundary at t inwards. It returns the number of edges
// resolved.
func (e *Engine) handleBoundsCollisions(t simtime.Time, cfg Config) int {
	contacts := e.outOfBounds(e.sampleAt(t), true, cfg.CollisionErrMargin, false)
	if len(contacts) == 0 {
		return 0
	}
	byBall := make(map[int64][]geom.Direction)
	var order []int64
	for _, c := range contacts {
		if _, ok := byBall[c.BallID]; !ok {
			order = append(order, c.BallID)
		}
		byBall[c.BallID] = append(byBall[c.BallID], c.Dir)
	}

	resolved := 0
	for _, id := range order {
		dirs := byBall[id]
		if len(dirs) > 1 {
			edges := make([]string, 0, len(dirs))
			for _, d := range dirs {
				edges = append(edges, d.String())
			}
			loggingphysics.MultipleBoundViolations(context.Background(), e.publisher, int64(t), logging.BallRef(id),
				loggingphysics.BoundViolationsPayload{Edges: edges}, nil)
		}
		b, err := e.world.Ball(id)
		if err != nil {
			continue
		}
		for _, dir := range dirs {
			k, err := b.LastKeyframeBefore(t)
			if err != nil {
				e.logger.Printf("bounds collision: ball %d: %v", id, err)
				break
			}
			v := inwardVelocity(dir, k.Velocity)
			if v == k.Velocity {
				continue
			}
			b.NewKeyframe(world.Keyframe{Position: k.PositionAt(t), Velocity: v, Time: t})
			resolved++
		}
	}
	return resolved
}

func inwardVelocity(dir geom.Direction, v geom.Vec) geom.Vec {
	switch dir {
	case geom.DirRight:
		return geom.V(-math.Abs(v.X()), v.Y())
	case geom.DirLeft:
		return geom.V(math.Abs(v.X()), v.Y())
	case geom.DirUp:
		return geom.V(v.X(), math.Abs(v.Y()))
	case geom.DirDown:
		return geom.V(v.X(), -math.Abs(v.Y()))
	default:
		return v
	}
}

// handleBallCollisions applies an elastic response to every approaching pair
// touching at t and returns the number of pairs resolved.
func (e *Engine) handleBallCollisions(t simtime.Time, cfg Config) int {
	pairs := e.colliding(e.sampleAt(t), true, cfg.CollisionErrMargin, false)
	resolved := 0
	for _, pair := range pairs {
		a, errA := e.world.Ball(pair.First)
		b, errB := e.world.Ball(pair.Second)
		if errA != nil || errB != nil {
			continue
		}
		ka, errA := a.LastKeyframeBefore(t)
		kb, errB := b.LastKeyframeBefore(t)
		if errA != nil || errB != nil {
			continue
		}
		pa, va, pb, vb, ok := elasticResponse(
			ka.PositionAt(t), ka.Velocity, a.Radius(), a.Mass(),
			kb.PositionAt(t), kb.Velocity, b.Radius(), b.Mass(),
		)
		if !ok {
			continue
		}
		a.NewKeyframe(world.Keyframe{Position: pa, Velocity: va, Time: t})
		b.NewKeyframe(world.Keyframe{Position: pb, Velocity: vb, Time: t})
		resolved++
	}
	return resolved
}

// elasticResponse resolves a frictionless elastic contact between two disks.
// It works in a y-up frame rotated so the line of centres is the x axis,
// exchanges momentum along that axis only and pushes the centres apart by
// half the remaining overlap each. ok is false when the disks are already
// separating.
func elasticResponse(p1, v1 geom.Vec, r1, m1 float64, p2, v2 geom.Vec, r2, m2 float64) (np1, nv1, np2, nv2 geom.Vec, ok bool) {
	p1m, v1m := geom.FlipVector(p1, geom.AxisY), geom.FlipVector(v1, geom.AxisY)
	p2m, v2m := geom.FlipVector(p2, geom.AxisY), geom.FlipVector(v2, geom.AxisY)

	d := p2m.Sub(p1m)
	angle := math.Atan2(d.Y(), d.X())
	if angle > math.Pi/2 {
		angle -= math.Pi
	} else if angle < -math.Pi/2 {
		angle += math.Pi
	}

	u1 := geom.Rotate(v1m, -angle)
	u2 := geom.Rotate(v2m, -angle)
	q1 := geom.Rotate(p1m, -angle)
	q2 := geom.Rotate(p2m, -angle)

	separation := q2.X() - q1.X()
	if separation*(u2.X()-u1.X()) >= 0 {
		return p1, v1, p2, v2, false
	}

	a1, a2 := u1.X(), u2.X()
	n1 := ((m1-m2)*a1 + 2*m2*a2) / (m1 + m2)
	n2 := n1 + a1 - a2
	u1 = geom.V(n1, u1.Y())
	u2 = geom.V(n2, u2.Y())

	np1, np2 = p1, p2
	if overlap := r1 + r2 - d.Len(); overlap > 0 {
		push := math.Copysign(overlap/2, separation)
		q1 = geom.V(q1.X()-push, q1.Y())
		q2 = geom.V(q2.X()+push, q2.Y())
		np1 = geom.FlipVector(geom.Rotate(q1, angle), geom.AxisY)
		np2 = geom.FlipVector(geom.Rotate(q2, angle), geom.AxisY)
	}

	nv1 = geom.FlipVector(geom.Rotate(u1, angle), geom.AxisY)
	nv2 = geom.FlipVector(geom.Rotate(u2, angle), geom.AxisY)
	return np1, nv1, np2, nv2, true
}
