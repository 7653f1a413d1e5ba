package world

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
)

func spec(radius float64, pos, vel geom.Vec) BallSpec {
	s := DefaultBallSpec()
	s.Radius = radius
	s.Position = pos
	s.Velocity = vel
	return s
}

func TestNewBallAssignsIncreasingIDs(t *testing.T) {
	w := New()
	a, err := w.NewBall(spec(0.5, geom.V(0, 0), geom.V(0, 0)), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := w.NewBall(spec(0.5, geom.V(3, 0), geom.V(0, 0)), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID() <= a.ID() {
		t.Fatalf("expected increasing ids, got %d then %d", a.ID(), b.ID())
	}
	if w.Len() != 2 {
		t.Fatalf("expected 2 balls, got %d", w.Len())
	}
	if got := b.KeyframeCount(); got != 1 {
		t.Fatalf("expected a single initial keyframe, got %d", got)
	}
}

func TestNewBallRejectsOverlapWithoutMutation(t *testing.T) {
	w := New()
	if _, err := w.NewBall(spec(1, geom.V(0, 0), geom.V(0, 0)), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := w.NewBall(spec(1, geom.V(1.5, 0), geom.V(0, 0)), 0)
	if !errors.Is(err, ErrInvalidBallPosition) {
		t.Fatalf("expected ErrInvalidBallPosition, got %v", err)
	}
	// Exactly touching counts as overlapping.
	_, err = w.NewBall(spec(1, geom.V(2, 0), geom.V(0, 0)), 0)
	if !errors.Is(err, ErrInvalidBallPosition) {
		t.Fatalf("expected touching placement to fail, got %v", err)
	}
	if w.Len() != 1 {
		t.Fatalf("expected collection unchanged, got %d balls", w.Len())
	}
}

func TestNewBallChecksOverlapAtRequestedTime(t *testing.T) {
	w := New()
	if _, err := w.NewBall(spec(1, geom.V(0, 0), geom.V(1, 0)), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The first ball has moved 5m away by t=5s.
	if _, err := w.NewBall(spec(1, geom.V(0, 0), geom.V(0, 0)), 5*simtime.Second); err != nil {
		t.Fatalf("expected placement at vacated spot to succeed, got %v", err)
	}
}

func TestNewBallRespectsBounds(t *testing.T) {
	w := New()
	if err := w.SetBounds(geom.R(-5, -5, 10, 10), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := w.NewBall(spec(1, geom.V(4.5, 0), geom.V(0, 0)), 0)
	if !errors.Is(err, ErrInvalidBallPosition) {
		t.Fatalf("expected ErrInvalidBallPosition, got %v", err)
	}
	if w.Len() != 0 {
		t.Fatalf("expected no balls, got %d", w.Len())
	}
	if _, err := w.NewBall(spec(1, geom.V(3.9, 0), geom.V(0, 0)), 0); err != nil {
		t.Fatalf("expected placement inside shrunk bounds, got %v", err)
	}
}

func TestNewBallRejectsBallWiderThanBounds(t *testing.T) {
	for _, bounds := range []geom.Rect{geom.R(-5, -5, 10, 10), geom.R(5, 5, -10, -10)} {
		w := New()
		if err := w.SetBounds(bounds, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, radius := range []float64{6, 5} {
			_, err := w.NewBall(spec(radius, geom.V(0, 0), geom.V(0, 0)), 0)
			if !errors.Is(err, ErrInvalidBallPosition) {
				t.Fatalf("expected radius %v to be refused in %+v, got %v", radius, bounds, err)
			}
		}
		if _, err := w.NewBall(spec(4.9, geom.V(0, 0), geom.V(0, 0)), 0); err != nil {
			t.Fatalf("expected radius 4.9 to fit in %+v, got %v", bounds, err)
		}
	}
}

func TestNewBallRejectsInvalidParameters(t *testing.T) {
	w := New()
	bad := []BallSpec{
		spec(-1, geom.V(0, 0), geom.V(0, 0)),
		spec(0, geom.V(0, 0), geom.V(0, 0)),
		spec(math.NaN(), geom.V(0, 0), geom.V(0, 0)),
		spec(1, geom.V(math.Inf(1), 0), geom.V(0, 0)),
	}
	zeroMass := spec(1, geom.V(0, 0), geom.V(0, 0))
	zeroMass.Mass = 0
	bad = append(bad, zeroMass)

	for _, s := range bad {
		_, err := w.NewBall(s, 0)
		if !errors.Is(err, ErrInvalidBallParameter) {
			t.Fatalf("expected ErrInvalidBallParameter for %+v, got %v", s, err)
		}
		if KindOf(err) != KindValidation {
			t.Fatalf("expected validation kind, got %v", KindOf(err))
		}
	}
	if w.Len() != 0 {
		t.Fatalf("expected no balls, got %d", w.Len())
	}
}

func TestSetBoundsValidatesExistingBalls(t *testing.T) {
	w := New()
	if _, err := w.NewBall(spec(1, geom.V(4, 0), geom.V(0, 0)), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := w.SetBounds(geom.R(-5, -5, 10, 10), 0)
	if !errors.Is(err, ErrInvalidBallPosition) {
		t.Fatalf("expected ErrInvalidBallPosition, got %v", err)
	}
	if _, ok := w.Bounds(); ok {
		t.Fatalf("expected bounds to remain unset")
	}
	if err := w.SetBounds(geom.R(-6, -6, 12, 12), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.SetBounds(geom.R(0, 0, 0, 5), 0); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
	w.ClearBounds()
	if _, ok := w.Bounds(); ok {
		t.Fatalf("expected bounds cleared")
	}
}

func TestSetBoundsRejectsBoxNarrowerThanBall(t *testing.T) {
	w := New()
	if _, err := w.NewBall(spec(3, geom.V(0, 0), geom.V(0, 0)), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bounds := range []geom.Rect{
		geom.R(-2, -2, 4, 4),
		geom.R(-2, -10, 4, 20),
		geom.R(10, -2, -20, 4),
	} {
		if err := w.SetBounds(bounds, 0); !errors.Is(err, ErrInvalidBallPosition) {
			t.Fatalf("expected ErrInvalidBallPosition for %+v, got %v", bounds, err)
		}
	}
	if _, ok := w.Bounds(); ok {
		t.Fatalf("expected bounds to remain unset")
	}
}

func TestLookupAndRemoval(t *testing.T) {
	w := New()
	a, _ := w.NewBall(spec(0.5, geom.V(0, 0), geom.V(0, 0)), 0)
	b, _ := w.NewBall(spec(0.5, geom.V(2, 0), geom.V(0, 0)), 0)
	c, _ := w.NewBall(spec(0.5, geom.V(4, 0), geom.V(0, 0)), 0)

	got, err := w.Ball(b.ID())
	if err != nil || got != b {
		t.Fatalf("expected lookup of ball %d, got %v (%v)", b.ID(), got, err)
	}
	if err := w.RemoveBall(b.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Ball(b.ID()); !errors.Is(err, ErrBallNotFound) {
		t.Fatalf("expected ErrBallNotFound, got %v", err)
	}
	if err := w.RemoveBall(b.ID()); !errors.Is(err, ErrBallNotFound) {
		t.Fatalf("expected ErrBallNotFound on second removal, got %v", err)
	}
	balls := w.Balls()
	if len(balls) != 2 || balls[0] != a || balls[1] != c {
		t.Fatalf("expected insertion order to survive removal, got %v", balls)
	}
	w.Clear()
	if w.Len() != 0 {
		t.Fatalf("expected empty world after clear")
	}
}

func TestBallsWithTag(t *testing.T) {
	w := New()
	red := spec(0.5, geom.V(0, 0), geom.V(0, 0))
	red.Tags = []string{"red", "fast"}
	a, _ := w.NewBall(red, 0)
	b, _ := w.NewBall(spec(0.5, geom.V(2, 0), geom.V(0, 0)), 0)

	tagged := w.BallsWithTag("red")
	if len(tagged) != 1 || tagged[0] != a {
		t.Fatalf("expected only ball %d tagged red, got %v", a.ID(), tagged)
	}
	if all := w.BallsWithTag(""); len(all) != 2 {
		t.Fatalf("expected empty tag to match every ball, got %d", len(all))
	}
	b.AddTag("red")
	if got := len(w.BallsWithTag("red")); got != 2 {
		t.Fatalf("expected 2 red balls, got %d", got)
	}
}

func TestEndTime(t *testing.T) {
	w := New()
	w.SetEndTime(simtime.MS(40))
	if got := w.EndTime(); got != simtime.MS(40) {
		t.Fatalf("expected 40ms, got %s", got)
	}
}

func TestConcurrentReadsDuringPurge(t *testing.T) {
	w := New()
	b, _ := w.NewBall(spec(0.5, geom.V(0, 0), geom.V(1, 0)), 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := b.PositionAt(simtime.Second); err != nil {
				t.Errorf("unexpected read error during purge: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		b.NewKeyframe(Keyframe{Position: geom.V(0, 0), Velocity: geom.V(1, 0), Time: simtime.MS(int64(i % 10))})
		b.PurgeKeyframes(Keyframe{Position: geom.V(0, 0), Velocity: geom.V(1, 0), Time: 0})
	}
	close(stop)
	wg.Wait()
}
