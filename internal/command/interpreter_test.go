package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/physics"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	"github.com/the-cubic-cat/sfera/logging/lifecycle"
)

type harness struct {
	interp  *Interpreter
	world   *world.World
	engine  *physics.Engine
	window  *render.Window
	events  []logging.Event
	stopped bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{world: world.New()}
	pub := logging.PublisherFunc(func(_ context.Context, e logging.Event) {
		h.events = append(h.events, e)
	})
	h.engine = physics.NewEngine(h.world, physics.DefaultConfig(), physics.Deps{Publisher: pub})
	clock := logging.ClockFunc(func() time.Time { return time.Unix(0, 0) })
	h.window = render.NewWindow(h.world, render.DefaultConfig(), clock, pub)
	h.interp = New(Context{
		Physics:   h.engine,
		Window:    h.window,
		Stop:      func() { h.stopped = true },
		Publisher: pub,
	})
	return h
}

func (h *harness) run(t *testing.T, line string) string {
	t.Helper()
	out, err := h.interp.Execute(context.Background(), line)
	if err != nil {
		t.Fatalf("%q: unexpected error: %v", line, err)
	}
	return out
}

func (h *harness) countEvents(kind logging.EventType) int {
	n := 0
	for _, e := range h.events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

func TestBallsNewParsesParameters(t *testing.T) {
	h := newHarness(t)
	out := h.run(t, "balls new radius=0.5 mass=2 position=1;-2 velocity=0.5;0 color=255;0;0 tags=red;fast")
	if !strings.Contains(out, "created") {
		t.Fatalf("expected creation message, got %q", out)
	}
	balls := h.world.Balls()
	if len(balls) != 1 {
		t.Fatalf("expected one ball, got %d", len(balls))
	}
	b := balls[0]
	if b.Radius() != 0.5 || b.Mass() != 2 {
		t.Fatalf("expected radius 0.5 mass 2, got %v %v", b.Radius(), b.Mass())
	}
	pos, _ := b.PositionAt(0)
	if pos != geom.V(1, -2) {
		t.Fatalf("expected position (1,-2), got %v", pos)
	}
	if c := b.Color(); c.R != 255 || c.G != 0 || c.A != 255 {
		t.Fatalf("expected opaque red, got %+v", c)
	}
	if !b.HasTag("red") || !b.HasTag("fast") {
		t.Fatalf("expected tags red and fast, got %v", b.Tags())
	}
	if h.countEvents(lifecycle.EventBallCreated) != 1 {
		t.Fatalf("expected a ball_created event")
	}
}

func TestBallsNewDefaults(t *testing.T) {
	h := newHarness(t)
	h.run(t, "BALLS NEW")
	b := h.world.Balls()[0]
	if b.Radius() != 1 || b.Mass() != 1 {
		t.Fatalf("expected unit radius and mass, got %v %v", b.Radius(), b.Mass())
	}
}

func TestCommandErrors(t *testing.T) {
	cases := []struct {
		line string
		want error
	}{
		{"balls new radius=abc", ErrNumberExpected},
		{"balls new position=1;2;3", ErrWrongArgument},
		{"balls new colour=1;2;3", ErrWrongParameter},
		{"balls new radius", ErrWrongParameter},
		{"balls new color=256;0;0", ErrWrongArgument},
		{"balls delete", ErrMissingArgument},
		{"balls delete 999999", world.ErrBallNotFound},
		{"balls fly", ErrWrongArgument},
		{"time set", ErrMissingArgument},
		{"time set soon", ErrNumberExpected},
		{"time scale set -1", render.ErrNegativeTimescale},
		{"time get hours", ErrWrongArgument},
		{"view zoom set 0", render.ErrInvalidZoom},
		{"physics step set 0", physics.ErrInvalidSetting},
		{"physics iterations set many", ErrNumberExpected},
		{"energy log stop", physics.ErrNotLogging},
		{"energy log start", ErrMissingArgument},
		{"bounds set 1;2", ErrWrongArgument},
		{"teleport", ErrWrongArgument},
		{"time get s extra", ErrWrongArgument},
	}
	for _, tc := range cases {
		h := newHarness(t)
		_, err := h.interp.Execute(context.Background(), tc.line)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.line, tc.want, err)
		}
	}
}

func TestOverlappingBallRejected(t *testing.T) {
	h := newHarness(t)
	h.run(t, "balls new position=0;0")
	_, err := h.interp.Execute(context.Background(), "balls new position=1;0")
	if !errors.Is(err, world.ErrInvalidBallPosition) {
		t.Fatalf("expected ErrInvalidBallPosition, got %v", err)
	}
	if h.world.Len() != 1 {
		t.Fatalf("expected world unchanged, got %d balls", h.world.Len())
	}
}

func TestStructuralEditRestartsFromWindowTime(t *testing.T) {
	h := newHarness(t)
	h.run(t, "balls new position=0;0 velocity=1;0")
	h.engine.Advance(simtime.Second)
	if h.engine.SimulationTime() < simtime.Second {
		t.Fatalf("expected engine at 1s, got %s", h.engine.SimulationTime())
	}

	h.run(t, "time set 250ms")
	h.run(t, "balls new position=4;4")
	if got := h.engine.SimulationTime(); got != simtime.MS(250) {
		t.Fatalf("expected simulation restarted at 250ms, got %s", got)
	}
	if got := h.world.EndTime(); got != simtime.MS(250) {
		t.Fatalf("expected end time 250ms, got %s", got)
	}
	first := h.world.Balls()[0]
	if first.KeyframeCount() != 1 {
		t.Fatalf("expected history collapsed to one keyframe, got %d", first.KeyframeCount())
	}
	pos, _ := first.PositionAt(simtime.MS(250))
	if pos != geom.V(0.25, 0) {
		t.Fatalf("expected first ball at (0.25,0), got %v", pos)
	}
}

func TestTimeCommands(t *testing.T) {
	h := newHarness(t)
	h.run(t, "time set 1.5")
	if got := h.run(t, "time get ms"); got != "1500ms" {
		t.Fatalf("expected 1500ms, got %q", got)
	}
	h.run(t, "time move -500ms")
	if got := h.run(t, "time get"); got != "1s" {
		t.Fatalf("expected 1s, got %q", got)
	}
	h.run(t, "graphics time scale set 0.25")
	if got := h.run(t, "time scale get"); got != "0.25" {
		t.Fatalf("expected 0.25, got %q", got)
	}
}

func TestBoundsCommands(t *testing.T) {
	h := newHarness(t)
	if got := h.run(t, "bounds get"); got != "none" {
		t.Fatalf("expected no bounds, got %q", got)
	}
	h.run(t, "bounds set -5;-5;10;10")
	if r, ok := h.world.Bounds(); !ok || r != geom.R(-5, -5, 10, 10) {
		t.Fatalf("expected bounds set, got %v %v", r, ok)
	}
	h.run(t, "balls new position=4;0 radius=0.5")
	if _, err := h.interp.Execute(context.Background(), "bounds set -1;-1;2;2"); !errors.Is(err, world.ErrInvalidBallPosition) {
		t.Fatalf("expected bounds rejected, got %v", err)
	}
	h.run(t, "bounds set none")
	if _, ok := h.world.Bounds(); ok {
		t.Fatalf("expected bounds cleared")
	}
	if h.countEvents(lifecycle.EventBoundsChanged) != 2 {
		t.Fatalf("expected two bounds_changed events, got %d", h.countEvents(lifecycle.EventBoundsChanged))
	}
}

func TestBallsGetAndDelete(t *testing.T) {
	h := newHarness(t)
	h.run(t, "balls new position=-3;0 tags=left")
	h.run(t, "world balls new position=3;0")
	out := h.run(t, "balls get")
	if strings.Count(out, "ID:") != 2 || !strings.Contains(out, "tags: left") {
		t.Fatalf("unexpected listing %q", out)
	}
	id := h.world.Balls()[0].ID()
	h.run(t, "balls delete "+strconv.FormatInt(id, 10))
	if h.world.Len() != 1 {
		t.Fatalf("expected one ball left, got %d", h.world.Len())
	}
	h.run(t, "balls clear")
	if h.world.Len() != 0 {
		t.Fatalf("expected no balls, got %d", h.world.Len())
	}
	if h.countEvents(lifecycle.EventBallRemoved) != 2 {
		t.Fatalf("expected two ball_removed events")
	}
}

func TestPhysicsAndViewSettings(t *testing.T) {
	h := newHarness(t)
	h.run(t, "physics step set 1ms")
	if h.engine.Timestep() != simtime.MS(1) {
		t.Fatalf("expected 1ms timestep, got %s", h.engine.Timestep())
	}
	h.run(t, "physics iterations set 12")
	if got := h.run(t, "physics iterations get"); got != "12" {
		t.Fatalf("expected 12, got %q", got)
	}
	h.run(t, "physics runahead set 2s")
	if h.engine.Runahead() != 2*simtime.Second {
		t.Fatalf("expected 2s runahead, got %s", h.engine.Runahead())
	}
	h.run(t, "view zoom set 3")
	h.run(t, "view position set 1;1")
	h.run(t, "view position move 1;-1")
	if h.window.Zoom() != 3 || h.window.Pan() != geom.V(2, 0) {
		t.Fatalf("expected zoom 3 pan (2,0), got %v %v", h.window.Zoom(), h.window.Pan())
	}
}

func TestEnergyCommands(t *testing.T) {
	h := newHarness(t)
	h.run(t, "balls new velocity=2;0 tags=hot")
	h.run(t, "balls new position=5;5")
	if got := h.run(t, "energy get hot"); got != "2 J" {
		t.Fatalf("expected 2 J, got %q", got)
	}

	dir := t.TempDir()
	name := filepath.Join(dir, "ke")
	out := h.run(t, "energy log start "+name+" 100ms all hot")
	if !strings.HasSuffix(out, "ke.csv") {
		t.Fatalf("expected log path, got %q", out)
	}
	h.run(t, "energy log stop")
	data, err := os.ReadFile(name + ".csv")
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.HasPrefix(string(data), "Time:;all:;hot:") {
		t.Fatalf("unexpected header %q", data)
	}
}

func TestScriptCommand(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.txt")
	src := "# demo\nbounds set -5;-5;10;10\nballs new position=-3;0 radius=0.5\nballs new position=3;0 radius=0.5\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	h.run(t, "script "+path)
	if h.world.Len() != 2 {
		t.Fatalf("expected two balls from script, got %d", h.world.Len())
	}

	loop := filepath.Join(dir, "loop.txt")
	if err := os.WriteFile(loop, []byte("script "+loop+"\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if _, err := h.interp.Execute(context.Background(), "script "+loop); !errors.Is(err, ErrScriptDepth) {
		t.Fatalf("expected ErrScriptDepth, got %v", err)
	}
}

func TestQuitStops(t *testing.T) {
	h := newHarness(t)
	h.run(t, "quit")
	if !h.stopped {
		t.Fatalf("expected stop to be called")
	}
	if out := h.run(t, "help"); !strings.Contains(out, "balls new") {
		t.Fatalf("expected help text, got %q", out)
	}
}
