package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/the-cubic-cat/sfera/internal/script"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	"github.com/the-cubic-cat/sfera/logging/lifecycle"
)

var ErrUnavailable = errors.New("component_unavailable")

// now is the instant structural edits apply at: the render cursor when a
// renderer is attached, the simulation clock otherwise.
func (i *Interpreter) now() simtime.Time {
	switch {
	case i.ctx.Window != nil:
		return i.ctx.Window.Time()
	case i.ctx.Physics != nil:
		return i.ctx.Physics.SimulationTime()
	default:
		return 0
	}
}

// restart drops the history after t so the engine recomputes it with the
// edited world.
func (i *Interpreter) restart(t simtime.Time) {
	if i.ctx.Physics != nil {
		i.ctx.Physics.PurgeKeyframes(t)
	}
}

func (i *Interpreter) requireWindow() error {
	if i.ctx.Window == nil {
		return fmt.Errorf("renderer: %w", ErrUnavailable)
	}
	return nil
}

func (i *Interpreter) requireWorld() error {
	if i.ctx.World == nil {
		return fmt.Errorf("world: %w", ErrUnavailable)
	}
	return nil
}

func (i *Interpreter) requirePhysics() error {
	if i.ctx.Physics == nil {
		return fmt.Errorf("physics: %w", ErrUnavailable)
	}
	return nil
}

func (i *Interpreter) timeCommand(_ context.Context, a *args) (string, error) {
	if err := i.requireWindow(); err != nil {
		return "", err
	}
	win := i.ctx.Window
	op, err := a.keyword("time")
	if err != nil {
		return "", err
	}
	switch op {
	case "get":
		raw, _ := a.optional()
		unit, err := simtime.ParseUnit(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrWrongArgument, err)
		}
		return win.Time().Format(unit), nil
	case "set":
		raw, err := a.next("time set")
		if err != nil {
			return "", err
		}
		t, err := parseTime(raw)
		if err != nil {
			return "", err
		}
		win.SetTime(t)
		return "", nil
	case "move":
		raw, err := a.next("time move")
		if err != nil {
			return "", err
		}
		d, err := parseTime(raw)
		if err != nil {
			return "", err
		}
		win.MoveTime(d)
		return "", nil
	case "scale":
		op, err := getOrSet(a, "time scale")
		if err != nil {
			return "", err
		}
		if op == "get" {
			return formatFloat(win.Timescale()), nil
		}
		raw, err := a.next("time scale set")
		if err != nil {
			return "", err
		}
		scale, err := parseFloat(raw)
		if err != nil {
			return "", err
		}
		return "", win.SetTimescale(scale)
	default:
		return "", fmt.Errorf("time %q: %w", op, ErrWrongArgument)
	}
}

func (i *Interpreter) viewCommand(_ context.Context, a *args) (string, error) {
	if err := i.requireWindow(); err != nil {
		return "", err
	}
	win := i.ctx.Window
	target, err := a.keyword("view")
	if err != nil {
		return "", err
	}
	switch target {
	case "zoom":
		op, err := getOrSet(a, "view zoom")
		if err != nil {
			return "", err
		}
		if op == "get" {
			return formatFloat(win.Zoom()), nil
		}
		raw, err := a.next("view zoom set")
		if err != nil {
			return "", err
		}
		z, err := parseFloat(raw)
		if err != nil {
			return "", err
		}
		return "", win.SetZoom(z)
	case "position":
		op, err := a.keyword("view position")
		if err != nil {
			return "", err
		}
		if op == "get" {
			return formatVector(win.Pan()), nil
		}
		if op != "set" && op != "move" {
			return "", fmt.Errorf("view position %q: %w", op, ErrWrongArgument)
		}
		raw, err := a.next("view position " + op)
		if err != nil {
			return "", err
		}
		v, err := parseVector(raw)
		if err != nil {
			return "", err
		}
		if op == "set" {
			win.SetPan(v)
		} else {
			win.MovePan(v)
		}
		return "", nil
	default:
		return "", fmt.Errorf("view %q: %w", target, ErrWrongArgument)
	}
}

func (i *Interpreter) ballsCommand(ctx context.Context, a *args) (string, error) {
	if err := i.requireWorld(); err != nil {
		return "", err
	}
	op, err := a.keyword("balls")
	if err != nil {
		return "", err
	}
	switch op {
	case "get":
		return i.describeBalls(i.now()), nil
	case "new":
		return i.newBall(ctx, a.rest())
	case "delete", "remove":
		raw, err := a.next("balls delete")
		if err != nil {
			return "", err
		}
		id, err := parseInt(raw)
		if err != nil {
			return "", err
		}
		if err := i.ctx.World.RemoveBall(id); err != nil {
			return "", err
		}
		t := i.now()
		i.restart(t)
		lifecycle.BallRemoved(ctx, i.ctx.Publisher, int64(t), logging.BallRef(id), nil)
		return fmt.Sprintf("ball %d removed", id), nil
	case "clear":
		balls := i.ctx.World.Balls()
		i.ctx.World.Clear()
		t := i.now()
		i.restart(t)
		for _, b := range balls {
			lifecycle.BallRemoved(ctx, i.ctx.Publisher, int64(t), logging.BallRef(b.ID()), nil)
		}
		return fmt.Sprintf("%d balls removed", len(balls)), nil
	default:
		return "", fmt.Errorf("balls %q: %w", op, ErrWrongArgument)
	}
}

func (i *Interpreter) newBall(ctx context.Context, params []string) (string, error) {
	spec := world.DefaultBallSpec()
	for _, param := range params {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			return "", fmt.Errorf("%q: expected key=value: %w", param, ErrWrongParameter)
		}
		var err error
		switch strings.ToLower(key) {
		case "radius":
			spec.Radius, err = parseFloat(value)
		case "mass":
			spec.Mass, err = parseFloat(value)
		case "position":
			spec.Position, err = parseVector(value)
		case "velocity":
			spec.Velocity, err = parseVector(value)
		case "color":
			spec.Color, err = parseColor(value)
		case "tags":
			spec.Tags = world.ParseTags(value)
		default:
			err = fmt.Errorf("%q: %w", key, ErrWrongParameter)
		}
		if err != nil {
			return "", err
		}
	}

	t := i.now()
	b, err := i.ctx.World.NewBall(spec, t)
	if err != nil {
		return "", err
	}
	i.restart(t)
	lifecycle.BallCreated(ctx, i.ctx.Publisher, int64(t), logging.BallRef(b.ID()), lifecycle.BallCreatedPayload{
		Radius: spec.Radius,
		Mass:   spec.Mass,
		X:      spec.Position.X(),
		Y:      spec.Position.Y(),
		VX:     spec.Velocity.X(),
		VY:     spec.Velocity.Y(),
		Tags:   b.Tags(),
	}, nil)
	return fmt.Sprintf("ball %d created", b.ID()), nil
}

func (i *Interpreter) describeBalls(t simtime.Time) string {
	balls := i.ctx.World.Balls()
	if len(balls) == 0 {
		return "no balls"
	}
	var sb strings.Builder
	for n, b := range balls {
		if n > 0 {
			sb.WriteByte('\n')
		}
		k, err := b.LastKeyframeBefore(t)
		if err != nil {
			fmt.Fprintf(&sb, "ID: %-8d not present at %s", b.ID(), t)
			continue
		}
		c := b.Color()
		fmt.Fprintf(&sb, "ID: %-8d radius: %-12s mass: %-12s position: %-24s velocity: %-24s color: %d; %d; %d",
			b.ID(), formatFloat(b.Radius()), formatFloat(b.Mass()),
			formatVector(k.PositionAt(t)), formatVector(k.Velocity), c.R, c.G, c.B)
		if tags := b.TagsString(); tags != "" {
			fmt.Fprintf(&sb, " tags: %s", tags)
		}
	}
	return sb.String()
}

func (i *Interpreter) boundsCommand(ctx context.Context, a *args) (string, error) {
	if err := i.requireWorld(); err != nil {
		return "", err
	}
	op, err := getOrSet(a, "bounds")
	if err != nil {
		return "", err
	}
	if op == "get" {
		r, ok := i.ctx.World.Bounds()
		if !ok {
			return "none", nil
		}
		return strings.Join([]string{formatFloat(r.X), formatFloat(r.Y), formatFloat(r.W), formatFloat(r.H)}, listSeparator+" "), nil
	}

	raw, err := a.next("bounds set")
	if err != nil {
		return "", err
	}
	t := i.now()
	if strings.EqualFold(raw, "none") {
		i.ctx.World.ClearBounds()
		i.restart(t)
		lifecycle.BoundsChanged(ctx, i.ctx.Publisher, int64(t), lifecycle.BoundsChangedPayload{Cleared: true}, nil)
		return "", nil
	}
	r, err := parseRect(raw)
	if err != nil {
		return "", err
	}
	if err := i.ctx.World.SetBounds(r, t); err != nil {
		return "", err
	}
	i.restart(t)
	lifecycle.BoundsChanged(ctx, i.ctx.Publisher, int64(t), lifecycle.BoundsChangedPayload{X: r.X, Y: r.Y, W: r.W, H: r.H}, nil)
	return "", nil
}

func (i *Interpreter) physicsCommand(_ context.Context, a *args) (string, error) {
	if err := i.requirePhysics(); err != nil {
		return "", err
	}
	eng := i.ctx.Physics
	setting, err := a.keyword("physics")
	if err != nil {
		return "", err
	}
	if setting == "time" {
		raw, _ := a.optional()
		unit, err := simtime.ParseUnit(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrWrongArgument, err)
		}
		return eng.SimulationTime().Format(unit), nil
	}

	var (
		get func() string
		set func(string) error
	)
	switch setting {
	case "step", "timestep":
		get = func() string { return eng.Timestep().String() }
		set = func(raw string) error {
			t, err := parseTime(raw)
			if err != nil {
				return err
			}
			return eng.SetTimestep(t)
		}
	case "runahead":
		get = func() string { return eng.Runahead().String() }
		set = func(raw string) error {
			t, err := parseTime(raw)
			if err != nil {
				return err
			}
			return eng.SetRunahead(t)
		}
	case "iterations":
		get = func() string { return fmt.Sprint(eng.MaxCollisionIterations()) }
		set = func(raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			return eng.SetMaxCollisionIterations(int(n))
		}
	case "margin":
		get = func() string { return formatFloat(eng.CollisionErrMargin()) }
		set = func(raw string) error {
			m, err := parseFloat(raw)
			if err != nil {
				return err
			}
			return eng.SetCollisionErrMargin(m)
		}
	default:
		return "", fmt.Errorf("physics %q: %w", setting, ErrWrongArgument)
	}

	op, err := getOrSet(a, "physics "+setting)
	if err != nil {
		return "", err
	}
	if op == "get" {
		return get(), nil
	}
	raw, err := a.next("physics " + setting + " set")
	if err != nil {
		return "", err
	}
	return "", set(raw)
}

func (i *Interpreter) energyCommand(_ context.Context, a *args) (string, error) {
	if err := i.requirePhysics(); err != nil {
		return "", err
	}
	eng := i.ctx.Physics
	op, err := a.keyword("energy")
	if err != nil {
		return "", err
	}
	switch op {
	case "get":
		tag, _ := a.optional()
		if strings.EqualFold(tag, "all") {
			tag = ""
		}
		return formatFloat(eng.KineticEnergy(i.now(), tag)) + " J", nil
	case "log":
		action, err := a.keyword("energy log")
		if err != nil {
			return "", err
		}
		switch action {
		case "start":
			name, err := a.next("energy log start file")
			if err != nil {
				return "", err
			}
			raw, err := a.next("energy log start interval")
			if err != nil {
				return "", err
			}
			interval, err := parseTime(raw)
			if err != nil {
				return "", err
			}
			var tags []string
			for _, tok := range a.rest() {
				if strings.EqualFold(tok, "all") {
					tags = append(tags, "")
					continue
				}
				tags = append(tags, world.ParseTags(tok)...)
			}
			path, err := eng.BeginLoggingKineticEnergy(name, interval, tags)
			if err != nil {
				return "", err
			}
			return "logging kinetic energy to " + path, nil
		case "stop":
			if err := eng.StopLoggingKineticEnergy(); err != nil {
				return "", err
			}
			return "kinetic energy log closed", nil
		default:
			return "", fmt.Errorf("energy log %q: %w", action, ErrWrongArgument)
		}
	default:
		return "", fmt.Errorf("energy %q: %w", op, ErrWrongArgument)
	}
}

func (i *Interpreter) scriptCommand(ctx context.Context, a *args) (string, error) {
	parts := a.rest()
	if len(parts) == 0 {
		return "", fmt.Errorf("script file: %w", ErrMissingArgument)
	}
	if i.scriptDepth >= maxScriptDepth {
		return "", fmt.Errorf("depth %d: %w", i.scriptDepth, ErrScriptDepth)
	}
	i.scriptDepth++
	defer func() { i.scriptDepth-- }()

	outputs, err := script.RunFile(ctx, strings.Join(parts, " "), i.Execute)
	return strings.Join(outputs, "\n"), err
}
