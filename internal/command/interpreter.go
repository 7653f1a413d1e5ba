// Package command interprets the text command language shared by the
// terminal prompt, websocket clients and script files.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/the-cubic-cat/sfera/internal/physics"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
)

// maxScriptDepth bounds scripts that run scripts.
const maxScriptDepth = 8

// Context carries everything a command may touch. Commands that edit the
// world must run on the goroutine that drives the engine.
type Context struct {
	World     *world.World
	Physics   *physics.Engine
	Window    *render.Window
	Stop      func()
	Logger    telemetry.Logger
	Publisher logging.Publisher
}

type Interpreter struct {
	ctx         Context
	scriptDepth int
}

func New(ctx Context) *Interpreter {
	if ctx.Publisher == nil {
		ctx.Publisher = logging.NopPublisher()
	}
	if ctx.Logger == nil {
		ctx.Logger = telemetry.LoggerFunc(nil)
	}
	if ctx.World == nil && ctx.Physics != nil {
		ctx.World = ctx.Physics.World()
	}
	return &Interpreter{ctx: ctx}
}

type handler func(ctx context.Context, a *args) (string, error)

// Execute runs one command line and returns its printable output. Keywords
// are case-insensitive; file names and tags are taken verbatim. The legacy
// "graphics" and "world" group prefixes are accepted and ignored.
func (i *Interpreter) Execute(ctx context.Context, line string) (string, error) {
	if i == nil {
		return "", nil
	}
	a := args(strings.Fields(line))
	if len(a) == 0 {
		return "", nil
	}
	group, _ := a.keyword("command")
	if group == "graphics" || group == "world" {
		var err error
		if group, err = a.keyword("command"); err != nil {
			return "", err
		}
	}

	var h handler
	switch group {
	case "time":
		h = i.timeCommand
	case "balls":
		h = i.ballsCommand
	case "bounds":
		h = i.boundsCommand
	case "view":
		h = i.viewCommand
	case "physics":
		h = i.physicsCommand
	case "energy":
		h = i.energyCommand
	case "script":
		h = i.scriptCommand
	case "help":
		return helpText, nil
	case "quit", "exit":
		if i.ctx.Stop != nil {
			i.ctx.Stop()
		}
		return "bye", nil
	default:
		return "", fmt.Errorf("%q: %w\n%s", group, ErrWrongArgument, helpText)
	}
	out, err := h(ctx, &a)
	if err != nil {
		return out, err
	}
	if len(a) > 0 {
		return out, fmt.Errorf("unexpected %q: %w", strings.Join(a, " "), ErrWrongArgument)
	}
	return out, nil
}

const helpText = `Available commands:
  time get [ns|ms|s] | time set <t> | time move <t> | time scale get | time scale set <x>
  balls get | balls new [radius=] [mass=] [position=x;y] [velocity=x;y] [color=r;g;b[;a]] [tags=a;b]
  balls delete <id> | balls clear
  bounds get | bounds set x;y;w;h | bounds set none
  view zoom get | view zoom set <x> | view position get | view position set x;y | view position move x;y
  physics time [ns|ms|s] | physics step get|set <t> | physics runahead get|set <t>
  physics iterations get|set <n> | physics margin get|set <x>
  energy get [tag] | energy log start <file> <interval> [tag...] | energy log stop
  script <file> | help | quit
Times accept ns, ms and s suffixes; a bare number is seconds.`

func getOrSet(a *args, what string) (string, error) {
	op, err := a.keyword(what)
	if err != nil {
		return "", err
	}
	if op != "get" && op != "set" {
		return "", fmt.Errorf("%s %q: %w", what, op, ErrWrongArgument)
	}
	return op, nil
}
