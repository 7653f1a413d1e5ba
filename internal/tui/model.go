// Package tui draws render frames in the terminal and hosts the command
// prompt.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/sim"
)

const (
	defaultCols     = 60
	defaultRows     = 20
	statsWidth      = 38
	energyCapacity  = 120
	viewSpan        = 12.0
	zoomStep        = 1.25
	timescaleFactor = 2.0
)

// Submitter runs a command line on the physics goroutine.
type Submitter interface {
	Submit(ctx context.Context, source, line string) (string, error)
}

// Model is the bubbletea model for the simulator view.
type Model struct {
	window *render.Window
	submit Submitter

	frame     render.Frame
	hasFrame  bool
	energy    []float64
	canvas    *Canvas
	input     textinput.Model
	prompting bool
	pending   bool
	output    string
	failed    bool
	resume    float64
	width     int
	height    int
	quitting  bool
}

// frameMsg carries a frame from the render loop into the program.
type frameMsg render.Frame

type commandResultMsg struct {
	line   string
	output string
	err    error
}

func New(window *render.Window, submit Submitter) Model {
	ti := textinput.New()
	ti.Prompt = ": "
	ti.Placeholder = "help"
	ti.CharLimit = 256
	ti.Width = defaultCols

	return Model{
		window: window,
		submit: submit,
		energy: make([]float64, 0, energyCapacity),
		canvas: NewCanvas(defaultCols, defaultRows),
		input:  ti,
		resume: 1,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.SetWindowTitle("sfera")
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)

	case frameMsg:
		m.frame = render.Frame(msg)
		m.hasFrame = true
		m.energy = append(m.energy, msg.KineticEnergy)
		if len(m.energy) > energyCapacity {
			m.energy = m.energy[len(m.energy)-energyCapacity:]
		}
		return m, nil

	case commandResultMsg:
		m.pending = false
		m.failed = msg.err != nil
		switch {
		case msg.err != nil:
			m.output = fmt.Sprintf("%s: %v", msg.line, msg.err)
		case msg.output == "":
			m.output = msg.line
		default:
			m.output = msg.output
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		cols := msg.Width - statsWidth - 4
		rows := msg.Height - 4
		if cols < 10 {
			cols = 10
		}
		if rows < 5 {
			rows = 5
		}
		m.canvas.Resize(cols, rows)
		m.input.Width = cols
		return m, nil
	}

	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.input.Blur()
		m.prompting = false
		if line == "" {
			return m, nil
		}
		m.pending = true
		return m, m.runCommand(line)
	case "esc":
		m.input.Reset()
		m.input.Blur()
		m.prompting = false
		return m, nil
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case ":", "/":
		m.prompting = true
		focus := m.input.Focus()
		return m, tea.Batch(focus, textinput.Blink)
	case " ":
		m.togglePause()
	case "+", "=":
		m.scaleZoom(zoomStep)
	case "-", "_":
		m.scaleZoom(1 / zoomStep)
	case "[":
		m.scaleTimescale(1 / timescaleFactor)
	case "]":
		m.scaleTimescale(timescaleFactor)
	case "up", "k":
		m.pan(geom.V(0, 1))
	case "down", "j":
		m.pan(geom.V(0, -1))
	case "left", "h":
		m.pan(geom.V(-1, 0))
	case "right", "l":
		m.pan(geom.V(1, 0))
	case "0":
		if m.window != nil {
			m.window.SetPan(geom.V(0, 0))
			m.window.SetZoom(1)
		}
	}
	return m, nil
}

func (m Model) runCommand(line string) tea.Cmd {
	submit := m.submit
	return func() tea.Msg {
		if submit == nil {
			return commandResultMsg{line: line, err: fmt.Errorf("no command executor")}
		}
		out, err := submit.Submit(context.Background(), sim.SourceConsole, line)
		return commandResultMsg{line: line, output: out, err: err}
	}
}

func (m *Model) togglePause() {
	if m.window == nil {
		return
	}
	if scale := m.window.Timescale(); scale > 0 {
		m.resume = scale
		m.window.SetTimescale(0)
		return
	}
	if m.resume <= 0 {
		m.resume = 1
	}
	m.window.SetTimescale(m.resume)
}

func (m *Model) scaleZoom(f float64) {
	if m.window == nil {
		return
	}
	m.window.SetZoom(m.window.Zoom() * f)
}

func (m *Model) scaleTimescale(f float64) {
	if m.window == nil {
		return
	}
	scale := m.window.Timescale()
	if scale == 0 {
		m.resume *= f
		return
	}
	m.window.SetTimescale(scale * f)
}

// pan moves the view by a tenth of the visible span.
func (m *Model) pan(dir geom.Vec) {
	if m.window == nil {
		return
	}
	step := viewSpan / 10 / m.window.Zoom()
	m.window.MovePan(dir.Mul(step))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	m.draw()
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		canvasStyle.Render(m.canvas.String()),
		statsStyle.Render(m.stats()),
	)

	var footer string
	switch {
	case m.prompting:
		footer = m.input.View()
	case m.pending:
		footer = mutedStyle.Render("running…")
	case m.output != "" && m.failed:
		footer = errorStyle.Render(m.output)
	case m.output != "":
		footer = outputStyle.Render(m.output)
	default:
		footer = helpStyle.Render(helpText)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// draw projects the current frame onto the canvas. World y grows upwards.
func (m Model) draw() {
	m.canvas.Clear()
	if !m.hasFrame {
		return
	}
	dw, dh := float64(m.canvas.DotWidth()), float64(m.canvas.DotHeight())
	zoom := m.frame.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	scale := zoom * math.Min(dw, dh) / viewSpan
	project := func(p geom.Vec) (float64, float64) {
		x := (p.X()-m.frame.Pan.X())*scale + dw/2
		y := dh/2 - (p.Y()-m.frame.Pan.Y())*scale
		return x, y
	}

	if b := m.frame.Bounds; b != nil {
		x0, y0 := project(geom.V(b.Left(), b.Top()))
		x1, y1 := project(geom.V(b.Right(), b.Bottom()))
		corners := [][2]int{
			{int(x0), int(y0)}, {int(x1), int(y0)},
			{int(x1), int(y1)}, {int(x0), int(y1)},
		}
		for i := range corners {
			a, c := corners[i], corners[(i+1)%len(corners)]
			m.canvas.Line(a[0], a[1], c[0], c[1], boundsColor)
		}
	}

	for _, ball := range m.frame.Balls {
		x, y := project(ball.Position)
		m.canvas.Circle(x, y, ball.Radius*scale, hexColor(ball.Color.R, ball.Color.G, ball.Color.B))
	}
}

func (m Model) stats() string {
	f := m.frame
	rows := []string{
		headerStyle.Render("sfera"),
		stat("time", f.Time.String()),
		stat("computed", f.EndTime.String()),
		stat("timescale", fmt.Sprintf("%.3g", f.Timescale)),
		stat("zoom", fmt.Sprintf("%.3g", f.Zoom)),
		stat("position", fmt.Sprintf("%.3g; %.3g", f.Pan.X(), f.Pan.Y())),
		stat("balls", fmt.Sprintf("%d", len(f.Balls))),
		stat("energy", fmt.Sprintf("%.6g", f.KineticEnergy)),
	}
	if f.Timescale == 0 {
		rows = append(rows, pausedStyle.Render("paused"))
	}
	if len(m.energy) > 1 {
		graph := asciigraph.Plot(m.energy,
			asciigraph.Height(4),
			asciigraph.Width(statsWidth-12),
			asciigraph.Caption("Energy"),
		)
		rows = append(rows, graphStyle.Render(graph))
	}
	return strings.Join(rows, "\n")
}

func stat(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func hexColor(r, g, b uint8) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}
