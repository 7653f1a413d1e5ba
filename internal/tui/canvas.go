package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille dot positions (col, row) → bit offset:
//
//	(0,0)=0  (1,0)=3
//	(0,1)=1  (1,1)=4
//	(0,2)=2  (1,2)=5
//	(0,3)=6  (1,3)=7
var brailleBits = [2][4]uint{
	{0, 1, 2, 6},
	{3, 4, 5, 7},
}

// Canvas is a grid of braille cells, each a 2x4 dot block. Cells remember
// the color of the last dot set in them.
type Canvas struct {
	cols, rows int
	cells      []uint8
	colors     []lipgloss.Color
}

func NewCanvas(cols, rows int) *Canvas {
	c := &Canvas{}
	c.Resize(cols, rows)
	return c
}

func (c *Canvas) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	c.cols, c.rows = cols, rows
	c.cells = make([]uint8, cols*rows)
	c.colors = make([]lipgloss.Color, cols*rows)
}

// DotWidth and DotHeight give the canvas size in dots.
func (c *Canvas) DotWidth() int  { return c.cols * 2 }
func (c *Canvas) DotHeight() int { return c.rows * 4 }

func (c *Canvas) Clear() {
	for i := range c.cells {
		c.cells[i] = 0
		c.colors[i] = ""
	}
}

// Set lights the dot at (x, y). Dots outside the canvas are ignored.
func (c *Canvas) Set(x, y int, col lipgloss.Color) {
	if x < 0 || y < 0 || x >= c.DotWidth() || y >= c.DotHeight() {
		return
	}
	idx := (y/4)*c.cols + x/2
	c.cells[idx] |= 1 << brailleBits[x%2][y%4]
	if col != "" {
		c.colors[idx] = col
	}
}

func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x >= c.DotWidth() || y >= c.DotHeight() {
		return false
	}
	idx := (y/4)*c.cols + x/2
	return c.cells[idx]&(1<<brailleBits[x%2][y%4]) != 0
}

// Line draws a straight segment between two dots.
func (c *Canvas) Line(x0, y0, x1, y1 int, col lipgloss.Color) {
	dx := math.Abs(float64(x1 - x0))
	dy := math.Abs(float64(y1 - y0))
	steps := int(math.Max(dx, dy))
	if steps == 0 {
		c.Set(x0, y0, col)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := float64(x0) + t*float64(x1-x0)
		y := float64(y0) + t*float64(y1-y0)
		c.Set(int(math.Round(x)), int(math.Round(y)), col)
	}
}

// Circle draws the outline of a circle; radii under one dot draw a point.
func (c *Canvas) Circle(cx, cy, r float64, col lipgloss.Color) {
	if r < 1 {
		c.Set(int(math.Round(cx)), int(math.Round(cy)), col)
		return
	}
	steps := int(math.Ceil(2 * math.Pi * r))
	if steps < 8 {
		steps = 8
	}
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		c.Set(int(math.Round(cx+r*math.Cos(a))), int(math.Round(cy+r*math.Sin(a))), col)
	}
}

// String renders the canvas, coloring runs of cells that share a color.
func (c *Canvas) String() string {
	rows := make([]string, c.rows)
	for row := 0; row < c.rows; row++ {
		var line strings.Builder
		var run strings.Builder
		var runColor lipgloss.Color
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if runColor == "" {
				line.WriteString(run.String())
			} else {
				line.WriteString(lipgloss.NewStyle().Foreground(runColor).Render(run.String()))
			}
			run.Reset()
		}
		for col := 0; col < c.cols; col++ {
			idx := row*c.cols + col
			if c.colors[idx] != runColor {
				flush()
				runColor = c.colors[idx]
			}
			run.WriteRune(rune(0x2800 + int(c.cells[idx])))
		}
		flush()
		rows[row] = line.String()
	}
	return strings.Join(rows, "\n")
}
