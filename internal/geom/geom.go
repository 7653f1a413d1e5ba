// Package geom holds the 2D primitives shared by the world and the physics
// engine. Screen convention: x grows rightwards, y grows downwards.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec is a 2D vector in world units.
type Vec = mgl64.Vec2

// V is shorthand for constructing a Vec.
func V(x, y float64) Vec {
	return Vec{x, y}
}

// Axis selects a vector component.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Direction names a rectangle edge.
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "none"
	}
}

// FlipVector negates the component selected by axis.
func FlipVector(v Vec, axis Axis) Vec {
	if axis == AxisX {
		return Vec{-v[0], v[1]}
	}
	return Vec{v[0], -v[1]}
}

// Rotate turns v counter-clockwise (in a y-up frame) by angle radians.
func Rotate(v Vec, angle float64) Vec {
	return mgl64.Rotate2D(angle).Mul2x1(v)
}

// ReflectVector mirrors v across the line through the origin at angle
// radians.
func ReflectVector(v Vec, angle float64) Vec {
	local := Rotate(v, -angle)
	return Rotate(FlipVector(local, AxisY), angle)
}

// InRange reports whether p lies between a and b regardless of their order.
// Exactly one of the two bounds is inclusive.
func InRange(p, a, b float64) bool {
	return (p < a) != (p < b)
}

// Rect is an axis-aligned rectangle anchored at (X, Y). W and H may be
// negative.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// R is shorthand for constructing a Rect.
func R(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// GrowBy moves every edge outward by margin (inward when margin is
// negative), respecting the sign of each extent.
func (r Rect) GrowBy(margin float64) Rect {
	mw := margin * math.Copysign(1, r.W)
	mh := margin * math.Copysign(1, r.H)
	return Rect{
		X: r.X - mw,
		Y: r.Y - mh,
		W: r.W + 2*mw,
		H: r.H + 2*mh,
	}
}

func (r Rect) Contains(p Vec) bool {
	return InRange(p[0], r.X, r.X+r.W) && InRange(p[1], r.Y, r.Y+r.H)
}

func (r Rect) Top() float64 {
	return math.Min(r.Y, r.Y+r.H)
}

func (r Rect) Bottom() float64 {
	return math.Max(r.Y, r.Y+r.H)
}

func (r Rect) Left() float64 {
	return math.Min(r.X, r.X+r.W)
}

func (r Rect) Right() float64 {
	return math.Max(r.X, r.X+r.W)
}

func (r Rect) Center() Vec {
	return Vec{r.X + r.W/2, r.Y + r.H/2}
}

func (r Rect) Scale(f float64) Rect {
	return Rect{X: r.X * f, Y: r.Y * f, W: r.W * f, H: r.H * f}
}

func (r Rect) Translate(d Vec) Rect {
	return Rect{X: r.X + d[0], Y: r.Y + d[1], W: r.W, H: r.H}
}

// Overlaps reports whether the normalized extents of r and o intersect.
func (r Rect) Overlaps(o Rect) bool {
	return r.Left() <= o.Right() && o.Left() <= r.Right() &&
		r.Top() <= o.Bottom() && o.Top() <= r.Bottom()
}

// Square returns the box of side 2*half centred on c.
func Square(c Vec, half float64) Rect {
	return Rect{X: c[0] - half, Y: c[1] - half, W: 2 * half, H: 2 * half}
}

// IsFinite reports whether both components are finite numbers.
func IsFinite(v Vec) bool {
	return !math.IsNaN(v[0]) && !math.IsInf(v[0], 0) &&
		!math.IsNaN(v[1]) && !math.IsInf(v[1], 0)
}
