package command

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/simtime"
)

var (
	ErrMissingArgument = errors.New("missing_argument")
	ErrWrongArgument   = errors.New("wrong_argument")
	ErrNumberExpected  = errors.New("number_expected")
	ErrWrongParameter  = errors.New("wrong_parameter")
	ErrScriptDepth     = errors.New("script_nesting_too_deep")
)

const listSeparator = ";"

// args is the unread tail of a command line.
type args []string

// next pops the following token, failing with ErrMissingArgument.
func (a *args) next(what string) (string, error) {
	if len(*a) == 0 {
		return "", fmt.Errorf("%s: %w", what, ErrMissingArgument)
	}
	tok := (*a)[0]
	*a = (*a)[1:]
	return tok, nil
}

// keyword pops the next token lowercased.
func (a *args) keyword(what string) (string, error) {
	tok, err := a.next(what)
	return strings.ToLower(tok), err
}

// optional pops the next token if any.
func (a *args) optional() (string, bool) {
	if len(*a) == 0 {
		return "", false
	}
	tok := (*a)[0]
	*a = (*a)[1:]
	return tok, true
}

func (a *args) rest() []string {
	out := []string(*a)
	*a = nil
	return out
}

func parseFloat(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q: %w", raw, ErrNumberExpected)
	}
	return f, nil
}

func parseInt(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", raw, ErrNumberExpected)
	}
	return n, nil
}

func parseTime(raw string) (simtime.Time, error) {
	t, err := simtime.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNumberExpected, err)
	}
	return t, nil
}

func parseFloats(raw string, min, max int) ([]float64, error) {
	parts := strings.Split(raw, listSeparator)
	if len(parts) < min || len(parts) > max {
		if min == max {
			return nil, fmt.Errorf("%q: expected %d values separated by %q: %w", raw, min, listSeparator, ErrWrongArgument)
		}
		return nil, fmt.Errorf("%q: expected %d to %d values separated by %q: %w", raw, min, max, listSeparator, ErrWrongArgument)
	}
	out := make([]float64, len(parts))
	for i, part := range parts {
		f, err := parseFloat(part)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// parseVector reads "x;y".
func parseVector(raw string) (geom.Vec, error) {
	v, err := parseFloats(raw, 2, 2)
	if err != nil {
		return geom.Vec{}, err
	}
	return geom.V(v[0], v[1]), nil
}

// parseRect reads "x;y;w;h".
func parseRect(raw string) (geom.Rect, error) {
	v, err := parseFloats(raw, 4, 4)
	if err != nil {
		return geom.Rect{}, err
	}
	return geom.R(v[0], v[1], v[2], v[3]), nil
}

// parseColor reads "r;g;b" or "r;g;b;a" with components in 0..255.
func parseColor(raw string) (color.RGBA, error) {
	v, err := parseFloats(raw, 3, 4)
	if err != nil {
		return color.RGBA{}, err
	}
	c := [4]uint8{0, 0, 0, 255}
	for i, f := range v {
		if f < 0 || f > 255 || f != math.Trunc(f) {
			return color.RGBA{}, fmt.Errorf("color component %v: %w", f, ErrWrongArgument)
		}
		c[i] = uint8(f)
	}
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}

func formatVector(v geom.Vec) string {
	return formatFloat(v.X()) + listSeparator + " " + formatFloat(v.Y())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
