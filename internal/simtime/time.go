// Package simtime defines the simulation clock value used by the world,
// the physics engine and the renderer.
package simtime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Time is a point on (or a span of) the simulation timeline in nanoseconds.
// Arithmetic and comparison use the native integer operators.
type Time int64

const (
	Nanosecond  Time = 1
	Millisecond Time = 1_000_000
	Second      Time = 1_000_000_000
)

var (
	ErrEmptyTime   = errors.New("empty_time")
	ErrInvalidTime = errors.New("invalid_time")
)

// NS constructs a Time from whole nanoseconds.
func NS(ns int64) Time {
	return Time(ns)
}

// MS constructs a Time from whole milliseconds.
func MS(ms int64) Time {
	return Time(ms) * Millisecond
}

// Seconds constructs a Time from fractional seconds, rounded to the nearest
// nanosecond.
func Seconds(s float64) Time {
	return Time(math.Round(s * float64(Second)))
}

// FromDuration converts a wall-clock duration into simulation time.
func FromDuration(d time.Duration) Time {
	return Time(d.Nanoseconds())
}

func (t Time) NS() int64 {
	return int64(t)
}

// MS truncates towards zero.
func (t Time) MS() int64 {
	return int64(t / Millisecond)
}

// Seconds is lossy for very large values.
func (t Time) Seconds() float64 {
	return float64(t) / float64(Second)
}

func (t Time) Duration() time.Duration {
	return time.Duration(t)
}

// Half returns t/2 but never less than one nanosecond, so repeated halving
// of a search step always terminates at the resolution floor.
func (t Time) Half() Time {
	h := t / 2
	if h < Nanosecond {
		return Nanosecond
	}
	return h
}

func (t Time) String() string {
	switch {
	case t == 0:
		return "0s"
	case t%Second == 0:
		return strconv.FormatInt(int64(t/Second), 10) + "s"
	case t%Millisecond == 0:
		return strconv.FormatInt(int64(t/Millisecond), 10) + "ms"
	default:
		return strconv.FormatInt(int64(t), 10) + "ns"
	}
}

// Unit selects the resolution used by Format.
type Unit string

const (
	UnitNS Unit = "ns"
	UnitMS Unit = "ms"
	UnitS  Unit = "s"
)

// ParseUnit accepts ns, ms and s. An empty string selects seconds.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "s":
		return UnitS, nil
	case "ms":
		return UnitMS, nil
	case "ns":
		return UnitNS, nil
	default:
		return "", fmt.Errorf("%w: unknown unit %q", ErrInvalidTime, raw)
	}
}

// Format renders t in the requested unit, including the suffix.
func (t Time) Format(unit Unit) string {
	switch unit {
	case UnitNS:
		return strconv.FormatInt(t.NS(), 10) + "ns"
	case UnitMS:
		return strconv.FormatInt(t.MS(), 10) + "ms"
	default:
		return strconv.FormatFloat(t.Seconds(), 'f', -1, 64) + "s"
	}
}

// Parse reads "<int>ns", "<int>ms", "<float>s" or a bare "<float>" which is
// taken as seconds.
func Parse(raw string) (Time, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, ErrEmptyTime
	}
	switch {
	case strings.HasSuffix(value, "ns"):
		n, err := strconv.ParseInt(strings.TrimSuffix(value, "ns"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		return NS(n), nil
	case strings.HasSuffix(value, "ms"):
		n, err := strconv.ParseInt(strings.TrimSuffix(value, "ms"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		return MS(n), nil
	case strings.HasSuffix(value, "s"):
		value = strings.TrimSuffix(value, "s")
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return Seconds(f), nil
}
