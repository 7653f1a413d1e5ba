package simtime

import (
	"errors"
	"testing"
	"time"
)

func TestConstructorsAgree(t *testing.T) {
	if got := MS(2); got != NS(2_000_000) {
		t.Fatalf("expected 2ms == 2000000ns, got %d", got)
	}
	if got := Seconds(1.5); got != MS(1500) {
		t.Fatalf("expected 1.5s == 1500ms, got %d", got)
	}
	if got := FromDuration(3 * time.Millisecond); got != MS(3) {
		t.Fatalf("expected 3ms from duration, got %d", got)
	}
	if got := MS(7).MS(); got != 7 {
		t.Fatalf("expected 7ms, got %d", got)
	}
	if got := Seconds(0.25).Seconds(); got != 0.25 {
		t.Fatalf("expected 0.25s, got %v", got)
	}
}

func TestHalfFloorsAtOneNanosecond(t *testing.T) {
	cases := []struct {
		in   Time
		want Time
	}{
		{MS(2), MS(1)},
		{NS(3), NS(1)},
		{NS(2), NS(1)},
		{NS(1), NS(1)},
		{0, NS(1)},
		{NS(-8), NS(1)},
	}
	for _, tc := range cases {
		if got := tc.in.Half(); got != tc.want {
			t.Fatalf("expected Half(%d) = %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestParse(t *testing.T) {
	cases := map[string]Time{
		"10ns":  NS(10),
		"5ms":   MS(5),
		"1.5s":  Seconds(1.5),
		"2":     Second * 2,
		" 3MS ": MS(3),
		"-1s":   -Second,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error parsing %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("expected %q to parse as %d, got %d", raw, want, got)
		}
	}

	if _, err := Parse(""); !errors.Is(err, ErrEmptyTime) {
		t.Fatalf("expected ErrEmptyTime, got %v", err)
	}
	for _, raw := range []string{"abc", "1.5ms", "ns", "NaN"} {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("expected ErrInvalidTime for %q, got %v", raw, err)
		}
	}
}

func TestFormatAndString(t *testing.T) {
	if got := MS(1500).Format(UnitS); got != "1.5s" {
		t.Fatalf("expected 1.5s, got %q", got)
	}
	if got := MS(1500).Format(UnitMS); got != "1500ms" {
		t.Fatalf("expected 1500ms, got %q", got)
	}
	if got := NS(12).Format(UnitNS); got != "12ns" {
		t.Fatalf("expected 12ns, got %q", got)
	}
	if got := (2 * Second).String(); got != "2s" {
		t.Fatalf("expected 2s, got %q", got)
	}
	if got := MS(3).String(); got != "3ms" {
		t.Fatalf("expected 3ms, got %q", got)
	}
	if _, err := ParseUnit("hours"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
}
