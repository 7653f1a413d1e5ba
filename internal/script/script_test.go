package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	src := "# scene\n\nbounds set -5;-5;10;10\n   # indented comment\n  balls new radius=0.5  \n"
	lines, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 commands, got %d: %+v", len(lines), lines)
	}
	if lines[0].Number != 3 || lines[0].Text != "bounds set -5;-5;10;10" {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].Number != 5 || lines[1].Text != "balls new radius=0.5" {
		t.Fatalf("unexpected second line %+v", lines[1])
	}
}

func TestRunFileStopsAtFirstError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	boom := errors.New("boom")
	var ran []string
	outputs, err := RunFile(context.Background(), path, func(_ context.Context, line string) (string, error) {
		ran = append(ran, line)
		if line == "two" {
			return "", boom
		}
		return "ok " + line, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	var lineErr *LineError
	if !errors.As(err, &lineErr) || lineErr.Line != 2 {
		t.Fatalf("expected LineError for line 2, got %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected execution to stop after line 2, ran %v", ran)
	}
	if len(outputs) != 1 || outputs[0] != "ok one" {
		t.Fatalf("expected output of first command, got %v", outputs)
	}
}

func TestRunFileHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.txt")
	if err := os.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunFile(ctx, path, func(context.Context, string) (string, error) {
		t.Fatalf("expected no command to run")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load("  "); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}
