// Package script loads command scripts: one command per line, blank lines
// and lines starting with '#' ignored.
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrEmptyPath = errors.New("empty_script_path")

// Line is a command with its 1-based position in the source.
type Line struct {
	Number int
	Text   string
}

// ExecFunc runs a single command and returns its printable output.
type ExecFunc func(ctx context.Context, line string) (string, error)

// LineError reports the command that stopped a script.
type LineError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Parse reads commands from r.
func Parse(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	number := 0
	for scanner.Scan() {
		number++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, Line{Number: number, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func Load(path string) ([]Line, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	lines, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return lines, nil
}

// RunFile executes the script at path line by line and stops at the first
// failing command. The outputs of the commands that ran are returned.
func RunFile(ctx context.Context, path string, exec ExecFunc) ([]string, error) {
	lines, err := Load(path)
	if err != nil {
		return nil, err
	}
	outputs := make([]string, 0, len(lines))
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		out, err := exec(ctx, line.Text)
		if err != nil {
			return outputs, &LineError{Path: path, Line: line.Number, Text: line.Text, Err: err}
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}
	return outputs, nil
}
