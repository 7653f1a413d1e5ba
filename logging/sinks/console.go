package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/the-cubic-cat/sfera/logging"
)

// ConsoleSink prints one human-readable line per event.
type ConsoleSink struct {
	logger *log.Logger
	closer io.Closer
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
}

// NewConsoleFileSink appends console lines to path.
func NewConsoleFileSink(path string, cfg logging.ConsoleConfig) (*ConsoleSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open console log %s: %w", path, err)
	}
	sink := NewConsoleSink(f, cfg)
	sink.closer = f
	return sink, nil
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	payload := formatPayload(event.Payload)
	targets := formatTargets(event.Targets)
	s.logger.Printf("[%s] simTime=%s actor=%s severity=%s%s%s", event.Type, formatSimTime(event.SimTime), formatEntity(event.Actor), event.Severity, targets, payload)
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func formatSimTime(ns int64) string {
	return strconv.FormatFloat(float64(ns)/1e9, 'f', 9, 64) + "s"
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
