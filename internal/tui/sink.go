package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/the-cubic-cat/sfera/internal/render"
)

// Sink forwards render frames to a running program.
type Sink struct {
	program *tea.Program
	busy    atomic.Bool
}

var _ render.FrameSink = (*Sink)(nil)

func NewSink(program *tea.Program) *Sink {
	return &Sink{program: program}
}

// DeliverFrame hands the frame to the program. A frame arriving while the
// previous one is still queued is dropped.
func (s *Sink) DeliverFrame(frame render.Frame) error {
	if s == nil || s.program == nil {
		return nil
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer s.busy.Store(false)
		s.program.Send(frameMsg(frame))
	}()
	return nil
}
