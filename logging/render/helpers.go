package render

import (
	"context"

	"github.com/the-cubic-cat/sfera/logging"
)

const (
	// EventTimeInaccessible is emitted when the render cursor points before
	// a ball's first keyframe and playback is paused to recover.
	EventTimeInaccessible logging.EventType = "render.time_inaccessible"
	// EventFrameSinkFailed is emitted when a frame consumer returns an error.
	EventFrameSinkFailed logging.EventType = "render.frame_sink_failed"
)

type TimeInaccessiblePayload struct {
	RequestedNS int64  `json:"requestedNs"`
	ResetNS     int64  `json:"resetNs"`
	Error       string `json:"error"`
}

type FrameSinkFailedPayload struct {
	Sink  string `json:"sink"`
	Error string `json:"error"`
}

// TimeInaccessible publishes a playback recovery event.
func TimeInaccessible(ctx context.Context, pub logging.Publisher, simTime int64, actor logging.EntityRef, payload TimeInaccessiblePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTimeInaccessible,
		SimTime:  simTime,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryRender,
		Payload:  payload,
		Extra:    extra,
	})
}

// FrameSinkFailed publishes a frame delivery failure.
func FrameSinkFailed(ctx context.Context, pub logging.Publisher, simTime int64, payload FrameSinkFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameSinkFailed,
		SimTime:  simTime,
		Actor:    logging.EntityRef{Kind: logging.EntityKindRenderer},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryRender,
		Payload:  payload,
		Extra:    extra,
	})
}
