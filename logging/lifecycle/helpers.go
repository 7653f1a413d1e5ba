package lifecycle

import (
	"context"

	"github.com/the-cubic-cat/sfera/logging"
)

const (
	// EventBallCreated is emitted when a ball is placed in the world.
	EventBallCreated logging.EventType = "lifecycle.ball_created"
	// EventBallRemoved is emitted when a ball leaves the world.
	EventBallRemoved logging.EventType = "lifecycle.ball_removed"
	// EventBoundsChanged is emitted when the boundary is set or cleared.
	EventBoundsChanged logging.EventType = "lifecycle.bounds_changed"
	// EventCommandRejected is emitted when a console command fails.
	EventCommandRejected logging.EventType = "lifecycle.command_rejected"
)

// BallCreatedPayload captures placement metadata for a new ball.
type BallCreatedPayload struct {
	Radius float64  `json:"radius"`
	Mass   float64  `json:"mass"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	VX     float64  `json:"vx"`
	VY     float64  `json:"vy"`
	Tags   []string `json:"tags,omitempty"`
}

// BoundsChangedPayload carries the new boundary; Cleared is set when it was
// removed.
type BoundsChangedPayload struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
	Cleared bool    `json:"cleared,omitempty"`
}

// CommandRejectedPayload captures why a command failed.
type CommandRejectedPayload struct {
	Source string `json:"source"`
	Line   string `json:"line"`
	Reason string `json:"reason"`
	Kind   string `json:"kind,omitempty"`
}

// BallCreated publishes a ball creation event.
func BallCreated(ctx context.Context, pub logging.Publisher, simTime int64, actor logging.EntityRef, payload BallCreatedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBallCreated,
		SimTime:  simTime,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryWorld,
		Payload:  payload,
		Extra:    extra,
	})
}

// BallRemoved publishes a ball removal event.
func BallRemoved(ctx context.Context, pub logging.Publisher, simTime int64, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBallRemoved,
		SimTime:  simTime,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryWorld,
		Extra:    extra,
	})
}

// BoundsChanged publishes a boundary change.
func BoundsChanged(ctx context.Context, pub logging.Publisher, simTime int64, payload BoundsChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBoundsChanged,
		SimTime:  simTime,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryWorld,
		Payload:  payload,
		Extra:    extra,
	})
}

// CommandRejected publishes a failed command.
func CommandRejected(ctx context.Context, pub logging.Publisher, simTime int64, payload CommandRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		SimTime:  simTime,
		Actor:    logging.EntityRef{Kind: logging.EntityKindConsole},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCommand,
		Payload:  payload,
		Extra:    extra,
	})
}
