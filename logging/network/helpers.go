package network

import (
	"context"

	"github.com/the-cubic-cat/sfera/logging"
)

const (
	// EventSpectatorJoined is emitted when a websocket client subscribes to frames.
	EventSpectatorJoined logging.EventType = "network.spectator_joined"
	// EventSpectatorLeft is emitted when a websocket client disconnects.
	EventSpectatorLeft logging.EventType = "network.spectator_left"
	// EventSpectatorDropped is emitted when a frame write fails and the client is cut off.
	EventSpectatorDropped logging.EventType = "network.spectator_dropped"
)

// SpectatorPayload captures the spectator count after the change.
type SpectatorPayload struct {
	Spectators int    `json:"spectators"`
	Reason     string `json:"reason,omitempty"`
}

// SpectatorRef identifies a websocket client in event actors.
func SpectatorRef(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindSpectator}
}

// SpectatorJoined publishes a debug event when a client subscribes.
func SpectatorJoined(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SpectatorPayload) {
	publish(ctx, pub, EventSpectatorJoined, logging.SeverityDebug, actor, payload)
}

// SpectatorLeft publishes a debug event when a client disconnects.
func SpectatorLeft(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SpectatorPayload) {
	publish(ctx, pub, EventSpectatorLeft, logging.SeverityDebug, actor, payload)
}

// SpectatorDropped publishes a warning when a client is dropped after a failed write.
func SpectatorDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SpectatorPayload) {
	publish(ctx, pub, EventSpectatorDropped, logging.SeverityWarn, actor, payload)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, actor logging.EntityRef, payload SpectatorPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
