package physics

import (
	"context"

	"github.com/the-cubic-cat/sfera/logging"
)

const (
	// EventCollisionSearchExhausted is emitted when the collision-time search
	// runs out of iterations before converging.
	EventCollisionSearchExhausted logging.EventType = "physics.collision_search_exhausted"
	// EventMultipleBoundViolations is emitted when one ball touches more than
	// one boundary edge at the same instant.
	EventMultipleBoundViolations logging.EventType = "physics.multiple_bound_violations"
	// EventSimultaneousContacts is emitted when a resolution instant holds
	// more than one contact.
	EventSimultaneousContacts logging.EventType = "physics.simultaneous_contacts"
	// EventKeyframesPurged is emitted after every ball is re-baselined.
	EventKeyframesPurged logging.EventType = "physics.keyframes_purged"
	// EventEnergyLogStarted is emitted when kinetic-energy logging begins.
	EventEnergyLogStarted logging.EventType = "physics.energy_log_started"
	// EventEnergyLogStopped is emitted when kinetic-energy logging ends.
	EventEnergyLogStopped logging.EventType = "physics.energy_log_stopped"
	// EventEnergyLogRejected is emitted when a logging request is refused.
	EventEnergyLogRejected logging.EventType = "physics.energy_log_rejected"
)

// SearchExhaustedPayload describes the state the search gave up in.
type SearchExhaustedPayload struct {
	Iterations int     `json:"iterations"`
	StepNS     int64   `json:"stepNs"`
	Margin     float64 `json:"margin"`
	Hint       string  `json:"hint"`
}

type BoundViolationsPayload struct {
	Edges []string `json:"edges"`
}

type SimultaneousContactsPayload struct {
	Walls int `json:"walls"`
	Pairs int `json:"pairs"`
}

type KeyframesPurgedPayload struct {
	Balls int `json:"balls"`
}

type EnergyLogPayload struct {
	Path       string   `json:"path,omitempty"`
	IntervalNS int64    `json:"intervalNs,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Rows       int      `json:"rows,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryPhysics
	if event.Actor.Kind == "" {
		event.Actor = logging.EntityRef{Kind: logging.EntityKindEngine}
	}
	pub.Publish(ctx, event)
}

// CollisionSearchExhausted publishes a recoverable search diagnostic.
func CollisionSearchExhausted(ctx context.Context, pub logging.Publisher, simTime int64, payload SearchExhaustedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventCollisionSearchExhausted,
		SimTime:  simTime,
		Severity: logging.SeverityWarn,
		Payload:  payload,
		Extra:    extra,
	})
}

// MultipleBoundViolations publishes a corner-contact diagnostic.
func MultipleBoundViolations(ctx context.Context, pub logging.Publisher, simTime int64, actor logging.EntityRef, payload BoundViolationsPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventMultipleBoundViolations,
		SimTime:  simTime,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// SimultaneousContacts publishes a multi-contact diagnostic.
func SimultaneousContacts(ctx context.Context, pub logging.Publisher, simTime int64, targets []logging.EntityRef, payload SimultaneousContactsPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSimultaneousContacts,
		SimTime:  simTime,
		Targets:  targets,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}

func KeyframesPurged(ctx context.Context, pub logging.Publisher, simTime int64, payload KeyframesPurgedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventKeyframesPurged,
		SimTime:  simTime,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}

func EnergyLogStarted(ctx context.Context, pub logging.Publisher, simTime int64, payload EnergyLogPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventEnergyLogStarted,
		SimTime:  simTime,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

func EnergyLogStopped(ctx context.Context, pub logging.Publisher, simTime int64, payload EnergyLogPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventEnergyLogStopped,
		SimTime:  simTime,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

func EnergyLogRejected(ctx context.Context, pub logging.Publisher, simTime int64, payload EnergyLogPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventEnergyLogRejected,
		SimTime:  simTime,
		Severity: logging.SeverityWarn,
		Payload:  payload,
		Extra:    extra,
	})
}
