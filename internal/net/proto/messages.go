package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/the-cubic-cat/sfera/internal/render"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for websocket payloads.
	TypeFrame         = "frame"
	TypeCommandAck    = "commandAck"
	TypeCommandReject = "commandReject"

	// TypeCommand is the only client message type.
	TypeCommand = "command"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported_protocol_version")
	ErrUnknownMessage     = errors.New("unknown_message_type")
	ErrEmptyCommand       = errors.New("empty_command")
)

// BallV1 is a ball as streamed to spectators.
type BallV1 struct {
	ID     int64    `json:"id"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	VX     float64  `json:"vx"`
	VY     float64  `json:"vy"`
	Radius float64  `json:"radius"`
	Mass   float64  `json:"mass"`
	Color  [4]uint8 `json:"color" jsonschema:"minItems=4,maxItems=4"`
	Tags   []string `json:"tags,omitempty"`
}

type BoundsV1 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FrameV1 is a render frame. Times are nanoseconds of simulation time.
type FrameV1 struct {
	Ver           int       `json:"ver"`
	Type          string    `json:"type"`
	TimeNS        int64     `json:"timeNs"`
	EndTimeNS     int64     `json:"endTimeNs"`
	Timescale     float64   `json:"timescale"`
	Zoom          float64   `json:"zoom"`
	PanX          float64   `json:"panX"`
	PanY          float64   `json:"panY"`
	Bounds        *BoundsV1 `json:"bounds,omitempty"`
	Balls         []BallV1  `json:"balls"`
	KineticEnergy float64   `json:"kineticEnergy"`
}

// NewFrameV1 converts a render frame into its wire form.
func NewFrameV1(f render.Frame) FrameV1 {
	msg := FrameV1{
		Ver:           Version,
		Type:          TypeFrame,
		TimeNS:        int64(f.Time),
		EndTimeNS:     int64(f.EndTime),
		Timescale:     f.Timescale,
		Zoom:          f.Zoom,
		PanX:          f.Pan.X(),
		PanY:          f.Pan.Y(),
		Balls:         make([]BallV1, 0, len(f.Balls)),
		KineticEnergy: f.KineticEnergy,
	}
	if f.Bounds != nil {
		msg.Bounds = &BoundsV1{X: f.Bounds.X, Y: f.Bounds.Y, W: f.Bounds.W, H: f.Bounds.H}
	}
	for _, b := range f.Balls {
		msg.Balls = append(msg.Balls, BallV1{
			ID:     b.ID,
			X:      b.Position.X(),
			Y:      b.Position.Y(),
			VX:     b.Velocity.X(),
			VY:     b.Velocity.Y(),
			Radius: b.Radius,
			Mass:   b.Mass,
			Color:  [4]uint8{b.Color.R, b.Color.G, b.Color.B, b.Color.A},
			Tags:   b.Tags,
		})
	}
	return msg
}

// EncodeFrame renders a frame payload.
func EncodeFrame(f render.Frame) ([]byte, error) {
	return json.Marshal(NewFrameV1(f))
}

// CommandAckV1 reports a command that ran; Output is what the command
// printed.
type CommandAckV1 struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Output string `json:"output,omitempty"`
}

// CommandRejectV1 reports a command that was refused or failed. Retry is set
// when the command was dropped by queue backpressure and may be resent.
type CommandRejectV1 struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

func EncodeCommandAck(seq uint64, output string) ([]byte, error) {
	return json.Marshal(CommandAckV1{Ver: Version, Type: TypeCommandAck, Seq: seq, Output: output})
}

func EncodeCommandReject(seq uint64, reason string, retry bool) ([]byte, error) {
	return json.Marshal(CommandRejectV1{Ver: Version, Type: TypeCommandReject, Seq: seq, Reason: reason, Retry: retry})
}

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver  int    `json:"ver,omitempty"`
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Line string `json:"line"`
}

// DecodeClientMessage converts raw websocket payloads into a structured
// message. A missing version is taken as the current one.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("client protocol version %d: %w", msg.Ver, ErrUnsupportedVersion)
	}
	if msg.Type != TypeCommand {
		return msg, fmt.Errorf("%q: %w", msg.Type, ErrUnknownMessage)
	}
	msg.Line = strings.TrimSpace(msg.Line)
	if msg.Line == "" {
		return msg, ErrEmptyCommand
	}
	return msg, nil
}
