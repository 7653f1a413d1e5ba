package proto

import (
	"encoding/json"
	"errors"
	"image/color"
	"testing"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/simtime"
)

func TestEncodeFrameCarriesBallsAndBounds(t *testing.T) {
	bounds := geom.R(-5, -5, 10, 10)
	frame := render.Frame{
		Time:      simtime.MS(1500),
		EndTime:   simtime.Second * 2,
		Timescale: 1,
		Zoom:      2,
		Pan:       geom.V(1, -1),
		Bounds:    &bounds,
		Balls: []render.BallFrame{{
			ID:       7,
			Position: geom.V(-3, 0),
			Velocity: geom.V(0.7, 2.8),
			Radius:   0.5,
			Mass:     1,
			Color:    color.RGBA{R: 255, A: 255},
			Tags:     []string{"red"},
		}},
		KineticEnergy: 4.165,
	}
	data, err := EncodeFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["type"] != TypeFrame || decoded["ver"] != float64(Version) {
		t.Fatalf("unexpected envelope %v", decoded)
	}
	if decoded["timeNs"] != float64(1_500_000_000) {
		t.Fatalf("expected timeNs 1.5e9, got %v", decoded["timeNs"])
	}
	balls, ok := decoded["balls"].([]any)
	if !ok || len(balls) != 1 {
		t.Fatalf("expected one ball, got %v", decoded["balls"])
	}
	ball := balls[0].(map[string]any)
	if ball["id"] != float64(7) || ball["x"] != float64(-3) || ball["vy"] != 2.8 {
		t.Fatalf("unexpected ball payload %v", ball)
	}
	b, ok := decoded["bounds"].(map[string]any)
	if !ok || b["w"] != float64(10) {
		t.Fatalf("expected bounds, got %v", decoded["bounds"])
	}
}

func TestEncodeFrameWithoutBounds(t *testing.T) {
	data, err := EncodeFrame(render.Frame{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := decoded["bounds"]; ok {
		t.Fatalf("expected bounds omitted, got %v", decoded["bounds"])
	}
	if balls, ok := decoded["balls"].([]any); !ok || len(balls) != 0 {
		t.Fatalf("expected empty ball list, got %v", decoded["balls"])
	}
}

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"command","seq":3,"line":"  balls get "}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Ver != Version || msg.Seq != 3 || msg.Line != "balls get" {
		t.Fatalf("unexpected message %+v", msg)
	}

	cases := []struct {
		payload string
		want    error
	}{
		{`{"ver":2,"type":"command","line":"x"}`, ErrUnsupportedVersion},
		{`{"type":"input","line":"x"}`, ErrUnknownMessage},
		{`{"type":"command","line":"   "}`, ErrEmptyCommand},
	}
	for _, tc := range cases {
		if _, err := DecodeClientMessage([]byte(tc.payload)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.payload, tc.want, err)
		}
	}
	if _, err := DecodeClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
}

func TestEncodeCommandReplies(t *testing.T) {
	data, err := EncodeCommandReject(9, "queue_full", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reject CommandRejectV1
	if err := json.Unmarshal(data, &reject); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if reject.Type != TypeCommandReject || reject.Seq != 9 || !reject.Retry {
		t.Fatalf("unexpected reject %+v", reject)
	}

	data, err = EncodeCommandAck(10, "ball 4 created")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ack CommandAckV1
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if ack.Type != TypeCommandAck || ack.Output != "ball 4 created" {
		t.Fatalf("unexpected ack %+v", ack)
	}
}
