// Package ws serves the spectator websocket: render frames out, text
// commands in.
package ws

import (
	"context"
	"errors"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"github.com/the-cubic-cat/sfera/internal/net/proto"
	"github.com/the-cubic-cat/sfera/internal/sim"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
)

// Submitter executes a command line on the physics goroutine.
type Submitter interface {
	Submit(ctx context.Context, source, line string) (string, error)
}

type HandlerConfig struct {
	Logger telemetry.Logger
	// ReadOnly refuses every command; clients only watch.
	ReadOnly bool
}

type Handler struct {
	hub      *Hub
	submit   Submitter
	cfg      HandlerConfig
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, submit Submitter, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		submit:   submit,
		cfg:      cfg,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	sub := h.hub.subscribe(conn)
	defer h.hub.Disconnect(sub.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	source := sim.SourceWebsocket + ":" + sub.id

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding message from %s: %v", sub.id, err)
			if msg.Seq > 0 && !h.reject(sub, msg.Seq, err.Error(), false) {
				return
			}
			continue
		}

		if msg.Seq > 0 {
			if last := sub.LastCommandSeq(); last > 0 && msg.Seq <= last {
				if !h.ack(sub, msg.Seq, "") {
					return
				}
				continue
			}
		}

		if h.cfg.ReadOnly || h.submit == nil {
			if !h.reject(sub, msg.Seq, "read_only", false) {
				return
			}
			continue
		}

		out, err := h.submit.Submit(ctx, source, msg.Line)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			retry := errors.Is(err, sim.ErrCommandRejected)
			if !h.reject(sub, msg.Seq, err.Error(), retry) {
				return
			}
			continue
		}
		if !h.ack(sub, msg.Seq, out) {
			return
		}
	}
}

func (h *Handler) ack(sub *subscriber, seq uint64, output string) bool {
	data, err := proto.EncodeCommandAck(seq, output)
	if err != nil {
		h.logger.Printf("failed to marshal ack for %s: %v", sub.id, err)
		return true
	}
	if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	sub.StoreLastCommandSeq(seq)
	return true
}

func (h *Handler) reject(sub *subscriber, seq uint64, reason string, retry bool) bool {
	data, err := proto.EncodeCommandReject(seq, reason, retry)
	if err != nil {
		h.logger.Printf("failed to marshal reject for %s: %v", sub.id, err)
		return true
	}
	if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	if !retry {
		sub.StoreLastCommandSeq(seq)
	}
	return true
}
