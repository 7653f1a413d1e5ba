package ws

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/the-cubic-cat/sfera/internal/net/proto"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
	"github.com/the-cubic-cat/sfera/logging"
	loggingnetwork "github.com/the-cubic-cat/sfera/logging/network"
)

const (
	metricBroadcastBytes  = "ws_broadcast_bytes_total"
	metricBroadcastFrames = "ws_broadcast_frames_total"
	metricSubscribers     = "ws_subscribers"
)

// HubConfig tunes frame fan-out.
type HubConfig struct {
	// MinInterval throttles broadcasts; frames arriving sooner are skipped.
	MinInterval time.Duration
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Publisher   logging.Publisher
	Clock       logging.Clock
}

// Hub fans render frames out to every connected spectator. It implements
// render.FrameSink.
type Hub struct {
	cfg    HubConfig
	nextID atomic.Uint64

	mu          sync.Mutex
	subscribers map[string]*subscriber
	lastSent    time.Time
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.LoggerFunc(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Hub{cfg: cfg, subscribers: make(map[string]*subscriber)}
}

// subscribe registers conn for frame broadcasts.
func (h *Hub) subscribe(conn *websocket.Conn) *subscriber {
	id := fmt.Sprintf("spectator-%d", h.nextID.Add(1))
	sub := newSubscriber(id, conn)
	h.mu.Lock()
	h.subscribers[id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()
	h.storeSubscribers(count)
	loggingnetwork.SpectatorJoined(context.Background(), h.cfg.Publisher, loggingnetwork.SpectatorRef(id), loggingnetwork.SpectatorPayload{Spectators: count})
	return sub
}

// Disconnect removes the subscriber and closes its connection.
func (h *Hub) Disconnect(id string) {
	if h.remove(id) {
		loggingnetwork.SpectatorLeft(context.Background(), h.cfg.Publisher, loggingnetwork.SpectatorRef(id), loggingnetwork.SpectatorPayload{Spectators: h.Len()})
	}
}

func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	count := len(h.subscribers)
	h.mu.Unlock()
	if !ok {
		return false
	}
	sub.Close()
	h.storeSubscribers(count)
	return true
}

// Len reports the number of connected spectators.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// DeliverFrame encodes the frame once and writes it to every subscriber.
// Subscribers whose writes fail are dropped.
func (h *Hub) DeliverFrame(frame render.Frame) error {
	now := h.cfg.Clock.Now()
	h.mu.Lock()
	if len(h.subscribers) == 0 || (h.cfg.MinInterval > 0 && !h.lastSent.IsZero() && now.Sub(h.lastSent) < h.cfg.MinInterval) {
		h.mu.Unlock()
		return nil
	}
	h.lastSent = now
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	data, err := proto.EncodeFrame(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	for _, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			h.cfg.Logger.Printf("failed to send frame to %s: %v", sub.id, err)
			if h.remove(sub.id) {
				loggingnetwork.SpectatorDropped(context.Background(), h.cfg.Publisher, loggingnetwork.SpectatorRef(sub.id), loggingnetwork.SpectatorPayload{Spectators: h.Len(), Reason: err.Error()})
			}
		}
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Add(metricBroadcastFrames, 1)
		h.cfg.Metrics.Add(metricBroadcastBytes, uint64(len(data)*len(subs)))
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Disconnect(id)
	}
}

func (h *Hub) storeSubscribers(count int) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Store(metricSubscribers, uint64(count))
	}
}

var _ render.FrameSink = (*Hub)(nil)
