package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// subscriber serialises writes to a single websocket connection. Frames from
// the hub and command replies from the reader share it.
type subscriber struct {
	id   string
	conn *websocket.Conn

	mu             sync.Mutex
	lastCommandSeq atomic.Uint64
}

func newSubscriber(id string, conn *websocket.Conn) *subscriber {
	return &subscriber{id: id, conn: conn}
}

func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// LastCommandSeq is the highest command sequence the client has been
// answered for.
func (s *subscriber) LastCommandSeq() uint64 {
	return s.lastCommandSeq.Load()
}

func (s *subscriber) StoreLastCommandSeq(seq uint64) {
	for {
		last := s.lastCommandSeq.Load()
		if seq <= last || s.lastCommandSeq.CompareAndSwap(last, seq) {
			return
		}
	}
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
