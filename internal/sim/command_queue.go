package sim

import (
	"sync"
	"time"

	"github.com/the-cubic-cat/sfera/internal/telemetry"
)

const (
	metricQueueDepth     = "sim_command_queue_depth"
	metricQueueFull      = "sim_command_queue_full_total"
	metricQueueLimited   = "sim_command_queue_limited_total"
	metricQueueWaitMaxUS = "sim_command_queue_wait_max_us"
)

// commandQueue holds commands between physics steps. Every surface pushes;
// only the physics goroutine drains. Each source may hold at most
// sourceLimit slots until the next drain.
type commandQueue struct {
	mu          sync.Mutex
	items       []Command
	capacity    int
	sourceLimit int
	perSource   map[string]int
	stopped     bool
	metrics     telemetry.Metrics
}

func newCommandQueue(capacity, sourceLimit int, metrics telemetry.Metrics) *commandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &commandQueue{
		items:       make([]Command, 0, capacity),
		capacity:    capacity,
		sourceLimit: sourceLimit,
		perSource:   make(map[string]int),
		metrics:     metrics,
	}
}

// push stages cmd and returns the new depth, or the reject reason.
func (q *commandQueue) push(cmd Command) (int, string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.stopped:
		return len(q.items), CommandRejectStopped
	case q.sourceLimit > 0 && cmd.Source != "" && q.perSource[cmd.Source] >= q.sourceLimit:
		q.count(metricQueueLimited)
		return len(q.items), CommandRejectQueueLimit
	case len(q.items) == q.capacity:
		q.count(metricQueueFull)
		return len(q.items), CommandRejectQueueFull
	}
	q.items = append(q.items, cmd)
	if cmd.Source != "" {
		q.perSource[cmd.Source]++
	}
	q.storeDepth()
	return len(q.items), ""
}

// drain empties the queue in FIFO order and resets the per-source budget.
// now is used to record the longest time a drained command waited.
func (q *commandQueue) drain(now time.Time) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked(now)
}

// stop refuses every later push and hands back what was still queued.
func (q *commandQueue) stop(now time.Time) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	return q.takeLocked(now)
}

func (q *commandQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *commandQueue) takeLocked(now time.Time) []Command {
	if len(q.items) == 0 {
		return nil
	}
	out := append([]Command(nil), q.items...)
	clear(q.items)
	q.items = q.items[:0]
	clear(q.perSource)

	var longest time.Duration
	for _, cmd := range out {
		if !cmd.IssuedAt.IsZero() && now.Sub(cmd.IssuedAt) > longest {
			longest = now.Sub(cmd.IssuedAt)
		}
	}
	q.storeDepth()
	if q.metrics != nil {
		q.metrics.Store(metricQueueWaitMaxUS, uint64(longest.Microseconds()))
	}
	return out
}

func (q *commandQueue) count(key string) {
	if q.metrics != nil {
		q.metrics.Add(key, 1)
	}
}

func (q *commandQueue) storeDepth() {
	if q.metrics != nil {
		q.metrics.Store(metricQueueDepth, uint64(len(q.items)))
	}
}
