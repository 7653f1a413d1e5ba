package logging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies wall-clock time to the router and to the render loop.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sink receives routed events on its own worker goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// NamedSink pairs a sink with the name Config.Routes refers to.
type NamedSink struct {
	Name string
	Sink Sink
}

const (
	defaultQueueSize = 256
	dropWarnInterval = 5 * time.Second
)

// Router stamps published events and hands each one to every sink whose
// route accepts the event's category. Publish never blocks: a sink with a
// full queue loses the event and the drop is counted.
type Router struct {
	clock    Clock
	minimum  Severity
	fields   map[string]any
	fallback *log.Logger

	mu     sync.RWMutex
	closed bool
	routes []*route
	wg     sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	nextDropLog  atomic.Int64
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

type route struct {
	name string
	sink Sink
	// categories is nil when the sink takes every category.
	categories map[string]bool
	events     chan Event
}

func (r *route) accepts(category string) bool {
	return r.categories == nil || r.categories[category]
}

// NewRouter starts one worker per sink. Sinks named in cfg.Routes only see
// the listed categories; the rest see everything.
func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultQueueSize
	}
	r := &Router{
		clock:    clock,
		minimum:  cfg.MinimumSeverity,
		fields:   cfg.CloneFields(),
		fallback: log.New(os.Stderr, "[logging] ", log.LstdFlags),
	}
	seen := make(map[string]bool, len(namedSinks))
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		if seen[named.Name] {
			return nil, fmt.Errorf("duplicate sink %q", named.Name)
		}
		seen[named.Name] = true
		rt := &route{name: named.Name, sink: named.Sink, events: make(chan Event, size)}
		if categories, ok := cfg.Routes[named.Name]; ok {
			rt.categories = make(map[string]bool, len(categories))
			for _, category := range categories {
				rt.categories[category] = true
			}
		}
		r.routes = append(r.routes, rt)
	}
	for _, rt := range r.routes {
		r.wg.Add(1)
		go r.run(rt)
	}
	return r, nil
}

// Publish implements Publisher. Events without a type or below the
// configured severity are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if r == nil || event.Type == "" || event.Severity < r.minimum {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = r.attachFields(event)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.eventsTotal.Add(1)
	for _, rt := range r.routes {
		if !rt.accepts(event.Category) {
			continue
		}
		select {
		case rt.events <- event:
		default:
			r.dropped(rt, event)
		}
	}
}

func (r *Router) attachFields(event Event) Event {
	if len(r.fields) == 0 {
		return event
	}
	event = cloneForFields(event)
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(r.fields))
	}
	for k, v := range r.fields {
		if _, exists := event.Extra[k]; !exists {
			event.Extra[k] = v
		}
	}
	return event
}

func (r *Router) dropped(rt *route, event Event) {
	r.droppedTotal.Add(1)
	now := time.Now().UnixNano()
	next := r.nextDropLog.Load()
	if now >= next && r.nextDropLog.CompareAndSwap(next, now+dropWarnInterval.Nanoseconds()) {
		r.fallback.Printf("sink %s backlog full, dropping %s at simTime=%dns", rt.name, event.Type, event.SimTime)
	}
}

func (r *Router) run(rt *route) {
	defer r.wg.Done()
	for event := range rt.events {
		if err := rt.sink.Write(event); err != nil {
			r.fallback.Printf("sink %s failed on %s: %v", rt.name, event.Type, err)
		}
	}
}

// Close stops accepting events, lets every sink drain its queue and then
// closes the sinks. A second Close is a no-op.
func (r *Router) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, rt := range r.routes {
		close(rt.events)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, rt := range r.routes {
		if err := rt.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", rt.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Stats() RouterStats {
	if r == nil {
		return RouterStats{}
	}
	return RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
	}
}
