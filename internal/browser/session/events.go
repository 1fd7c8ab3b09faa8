// internal/browser/session/events.go
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventKind classifies a NetworkEvent.
type EventKind int

const (
	RequestStarted EventKind = iota
	ResponseReceived
	RequestFinished
	RequestFailed
	WebSocketOpened
)

func (k EventKind) String() string {
	switch k {
	case RequestStarted:
		return "request_started"
	case ResponseReceived:
		return "response_received"
	case RequestFinished:
		return "request_finished"
	case RequestFailed:
		return "request_failed"
	case WebSocketOpened:
		return "websocket_opened"
	default:
		return "unknown"
	}
}

// NetworkEvent is the session's flattened view of a protocol network event.
type NetworkEvent struct {
	Kind         EventKind
	RequestID    string
	URL          string
	Method       string
	ResourceType string
	MimeType     string
	Status       int64
	// Initiator is the initiating script URL when known, else the initiator type.
	Initiator string
	Timestamp time.Time
}

type subscriber struct {
	ch   chan<- NetworkEvent
	stop chan struct{}
	once sync.Once
}

// eventHub decouples the protocol listener from subscribers. publish never
// blocks: events are queued and a single pump delivers them in order, so a
// slow consumer stalls delivery but never the protocol reader.
type eventHub struct {
	logger *zap.Logger
	queue  chan NetworkEvent
	done   chan struct{}
	pumped chan struct{}

	// deliverMu guards subs and is held for the delivery of one event.
	deliverMu sync.Mutex
	subs      map[int]*subscriber
	nextID    int

	dropped      atomic.Int64
	lastActivity atomic.Int64
	closeOnce    sync.Once
}

func newEventHub(size int, logger *zap.Logger) *eventHub {
	if size <= 0 {
		size = 1024
	}
	h := &eventHub{
		logger: logger,
		queue:  make(chan NetworkEvent, size),
		done:   make(chan struct{}),
		pumped: make(chan struct{}),
		subs:   make(map[int]*subscriber),
	}
	h.touch(time.Now())
	go h.pump()
	return h
}

// subscribe registers ch. The caller owns ch and must keep draining it until
// the returned function has been called; the hub never closes it.
func (h *eventHub) subscribe(ch chan<- NetworkEvent) func() {
	sub := &subscriber{ch: ch, stop: make(chan struct{})}

	h.deliverMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.deliverMu.Unlock()

	return func() {
		sub.once.Do(func() {
			close(sub.stop)
			h.deliverMu.Lock()
			delete(h.subs, id)
			h.deliverMu.Unlock()
		})
	}
}

// publish queues ev for delivery, dropping it if the queue is full.
func (h *eventHub) publish(ev NetworkEvent) {
	switch ev.Kind {
	case RequestStarted, RequestFinished, RequestFailed, ResponseReceived:
		h.touch(time.Now())
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.queue <- ev:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			h.logger.Warn("Network event queue full; dropping events.", zap.Int64("dropped", n))
		}
	}
}

func (h *eventHub) pump() {
	defer close(h.pumped)
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.queue:
			h.deliver(ev)
		}
	}
}

func (h *eventHub) deliver(ev NetworkEvent) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		case <-sub.stop:
		case <-h.done:
			return
		}
	}
}

func (h *eventHub) touch(t time.Time) {
	h.lastActivity.Store(t.UnixNano())
}

// idleFor reports how long it has been since the last request started or ended.
func (h *eventHub) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, h.lastActivity.Load()))
}

// Dropped is the number of events discarded because the queue was full.
func (h *eventHub) Dropped() int64 { return h.dropped.Load() }

// close stops delivery and waits for the pump to exit.
func (h *eventHub) close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.pumped
	})
}
