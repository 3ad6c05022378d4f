package events

import (
	"sync"

	"github.com/BaSui01/localpilot/automation"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// DropRecorder counts events discarded for slow subscribers.
type DropRecorder interface {
	RecordEventDropped()
}

// Filter selects the events a subscriber receives. nil accepts everything.
type Filter func(automation.Event) bool

// ForRun keeps only the events of one run.
func ForRun(runID string) Filter {
	if runID == "" {
		return nil
	}
	return func(e automation.Event) bool { return e.RunID == runID }
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithDropRecorder reports dropped events, usually to the metrics collector.
func WithDropRecorder(r DropRecorder) Option {
	return func(h *Hub) { h.drops = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// Hub 把运行输出扇出给所有订阅者，实现 automation.EventSink。
// Publish 从不阻塞：订阅者队列满时该事件对它丢弃。
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	buffer int
	drops  DropRecorder
	logger *zap.Logger
}

var _ automation.EventSink = (*Hub)(nil)

// NewHub creates a Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "events"))
	return h
}

// Subscription is one subscriber's queue.
type Subscription struct {
	hub    *Hub
	ch     chan automation.Event
	filter Filter
	once   sync.Once
}

// C returns the event channel. It is closed when the subscription or the
// hub is closed.
func (s *Subscription) C() <-chan automation.Event { return s.ch }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a subscriber. On a closed hub the returned channel is
// already closed.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	s := &Subscription{hub: h, ch: make(chan automation.Event, h.buffer), filter: filter}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	h.logger.Debug("subscriber added", zap.Int("subscribers", len(h.subs)))
	return s
}

// Publish fans e out to every matching subscriber.
func (h *Hub) Publish(e automation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			if h.drops != nil {
				h.drops.RecordEventDropped()
			}
			h.logger.Debug("dropped event for slow subscriber", zap.String("run_id", e.RunID))
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
	}
	s.once.Do(func() { close(s.ch) })
}
