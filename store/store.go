// Package store implements a reactive key/value store: every change is
// broadcast to subscribers, and keys written with a TTL expire on their own
// with an Expired notification.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/raulk/clock"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Event is a change notification.
type Event struct {
	Key   string
	Value Value
}

type entry struct {
	value Value
	timer *clock.Timer
}

// Store is safe for concurrent use.
type Store struct {
	clock      clock.Clock
	logger     *zap.Logger
	bufferSize int

	// mu guards data, closed and the timers of the entries, and is held
	// while their events are published. Lock order: mu, then subsMu.
	mu     sync.RWMutex
	data   map[string]*entry
	closed bool

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}
}

// New creates an empty store.
func New(options ...func(*Config)) *Store {
	cfg := Config{BufferSize: defaultBufferSize}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	return &Store{
		clock:      cfg.Clock,
		logger:     cfg.Logger.Named("store"),
		bufferSize: cfg.BufferSize,
		data:       make(map[string]*entry),
		subs:       make(map[*Subscription]struct{}),
	}
}

// Set stores value under key, cancelling any pending expiry, and
// broadcasts the change.
func (s *Store) Set(key string, value Value) {
	s.set(key, value, 0)
	storeOps.WithLabelValues("set").Inc()
}

// SetWithTTL is Set followed by expiry after ttl: the key is removed and
// (key, Expired) is broadcast. A later Set or Remove of the key cancels the
// expiry. A non-positive ttl never expires.
func (s *Store) SetWithTTL(key string, value Value, ttl time.Duration) {
	s.set(key, value, ttl)
	storeOps.WithLabelValues("set_ttl").Inc()
}

func (s *Store) set(key string, value Value, ttl time.Duration) {
	e := &entry{value: cloneValue(value)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.data[key]; ok {
		old.stop()
	}
	s.data[key] = e
	if ttl > 0 && !s.closed {
		e.timer = s.clock.AfterFunc(ttl, func() { s.expire(key, e) })
	}
	s.publish(Event{Key: key, Value: cloneValue(value)})
}

func (s *Store) expire(key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[key] != e {
		// Overwritten or removed after the timer fired.
		return
	}
	delete(s.data, key)

	storeOps.WithLabelValues("expire").Inc()
	s.logger.Debug("key expired", zap.String("key", key))
	s.publish(Event{Key: key, Value: Expired})
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) (Value, bool) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	storeOps.WithLabelValues("get").Inc()
	if !ok {
		return nil, false
	}
	return cloneValue(e.value), true
}

// Remove deletes key and cancels its pending expiry. Subscribers are not
// notified.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	if e, ok := s.data[key]; ok {
		e.stop()
		delete(s.data, key)
	}
	s.mu.Unlock()
	storeOps.WithLabelValues("remove").Inc()
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := lo.Keys(s.data)
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Subscribe registers a new subscriber that receives every change made
// after this call. Subscribing to a closed store yields a closed
// subscription.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{
		ch:    make(chan Event, s.bufferSize),
		store: s,
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Close cancels all pending expiries and closes every subscription.
// Stored values remain readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, e := range s.data {
		e.stop()
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		sub.closeLocked()
	}
}

// publish must be called with s.mu held, so that the events of one key
// reach subscribers in the order its changes were applied.
func (s *Store) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Inc()
			droppedEvents.Inc()
			s.logger.Warn("subscriber is lagging, dropping event",
				zap.String("key", ev.Key),
				zap.Uint64("dropped", sub.dropped.Load()))
		}
	}
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

// Subscription receives change events until it is closed.
type Subscription struct {
	ch      chan Event
	store   *Store
	dropped atomic.Uint64
	closed  bool // guarded by store.subsMu
}

// C returns the event channel. It is closed when the subscription or the
// store is closed.
func (sub *Subscription) C() <-chan Event {
	return sub.ch
}

// Dropped returns the number of events lost because the buffer was full.
func (sub *Subscription) Dropped() uint64 {
	return sub.dropped.Load()
}

// Close unregisters the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.store.subsMu.Lock()
	defer sub.store.subsMu.Unlock()
	sub.closeLocked()
}

func (sub *Subscription) closeLocked() {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(sub.store.subs, sub)
	close(sub.ch)
}
