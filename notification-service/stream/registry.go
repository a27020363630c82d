// Package stream delivers notifications to connected clients.
package stream

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const shardCount = 32

// Channel is one open push connection of a user.
type Channel interface {
	// Send queues data for delivery. It fails when the channel is closed or
	// its buffer is full.
	Send(data []byte) error
	Close()
}

type userChannels struct {
	mu  sync.Mutex
	set map[Channel]struct{}
}

type shard struct {
	mu    sync.RWMutex
	users map[string]*userChannels
}

// Registry tracks the open channels of every user connected to this instance.
// Users are spread over independently locked shards so registrations of
// different users rarely contend.
type Registry struct {
	shards  [shardCount]shard
	logger  *log.Logger
	metrics *Metrics
	closed  atomic.Bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *log.Logger, m *Metrics) *Registry {
	r := &Registry{logger: logger, metrics: m}
	for i := range r.shards {
		r.shards[i].users = make(map[string]*userChannels)
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.shards[h.Sum32()%shardCount]
}

// Register adds ch to userID's channels. After Close it closes ch instead.
func (r *Registry) Register(userID string, ch Channel) {
	if r.closed.Load() {
		ch.Close()
		return
	}
	s := r.shardFor(userID)
	s.mu.Lock()
	uc, ok := s.users[userID]
	if !ok {
		uc = &userChannels{set: make(map[Channel]struct{})}
		s.users[userID] = uc
	}
	uc.mu.Lock()
	_, dup := uc.set[ch]
	uc.set[ch] = struct{}{}
	uc.mu.Unlock()
	s.mu.Unlock()
	if !dup {
		r.metrics.Connections.Inc()
	}

	// Close may have drained the shard between the check above and the insert.
	if r.closed.Load() && r.Unregister(userID, ch) {
		ch.Close()
	}
}

// Unregister removes ch. It reports whether ch was registered.
func (r *Registry) Unregister(userID string, ch Channel) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	uc, ok := s.users[userID]
	if !ok {
		return false
	}
	uc.mu.Lock()
	_, found := uc.set[ch]
	delete(uc.set, ch)
	empty := len(uc.set) == 0
	uc.mu.Unlock()
	if empty {
		delete(s.users, userID)
	}
	if found {
		r.metrics.Connections.Dec()
	}
	return found
}

// Count returns the number of channels registered for userID.
func (r *Registry) Count(userID string) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	uc, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.set)
}

// Broadcast encodes msg once and delivers it to every channel of userID.
func (r *Registry) Broadcast(_ context.Context, userID string, msg any) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		r.logger.WithError(err).WithField("userId", userID).Error("failed to encode broadcast")
		return
	}
	r.Deliver(userID, data)
}

// Deliver pushes already encoded data to every channel of userID. A channel
// that fails to accept it is unregistered and closed. Users without channels
// are skipped.
func (r *Registry) Deliver(userID string, data []byte) {
	s := r.shardFor(userID)
	s.mu.RLock()
	uc, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	uc.mu.Lock()
	targets := make([]Channel, 0, len(uc.set))
	for ch := range uc.set {
		targets = append(targets, ch)
	}
	uc.mu.Unlock()

	for _, ch := range targets {
		if err := ch.Send(data); err != nil {
			r.metrics.SendFailures.Inc()
			r.logger.WithError(err).WithField("userId", userID).Debug("dropping channel")
			if r.Unregister(userID, ch) {
				ch.Close()
			}
			continue
		}
		r.metrics.Delivered.Inc()
	}
}

// Close closes and forgets every channel. Later registrations are refused.
func (r *Registry) Close() {
	r.closed.Store(true)
	var all []Channel
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for userID, uc := range s.users {
			uc.mu.Lock()
			for ch := range uc.set {
				all = append(all, ch)
			}
			uc.mu.Unlock()
			delete(s.users, userID)
		}
		s.mu.Unlock()
	}
	for _, ch := range all {
		ch.Close()
	}
	r.metrics.Connections.Sub(float64(len(all)))
	r.logger.WithField("channels", len(all)).Info("stream registry closed")
}
