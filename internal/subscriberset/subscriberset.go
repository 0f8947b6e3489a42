// Package subscriberset tracks the subscribers attached to one queue and
// picks the next idle subscriber for delivery in round-robin order.
package subscriberset

import (
	"sync"
	"time"
)

// Status is a subscriber's delivery state.
type Status int

const (
	// Idle means the subscriber can be given a new bucket.
	Idle Status = iota
	// OnDelivery means a bucket is outstanding, awaiting confirmation.
	OnDelivery
)

// Subscriber is one session attached to a queue.
type Subscriber struct {
	ID        string
	SessionID string
	Status    Status
	SentAt    time.Time // valid only when Status == OnDelivery
}

// Set is the collection of subscribers attached to one queue, with
// round-robin idle selection and single-incumbent kick semantics for
// PermanentSingleSubscriber queues.
type Set struct {
	mu sync.Mutex

	order []string // subscriber ids in attach order, for round-robin
	byID  map[string]*Subscriber
	next  int // round-robin cursor into order
}

// New returns an empty subscriber set.
func New() *Set {
	return &Set{byID: make(map[string]*Subscriber)}
}

// Attach adds a subscriber. If singleSubscriber is true and an existing
// subscriber is present, the incumbent is detached and returned as kicked
// so the caller can return its bucket to ready and reject its session.
func (s *Set) Attach(id, sessionID string, singleSubscriber bool) (kicked *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if singleSubscriber && len(s.order) > 0 {
		kickedID := s.order[0]
		kicked = s.byID[kickedID]
		s.removeLocked(kickedID)
	}

	s.order = append(s.order, id)
	s.byID[id] = &Subscriber{ID: id, SessionID: sessionID, Status: Idle}
	return kicked
}

// Detach removes a subscriber, returning it and true if it was present.
func (s *Set) Detach(id string) (*Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	s.removeLocked(id)
	return sub, true
}

func (s *Set) removeLocked(id string) {
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.next >= len(s.order) {
		s.next = 0
	}
}

// NextIdle returns the next Idle subscriber in round-robin order and
// marks it OnDelivery, or ok=false if none are idle.
func (s *Set) NextIdle(now time.Time) (sub *Subscriber, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	for i := 0; i < n; i++ {
		idx := (s.next + i) % n
		id := s.order[idx]
		candidate := s.byID[id]
		if candidate.Status == Idle {
			candidate.Status = OnDelivery
			candidate.SentAt = now
			s.next = (idx + 1) % n
			return candidate, true
		}
	}
	return nil, false
}

// MarkIdle returns a subscriber to Idle, called after confirmation.
func (s *Set) MarkIdle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.byID[id]; ok {
		sub.Status = Idle
		sub.SentAt = time.Time{}
	}
}

// DeadSince returns every subscriber whose OnDelivery duration exceeds
// timeout as of now, for the dead-subscriber kicker.
func (s *Set) DeadSince(now time.Time, timeout time.Duration) []*Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []*Subscriber
	for _, sub := range s.byID {
		if sub.Status == OnDelivery && now.Sub(sub.SentAt) > timeout {
			dead = append(dead, sub)
		}
	}
	return dead
}

// Len returns the number of attached subscribers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
