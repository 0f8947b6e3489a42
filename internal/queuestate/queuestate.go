// Package queuestate tracks one queue's undelivered message ids and its
// in-flight delivery buckets. It is the per-queue half of a topic's state;
// the topic's single lock serializes all access to it, same as the
// queue's subscriber set.
package queuestate

import (
	"sync"

	"github.com/pagebus/busd/internal/intervalset"
)

// Kind is the queue discipline requested at subscribe time.
type Kind int

const (
	// PermanentSingleSubscriber keeps exactly one subscriber; a new
	// subscribe kicks the incumbent.
	PermanentSingleSubscriber Kind = iota
	// Permanent survives subscriber disconnects indefinitely.
	Permanent
	// DeleteOnDisconnect is removed when its last subscriber disconnects.
	DeleteOnDisconnect
)

// Bucket is a set of message ids handed to one subscriber in one delivery
// round. AttemptNo is not filled in by State; per-id attempt numbers are
// kept inside State and handed out by NextAttempt.
type Bucket struct {
	SubscriberID string
	IDs          []int64
	AttemptNo    map[int64]int32
}

// State is one queue's ready set plus its in-flight buckets.
type State struct {
	mu sync.Mutex

	id   string
	kind Kind

	ready        *intervalset.Set
	inFlight     map[string]*Bucket // subscriber id -> bucket
	attemptNo    map[int64]int32    // per-id attempt counter, survives redelivery
	subscriberCt int                // live subscriber count, for DeleteOnDisconnect

	version int64 // incremented on any change to ready/kind/existence
}

// New returns an empty queue in the given discipline.
func New(id string, kind Kind) *State {
	return &State{
		id:        id,
		kind:      kind,
		ready:     intervalset.New(),
		inFlight:  make(map[string]*Bucket),
		attemptNo: make(map[int64]int32),
	}
}

// ID returns the queue's id.
func (s *State) ID() string { return s.id }

// Kind returns the queue's discipline.
func (s *State) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Version returns the current snapshot version, for the persistence
// snapshotter to detect changes cheaply.
func (s *State) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Enqueue unions [from, to] into the ready set.
func (s *State) Enqueue(from, to int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready.AddRange(from, to)
	s.version++
}

// Peek returns the smallest ready id, if any.
func (s *State) Peek() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Min()
}

// Dequeue removes id from ready. id must equal the current Peek() result;
// callers violating this invariant get a no-op.
func (s *State) Dequeue(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	min, ok := s.ready.Min()
	if !ok || min != id {
		return
	}
	s.ready.Remove(id)
	s.version++
}

// NextAttempt returns the attempt number an id about to be delivered should
// carry (0 for a first delivery, 1 for the first redelivery, ...), then
// increments the counter for next time.
func (s *State) NextAttempt(id int64) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.attemptNo[id]
	s.attemptNo[id]++
	return n
}

// Requeue adds a set of ids directly back to ready, used when a bucket
// was built but never attached as in-flight (its session vanished before
// the first send).
func (s *State) Requeue(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ready.Add(id)
	}
	s.version++
}

// AttachBucket records bucket as in-flight for a subscriber, replacing any
// bucket previously attached to the same subscriber id.
func (s *State) AttachBucket(bucket *Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[bucket.SubscriberID] = bucket
}

// Confirmed removes the subscriber's in-flight bucket, returns the
// positively-confirmed ids to permanent removal, and requeues the
// negatively-confirmed ids into ready.
func (s *State) Confirmed(subscriberID string, positive, negative []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, subscriberID)
	for _, id := range negative {
		s.ready.Add(id)
	}
	s.version++
}

// MarkNotDelivered returns an entire bucket's ids to ready, used when the
// owning subscriber's session is lost before confirmation. It looks the
// bucket up by subscriber id rather than requiring the caller to still
// hold a reference to it; ok reports whether a bucket was in flight.
func (s *State) MarkNotDelivered(subscriberID string) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, found := s.inFlight[subscriberID]
	if !found {
		return false
	}
	delete(s.inFlight, subscriberID)
	for _, id := range bucket.IDs {
		s.ready.Add(id)
	}
	s.version++
	return true
}

// MinMessageID returns the minimum id the queue still cares about, across
// ready and every in-flight bucket. Used to bound page GC.
func (s *State) MinMessageID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	min, ok := s.ready.Min()
	for _, bucket := range s.inFlight {
		for _, id := range bucket.IDs {
			if !ok || id < min {
				min = id
				ok = true
			}
		}
	}
	return min, ok
}

// Ranges returns the ready set's ranges, for persistence snapshots.
func (s *State) Ranges() []intervalset.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Clone().Ranges()
}

// RestoreRanges replaces the ready set's contents, for crash recovery.
func (s *State) RestoreRanges(ranges []intervalset.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready = intervalset.New()
	for _, r := range ranges {
		s.ready.AddRange(r.From, r.To)
	}
	s.version++
}

// AddSubscriber and RemoveSubscriber track live subscriber count, used to
// decide when a DeleteOnDisconnect queue should be torn down.
func (s *State) AddSubscriber() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriberCt++
}

// RemoveSubscriber decrements the live subscriber count and reports whether
// the queue should now be deleted (DeleteOnDisconnect, no subscribers left).
func (s *State) RemoveSubscriber() (shouldDelete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscriberCt > 0 {
		s.subscriberCt--
	}
	return s.kind == DeleteOnDisconnect && s.subscriberCt == 0
}
