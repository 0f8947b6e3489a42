package bus

import (
	"sync"
	"time"

	"github.com/pagebus/busd/internal/packets"
)

// SessionState is the per-connection protocol state machine.
type SessionState int

const (
	// StateNew is the state immediately after TCP accept.
	StateNew SessionState = iota
	// StateGreeted follows a valid Greeting packet.
	StateGreeted
	// StateReady follows PacketVersions negotiation; Publish/Subscribe/
	// ConfirmDelivery are accepted only in this state (Ping is answered in
	// any state).
	StateReady
	// StateDisconnected is terminal.
	StateDisconnected
)

// Writer is the minimal surface a session needs to send packets back to
// its client. *net.TCPConn (and any io.Writer) satisfies it via a small
// adapter in the cmd entrypoint.
type Writer interface {
	WritePacket(p packets.Packet) error
}

// Session is one client connection. writeMu is distinct from any topic's
// lock: packets are only ever written after a topic lock has been
// released, so no goroutine holds both at once.
type Session struct {
	mu sync.Mutex

	ID   string
	Name string
	IP   string

	state           SessionState
	protocolVersion int32
	packetVersions  map[uint8]int32

	writeMu sync.Mutex
	writer  Writer

	subscribers map[string]subscriberRef // subscriber id -> owning (topic, queue)

	lastIncomingAt time.Time
}

// subscriberRef locates the queue a subscriber id belongs to, so a
// ConfirmDelivery packet (which carries only the subscriber id) can be
// routed without a global subscriber->queue index.
type subscriberRef struct {
	topicID string
	queueID string
}

// NewSession returns a session in StateNew for the given connection id.
func NewSession(id, ip string, writer Writer) *Session {
	return &Session{
		ID:             id,
		IP:             ip,
		writer:         writer,
		state:          StateNew,
		packetVersions: make(map[uint8]int32),
		subscribers:    make(map[string]subscriberRef),
		lastIncomingAt: time.Now(),
	}
}

// State returns the session's current protocol state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Greet records the client's name/protocol version and transitions
// New -> Greeted. Called on receipt of a Greeting packet.
func (s *Session) Greet(name string, protocolVersion int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNew {
		return newError(ErrSessionDisconnected, "greeting received outside New state")
	}
	s.Name = name
	s.protocolVersion = protocolVersion
	s.state = StateGreeted
	return nil
}

// NegotiateVersions records per-packet-type wire versions and transitions
// Greeted -> Ready. Called on receipt of a PacketVersions packet.
func (s *Session) NegotiateVersions(versions map[uint8]int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateGreeted {
		return newError(ErrSessionDisconnected, "packet versions received outside Greeted state")
	}
	s.packetVersions = versions
	s.state = StateReady
	return nil
}

// PacketVersions returns the negotiated per-packet-type wire versions, for
// the packet reader. Before negotiation (state New/Greeted) this is empty,
// so every packet type decodes at version 0.
func (s *Session) PacketVersions() map[uint8]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetVersions
}

// Touch updates the last-incoming-traffic timestamp. No keepalive check
// reads that timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIncomingAt = time.Now()
}

// Disconnect transitions the session to Disconnected and returns the
// subscriber ids (with their owning topic/queue) that were attached via
// it, so the caller can unroll them from their queues.
func (s *Session) Disconnect() []SubscriberHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return nil
	}
	s.state = StateDisconnected

	handles := make([]SubscriberHandle, 0, len(s.subscribers))
	for id, ref := range s.subscribers {
		handles = append(handles, SubscriberHandle{ID: id, TopicID: ref.topicID, QueueID: ref.queueID})
	}
	s.subscribers = nil
	return handles
}

// SubscriberHandle names a subscriber along with its owning topic/queue.
type SubscriberHandle struct {
	ID      string
	TopicID string
	QueueID string
}

// attachSubscriber records that subscriberID was created via this session
// against the given topic/queue, so ConfirmDelivery and disconnect cleanup
// can find it later.
func (s *Session) attachSubscriber(subscriberID, topicID, queueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers != nil {
		s.subscribers[subscriberID] = subscriberRef{topicID: topicID, queueID: queueID}
	}
}

func (s *Session) detachSubscriber(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers != nil {
		delete(s.subscribers, subscriberID)
	}
}

// lookupSubscriber returns the topic/queue a subscriber id belongs to.
func (s *Session) lookupSubscriber(subscriberID string) (topicID, queueID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, found := s.subscribers[subscriberID]
	return ref.topicID, ref.queueID, found
}

// Send writes a packet to the client. It never runs while a topic lock is
// held by the same goroutine.
func (s *Session) Send(p packets.Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writer.WritePacket(p)
}

// Reject sends a Reject packet. It does not disconnect the session itself;
// callers that mean to tear the connection down entirely should follow it
// with App.Disconnect so subscriber cleanup runs against the real
// subscriber list rather than racing Reject's own state transition.
func (s *Session) Reject(message string) {
	_ = s.Send(&packets.RejectPacket{Message: message})
}

// Registry tracks live sessions by id for lookup during cleanup and the
// dead-subscriber kicker.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session for id, if still connected.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}
