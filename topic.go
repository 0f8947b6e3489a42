package bus

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pagebus/busd/internal/page"
	"github.com/pagebus/busd/internal/pageloader"
	"github.com/pagebus/busd/internal/queuestate"
)

// Topic limits. DefaultMaxTopicIDLength bounds topic and queue ids in
// validateID; message content size is not checked against
// DefaultMaxContentSize, and getLimit has no callers.
const (
	DefaultMaxTopicIDLength = 255
	DefaultMaxContentSize   = 256 << 20 // 256MB, bounds a single message
)

func getLimit(configured, defaultLimit int) int {
	if configured > 0 {
		return configured
	}
	return defaultLimit
}

func validateID(id, kind string, maxLen int) error {
	if id == "" {
		return newError(ErrTopicNotFound, kind+" id cannot be empty")
	}
	if len(id) > maxLen {
		return newError(ErrTopicNotFound, kind+" id exceeds maximum length")
	}
	if strings.Contains(id, "\x00") {
		return newError(ErrTopicNotFound, kind+" id contains null byte")
	}
	if !utf8.ValidString(id) {
		return newError(ErrTopicNotFound, kind+" id is not valid UTF-8")
	}
	return nil
}

// unpersisted is a buffered range of messages awaiting a journal flush.
type unpersisted struct {
	messages []Message
}

// Topic is one topic's full in-memory state: its page cache and its
// queues (the publishers map is never filled). All mutation of
// queues and pages happens while holding lock; packet sends happen after
// it is released (see delivery.go).
type Topic struct {
	lock sync.Mutex

	id            string
	nextMessageID int64

	pages  *page.Store
	loader *pageloader.Loader
	queues map[string]*queue

	publishers map[string]bool // session id -> active

	pending unpersisted // buffered since last flush

	metrics *topicMetrics
	log     *zap.Logger

	maxDeliverySize int
}

// NewTopic returns an empty topic ready to accept publishes and
// subscriptions.
func NewTopic(id string, loader *pageloader.Loader, maxDeliverySize int, log *zap.Logger) *Topic {
	return &Topic{
		id:              id,
		pages:           page.NewStore(),
		loader:          loader,
		queues:          make(map[string]*queue),
		publishers:      make(map[string]bool),
		metrics:         newTopicMetrics(),
		log:             log,
		maxDeliverySize: maxDeliverySize,
	}
}

// ID returns the topic's id.
func (t *Topic) ID() string { return t.id }

// EnsureQueue returns the queue for id, creating it with kind if absent.
func (t *Topic) EnsureQueue(id string, kind queuestate.Kind) *queue {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.ensureQueueLocked(id, kind)
}

func (t *Topic) ensureQueueLocked(id string, kind queuestate.Kind) *queue {
	q, ok := t.queues[id]
	if !ok {
		q = newQueue(id, t.id, kind)
		if t.nextMessageID > 0 {
			// a fresh queue subscribes to everything already published on
			// this topic, not just messages published from here on.
			q.state.Enqueue(0, t.nextMessageID-1)
		}
		t.queues[id] = q
	}
	return q
}

// Publish assigns monotonic ids to entries, enqueues them on every queue,
// buffers them for the journal flush, and returns the assigned id range
// ([firstID, lastID]) plus the queues whose delivery should now be
// attempted.
func (t *Topic) Publish(entries []Message, now int64) (firstID, lastID int64, toDeliver []*queue) {
	t.lock.Lock()

	firstID = t.nextMessageID
	for i := range entries {
		entries[i].ID = t.nextMessageID
		entries[i].CreatedAt = now
		t.nextMessageID++
	}
	lastID = t.nextMessageID - 1

	t.pending.messages = append(t.pending.messages, entries...)

	for _, q := range t.queues {
		q.state.Enqueue(firstID, lastID)
	}

	// populate the page(s) covering this range directly, since the
	// publisher already has the content in hand — no need to round-trip
	// through the persistence backend to read back what was just written.
	t.populatePagesLocked(entries)

	toDeliver = make([]*queue, 0, len(t.queues))
	for _, q := range t.queues {
		toDeliver = append(toDeliver, q)
	}

	t.metrics.onPublish(len(entries))

	t.lock.Unlock()
	return firstID, lastID, toDeliver
}

func (t *Topic) populatePagesLocked(entries []Message) {
	byPage := make(map[int64]map[int64]page.Entry)
	for _, m := range entries {
		pid := page.PageID(m.ID)
		if byPage[pid] == nil {
			byPage[pid] = make(map[int64]page.Entry)
		}
		byPage[pid][m.ID] = page.Entry{Kind: page.EntryReady, Message: m.toPage()}
	}

	for pid, partial := range byPage {
		p, wasNew := t.pages.GetOrReserve(pid)
		if wasNew {
			from, to := page.Bounds(pid)
			full := make(map[int64]page.Entry, to-from+1)
			for id := from; id <= to; id++ {
				if e, ok := partial[id]; ok {
					full[id] = e
				} else {
					full[id] = page.Entry{Kind: page.EntryMissing}
				}
			}
			p.Restore(full)
		}
	}
}

// Restore rebuilds a freshly constructed topic's state from a persisted
// snapshot: the message id watermark and each queue's ready-set ranges.
// Pages are not restored here — they are lazily loaded on first delivery,
// the same as any other cache miss. Must be called before any publish or
// subscribe traffic reaches this topic.
func (t *Topic) Restore(snapshot TopicSnapshot) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if watermark := snapshot.MaxMessageID + 1; watermark > t.nextMessageID {
		t.nextMessageID = watermark
	}
	for _, qs := range snapshot.Queues {
		q := t.ensureQueueLocked(qs.QueueID, qs.Kind)
		q.state.RestoreRanges(qs.Ranges)
	}
}

// allQueues returns a snapshot of the topic's queues, for the kicker loop.
func (t *Topic) allQueues() []*queue {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make([]*queue, 0, len(t.queues))
	for _, q := range t.queues {
		out = append(out, q)
	}
	return out
}

// removeQueue tears down a DeleteOnDisconnect queue once its last
// subscriber has gone.
func (t *Topic) removeQueue(id string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.queues, id)
}

// GC evicts pages below the minimum message id any queue still cares
// about.
func (t *Topic) GC() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	floor := t.nextMessageID
	for _, q := range t.queues {
		if min, ok := q.state.MinMessageID(); ok && min < floor {
			floor = min
		}
	}
	return t.pages.GC(page.PageID(floor))
}

// DrainPending returns and clears the buffered unpersisted messages, for
// the journal flusher.
func (t *Topic) DrainPending() []Message {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.pending.messages) == 0 {
		return nil
	}
	out := t.pending.messages
	t.pending.messages = nil
	return out
}

// MaxMessageID returns the highest id assigned so far, or -1 if none.
func (t *Topic) MaxMessageID() int64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.nextMessageID - 1
}

// Snapshot returns the persistable state of every queue on this topic.
func (t *Topic) Snapshot() []QueueSnapshot {
	t.lock.Lock()
	defer t.lock.Unlock()

	snaps := make([]QueueSnapshot, 0, len(t.queues))
	for _, q := range t.queues {
		snaps = append(snaps, QueueSnapshot{
			QueueID: q.id,
			Kind:    q.state.Kind(),
			Ranges:  q.state.Ranges(),
		})
	}
	return snaps
}

// scheduleLoad marks pageID Loading and starts its fetch in the background;
// done runs once the page reaches Ready, re-entering delivery instead of
// blocking the caller on it.
func (t *Topic) scheduleLoad(ctx context.Context, pageID int64, done func()) {
	t.pages.MarkLoading(pageID)
	go func() {
		entries := t.loader.Load(ctx, t.id, pageID)
		t.pages.Restore(pageID, entries)
		done()
	}()
}
