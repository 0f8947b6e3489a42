package bus

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pagebus/busd/internal/page"
	"github.com/pagebus/busd/internal/pageloader"
	"github.com/pagebus/busd/internal/queuestate"
	"github.com/pagebus/busd/internal/subscriberset"
)

// recoverTask runs fn, logging and swallowing any panic so one bad tick of
// a background loop (flush, GC, kicker) can't take the whole process down;
// the loop's own ticker carries it into the next tick.
func recoverTask(log *zap.Logger, task string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Sugar().Errorw("background task panicked",
				"task", task, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Option configures an App at construction time.
type Option func(*App)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Registry) Option {
	return func(a *App) { a.metrics = m }
}

// App is the composition root: the topic registry, the session registry,
// the persistence backend, and the background loops (flush, GC, kicker)
// that drive the system between client-triggered operations.
type App struct {
	cfg  Config
	repo PageRepo
	log  *zap.Logger

	metrics *Registry

	mu     sync.RWMutex
	topics map[string]*Topic

	Sessions *Registry

	shuttingDown atomic32

	// immediateFlush wakes flushLoop ahead of its next tick when a
	// publish carries the persist_immediately flag.
	immediateFlush chan struct{}
}

// NewApp returns an App backed by repo, configured by cfg and opts.
func NewApp(cfg Config, repo PageRepo, opts ...Option) *App {
	a := &App{
		cfg:            cfg,
		repo:           repo,
		log:            zap.NewNop(),
		metrics:        NewMetricsRegistry("busd"),
		topics:         make(map[string]*Topic),
		Sessions:       NewRegistry(),
		immediateFlush: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// atomic32 is a mutex-guarded bool flag that can be set once and read
// concurrently.
type atomic32 struct {
	mu  sync.RWMutex
	set bool
}

func (f *atomic32) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

func (f *atomic32) Get() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set
}

// repoAdapter bridges PageRepo (bus.Message) to pageloader.Backend
// (page.Message); the wire types differ so internal/pageloader stays free
// of a dependency back on the root package.
type repoAdapter struct {
	repo PageRepo
}

func (r repoAdapter) LoadPage(ctx context.Context, topicID string, pageID int64, fromID, toID int64) (map[int64]page.Message, error) {
	messages, err := r.repo.LoadPage(ctx, topicID, pageID, fromID, toID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]page.Message, len(messages))
	for id, m := range messages {
		out[id] = m.toPage()
	}
	return out, nil
}

// topic returns the topic for id, creating it (with a fresh page loader)
// if autoCreate is true and it does not yet exist.
func (a *App) topic(id string, autoCreate bool) (*Topic, bool) {
	a.mu.RLock()
	t, ok := a.topics[id]
	a.mu.RUnlock()
	if ok {
		return t, true
	}
	if !autoCreate {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok = a.topics[id]; ok {
		return t, true
	}

	loader := pageloader.New(repoAdapter{repo: a.repo}, a.log, a.shuttingDown.Get)
	t = NewTopic(id, loader, a.cfg.MaxDeliverySize, a.log)
	a.topics[id] = t
	return t, true
}

// Publish validates and applies a Publish packet, returning only an error;
// the caller pairs its own request id with the PublishResponse.
// persistImmediately nudges the journal flusher to run ahead of its next
// tick instead of batching this write with the next one.
func (a *App) Publish(ctx context.Context, topicID string, entries []Message, persistImmediately bool) error {
	if err := validateID(topicID, "topic", DefaultMaxTopicIDLength); err != nil {
		return err
	}

	t, ok := a.topic(topicID, a.cfg.AutoCreateTopicOnPublish)
	if !ok {
		return newError(ErrTopicNotFound, topicID)
	}

	_, _, toDeliver := t.Publish(entries, time.Now().UnixMicro())
	a.metrics.MessagesPublished.Add(float64(len(entries)))
	for _, q := range toDeliver {
		go t.deliver(ctx, q, a.Sessions)
	}

	if persistImmediately {
		select {
		case a.immediateFlush <- struct{}{}:
		default:
			// a flush is already pending; this publish rides along with it.
		}
	}
	return nil
}

// Restore rebuilds in-memory topic/queue state from the persisted
// topics/queues snapshot. Call once at startup, after NewApp and before
// RunBackground or the TCP listener starts accepting connections — pages
// are not restored, they are lazily reloaded on first delivery miss same
// as any other eviction.
func (a *App) Restore(ctx context.Context) error {
	snapshots, err := a.repo.LoadTopicsAndQueues(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		t, _ := a.topic(snap.TopicID, true)
		t.Restore(snap)
	}
	return nil
}

// Subscribe attaches session to topicID's queueID, creating the queue (and
// topic, if configured) as needed, and attaches the caller-supplied
// subscriberID to it. A kicked incumbent (PermanentSingleSubscriber) is rejected
// and its bucket requeued before the new subscriber starts receiving.
func (a *App) Subscribe(ctx context.Context, topicID, queueID string, kind queuestate.Kind, session *Session, subscriberID string) error {
	if err := validateID(topicID, "topic", DefaultMaxTopicIDLength); err != nil {
		return err
	}
	if err := validateID(queueID, "queue", DefaultMaxTopicIDLength); err != nil {
		return err
	}

	t, ok := a.topic(topicID, a.cfg.AutoCreateTopicOnSubscribe)
	if !ok {
		return newError(ErrTopicNotFound, topicID)
	}

	q := t.EnsureQueue(queueID, kind)

	single := kind == queuestate.PermanentSingleSubscriber
	kicked := q.subscribers.Attach(subscriberID, session.ID, single)
	if kicked != nil {
		q.state.MarkNotDelivered(kicked.ID)
		q.state.RemoveSubscriber()
		if kickedSession, ok := a.Sessions.Get(kicked.SessionID); ok {
			kickedSession.Reject("kicked by a new subscriber on a single-subscriber queue")
			a.Disconnect(kickedSession)
		}
	}

	q.state.AddSubscriber()
	session.attachSubscriber(subscriberID, topicID, queueID)

	go t.deliver(ctx, q, a.Sessions)
	return nil
}

// Confirm applies a ConfirmDelivery packet, routing it to the queue the
// session recorded the subscriber against.
func (a *App) Confirm(ctx context.Context, session *Session, subscriberID string, positive, negative []int64) error {
	topicID, queueID, ok := session.lookupSubscriber(subscriberID)
	if !ok {
		return newError(ErrSubscriberNotFound, subscriberID)
	}

	t, ok := a.topic(topicID, false)
	if !ok {
		return newError(ErrTopicNotFound, topicID)
	}

	q := t.EnsureQueue(queueID, queuestate.Permanent) // no-op if already exists
	q.state.Confirmed(subscriberID, positive, negative)
	q.subscribers.MarkIdle(subscriberID)
	t.metrics.onConfirmed(len(positive), len(negative))
	a.metrics.ConfirmedPositive.Add(float64(len(positive)))
	a.metrics.ConfirmedNegative.Add(float64(len(negative)))

	go t.deliver(ctx, q, a.Sessions)
	return nil
}

// Disconnect unrolls every subscriber the session owned: their in-flight
// buckets return to ready, and DeleteOnDisconnect queues with no
// subscribers left are torn down.
func (a *App) Disconnect(session *Session) {
	handles := session.Disconnect()
	a.Sessions.Remove(session.ID)

	for _, h := range handles {
		t, ok := a.topic(h.TopicID, false)
		if !ok {
			continue
		}
		q := t.EnsureQueue(h.QueueID, queuestate.Permanent)

		sub, ok := q.subscribers.Detach(h.ID)
		if !ok {
			// already removed (e.g. kicked by a new single-subscriber
			// Attach before this disconnect ran its course) — the kicker
			// already did the bucket/count bookkeeping for it.
			continue
		}
		if sub.Status == subscriberset.OnDelivery {
			q.state.MarkNotDelivered(sub.ID)
		}

		if shouldDelete := q.state.RemoveSubscriber(); shouldDelete {
			t.removeQueue(h.QueueID)
		}
	}
}

// Shutdown marks the app draining; the page loader abandons in-flight
// retries between attempts. Only the page loader reads the flag: Publish,
// Subscribe and Confirm still run after Shutdown.
func (a *App) Shutdown() {
	a.shuttingDown.Set()
}

// RunBackground starts the flush/GC/kicker loops and blocks until ctx is
// canceled or one of them fails.
func (a *App) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.flushLoop(ctx) })
	g.Go(func() error { return a.gcLoop(ctx) })
	g.Go(func() error { return a.kickerLoop(ctx) })

	return g.Wait()
}

func (a *App) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.flushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			recoverTask(a.log, "flush", func() { a.flushOnce(context.Background()) })
			return nil
		case <-ticker.C:
			recoverTask(a.log, "flush", func() { a.flushOnce(ctx) })
		case <-a.immediateFlush:
			recoverTask(a.log, "flush", func() { a.flushOnce(ctx) })
		}
	}
}

func (a *App) flushOnce(ctx context.Context) {
	for _, t := range a.snapshotTopics() {
		pending := t.DrainPending()
		if len(pending) == 0 {
			continue
		}
		if err := a.repo.SaveMessages(ctx, t.id, pending); err != nil {
			a.log.Warn("message journal flush failed", zap.String("topic_id", t.id), zap.Error(err))
		}
	}

	snapshot := make([]TopicSnapshot, 0)
	for _, t := range a.snapshotTopics() {
		snapshot = append(snapshot, TopicSnapshot{TopicID: t.id, MaxMessageID: t.MaxMessageID(), Queues: t.Snapshot()})
	}
	if len(snapshot) > 0 {
		if err := a.repo.SaveTopicsAndQueues(ctx, snapshot); err != nil {
			a.log.Warn("queue snapshot flush failed", zap.Error(err))
		}
	}
}

func (a *App) gcLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.gcInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			recoverTask(a.log, "gc", func() {
				for _, t := range a.snapshotTopics() {
					evicted := t.GC()
					if evicted > 0 {
						a.metrics.PagesEvicted.Add(float64(evicted))
					}
				}
			})
		}
	}
}

func (a *App) kickerLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.kickerInterval())
	defer ticker.Stop()

	timeout := a.cfg.deliveryTimeout()
	kicked := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			recoverTask(a.log, "kicker", func() {
				now := time.Now()
				for _, t := range a.snapshotTopics() {
					for _, q := range t.allQueues() {
						for _, dead := range q.subscribers.DeadSince(now, timeout) {
							if kicked[dead.ID] {
								continue
							}
							kicked[dead.ID] = true
							if session, ok := a.Sessions.Get(dead.SessionID); ok {
								a.log.Info("kicking dead subscriber",
									zap.String("subscriber_id", dead.ID), zap.String("session_id", dead.SessionID))
								a.Disconnect(session)
								a.metrics.SubscribersKicked.Inc()
							}
						}
					}
				}
			})
		}
	}
}

func (a *App) snapshotTopics() []*Topic {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Topic, 0, len(a.topics))
	for _, t := range a.topics {
		out = append(out, t)
	}
	return out
}
