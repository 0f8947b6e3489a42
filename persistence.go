package bus

import (
	"context"

	"github.com/pagebus/busd/internal/intervalset"
	"github.com/pagebus/busd/internal/queuestate"
)

// QueueSnapshot is one queue's persistable state, part of the cluster-wide
// topics_and_queues snapshot.
type QueueSnapshot struct {
	QueueID string
	Kind    queuestate.Kind
	Ranges  []intervalset.Range
}

// TopicSnapshot is one topic's persistable state.
type TopicSnapshot struct {
	TopicID       string
	MaxMessageID  int64
	Queues        []QueueSnapshot
}

// PageRepo is the persistence backend's RPC surface: a blob store for
// message pages plus the cluster-wide topic/queue snapshot. Implementations
// live in internal/persistence (Redis for pages, Postgres for snapshots).
type PageRepo interface {
	// SaveMessages appends a batch of messages for topicID. Idempotent by
	// (topicID, message id): replaying the same batch must not duplicate.
	SaveMessages(ctx context.Context, topicID string, messages []Message) error

	// LoadPage fetches the message range [fromID, toID] for topicID's
	// pageID. A nil map with a nil error means the range is entirely
	// absent (never published, or purged).
	LoadPage(ctx context.Context, topicID string, pageID int64, fromID, toID int64) (map[int64]Message, error)

	// SaveTopicsAndQueues persists the cluster-wide snapshot used on
	// restart to rebuild topics without replaying the full message log.
	SaveTopicsAndQueues(ctx context.Context, snapshot []TopicSnapshot) error

	// LoadTopicsAndQueues returns every topic's last-persisted snapshot, for
	// startup recovery. Called once, before any publish/subscribe traffic
	// is dispatched.
	LoadTopicsAndQueues(ctx context.Context) ([]TopicSnapshot, error)
}
