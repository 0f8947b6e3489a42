package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	bus "github.com/pagebus/busd"
	"github.com/pagebus/busd/internal/intervalset"
	"github.com/pagebus/busd/internal/queuestate"
)

// snapshots persists the cluster-wide topics_and_queues table: one row per
// (topic, queue) holding the queue's kind and its ready-set ranges as a
// jsonb array, overwritten wholesale on every flush.
type snapshots struct {
	pool *pgxpool.Pool
}

func newSnapshots(ctx context.Context, dsn string) (*snapshots, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &snapshots{pool: pool}, nil
}

const createSnapshotTableSQL = `
CREATE TABLE IF NOT EXISTS topics_and_queues (
	topic_id        text NOT NULL,
	queue_id        text NOT NULL,
	kind            smallint NOT NULL,
	max_message_id  bigint NOT NULL,
	ranges          jsonb NOT NULL,
	updated_at      timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (topic_id, queue_id)
)`

// migrate creates the snapshot table if it does not already exist.
func (s *snapshots) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createSnapshotTableSQL)
	return err
}

type rangePair struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// save overwrites the snapshot rows for every topic in snapshot, within a
// single transaction per call.
func (s *snapshots) save(ctx context.Context, snapshot []bus.TopicSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range snapshot {
		if _, err := tx.Exec(ctx, `DELETE FROM topics_and_queues WHERE topic_id = $1`, t.TopicID); err != nil {
			return fmt.Errorf("clear snapshot for %s: %w", t.TopicID, err)
		}

		for _, q := range t.Queues {
			ranges := make([]rangePair, len(q.Ranges))
			for i, r := range q.Ranges {
				ranges[i] = rangePair{From: r.From, To: r.To}
			}
			rangesJSON, err := json.Marshal(ranges)
			if err != nil {
				return fmt.Errorf("encode ranges for %s/%s: %w", t.TopicID, q.QueueID, err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO topics_and_queues (topic_id, queue_id, kind, max_message_id, ranges)
				 VALUES ($1, $2, $3, $4, $5::jsonb)`,
				t.TopicID, q.QueueID, int(q.Kind), t.MaxMessageID, rangesJSON)
			if err != nil {
				return fmt.Errorf("insert snapshot for %s/%s: %w", t.TopicID, q.QueueID, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// load reads back every topic's last-persisted snapshot, for startup
// recovery. Rows are grouped by topic_id; max_message_id is stored
// identically on every row of a topic (see save), so the first row seen
// for a topic supplies it.
func (s *snapshots) load(ctx context.Context) ([]bus.TopicSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic_id, queue_id, kind, max_message_id, ranges FROM topics_and_queues`)
	if err != nil {
		return nil, fmt.Errorf("query topics_and_queues: %w", err)
	}
	defer rows.Close()

	byTopic := make(map[string]*bus.TopicSnapshot)
	order := make([]string, 0)

	for rows.Next() {
		var (
			topicID, queueID string
			kind             int
			maxMessageID     int64
			rangesJSON       []byte
		)
		if err := rows.Scan(&topicID, &queueID, &kind, &maxMessageID, &rangesJSON); err != nil {
			return nil, fmt.Errorf("scan topics_and_queues row: %w", err)
		}

		var rawRanges []rangePair
		if err := json.Unmarshal(rangesJSON, &rawRanges); err != nil {
			return nil, fmt.Errorf("decode ranges for %s/%s: %w", topicID, queueID, err)
		}
		ranges := make([]intervalset.Range, len(rawRanges))
		for i, r := range rawRanges {
			ranges[i] = intervalset.Range{From: r.From, To: r.To}
		}

		t, ok := byTopic[topicID]
		if !ok {
			t = &bus.TopicSnapshot{TopicID: topicID, MaxMessageID: maxMessageID}
			byTopic[topicID] = t
			order = append(order, topicID)
		}
		t.Queues = append(t.Queues, bus.QueueSnapshot{
			QueueID: queueID,
			Kind:    queuestate.Kind(kind),
			Ranges:  ranges,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics_and_queues rows: %w", err)
	}

	out := make([]bus.TopicSnapshot, 0, len(order))
	for _, id := range order {
		out = append(out, *byTopic[id])
	}
	return out, nil
}

func (s *snapshots) close() {
	s.pool.Close()
}
