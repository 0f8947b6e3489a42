package persistence

import (
	"context"
	"fmt"

	bus "github.com/pagebus/busd"
)

// Store is the concrete bus.PageRepo: message pages in Redis, the
// topic/queue snapshot in Postgres.
type Store struct {
	pages     *pages
	snapshots *snapshots
}

// Config names the two backends. Compress toggles zstd compression of page
// blobs before they're written to Redis.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Compress      bool

	PostgresDSN string
}

// Open connects to both backends and ensures the Postgres snapshot table
// exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	p, err := newPages(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Compress)
	if err != nil {
		return nil, err
	}

	s, err := newSnapshots(ctx, cfg.PostgresDSN)
	if err != nil {
		p.close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		p.close()
		s.close()
		return nil, fmt.Errorf("migrate snapshot schema: %w", err)
	}

	return &Store{pages: p, snapshots: s}, nil
}

// SaveMessages implements bus.PageRepo.
func (s *Store) SaveMessages(ctx context.Context, topicID string, messages []bus.Message) error {
	return s.pages.saveMessages(ctx, topicID, messages)
}

// LoadPage implements bus.PageRepo.
func (s *Store) LoadPage(ctx context.Context, topicID string, pageID, fromID, toID int64) (map[int64]bus.Message, error) {
	return s.pages.loadPage(ctx, topicID, pageID, fromID, toID)
}

// SaveTopicsAndQueues implements bus.PageRepo.
func (s *Store) SaveTopicsAndQueues(ctx context.Context, snapshot []bus.TopicSnapshot) error {
	return s.snapshots.save(ctx, snapshot)
}

// LoadTopicsAndQueues implements bus.PageRepo.
func (s *Store) LoadTopicsAndQueues(ctx context.Context) ([]bus.TopicSnapshot, error) {
	return s.snapshots.load(ctx)
}

// Close releases both backends' connections.
func (s *Store) Close() error {
	err := s.pages.close()
	s.snapshots.close()
	return err
}

var _ bus.PageRepo = (*Store)(nil)
