// Package persistence implements bus.PageRepo against real backends: Redis
// for per-topic message pages, Postgres for the cluster-wide topic/queue
// snapshot.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zstd"

	bus "github.com/pagebus/busd"
	"github.com/pagebus/busd/internal/page"
)

// redisMessage is the JSON shape stored per message id inside a page blob.
type redisMessage struct {
	Content   []byte            `json:"content"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// pages stores message pages as one compressed blob per (topic, page) key,
// keyed "busd:page:{topic}:{page_id}".
type pages struct {
	client   *redis.Client
	compress bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newPages(addr, password string, db int, compress bool) (*pages, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &pages{client: client, compress: compress, encoder: encoder, decoder: decoder}, nil
}

func pageKey(topicID string, pageID int64) string {
	return fmt.Sprintf("busd:page:%s:%d", topicID, pageID)
}

// saveMessages appends messages to their page blobs, merging with any
// existing blob so repeated saves of the same id are idempotent.
func (p *pages) saveMessages(ctx context.Context, topicID string, messages []bus.Message) error {
	byPage := make(map[int64]map[int64]redisMessage)
	for _, m := range messages {
		pid := page.PageID(m.ID)
		if byPage[pid] == nil {
			byPage[pid] = make(map[int64]redisMessage)
		}
		byPage[pid][m.ID] = redisMessage{Content: m.Content, Headers: m.Headers, CreatedAt: m.CreatedAt}
	}

	for pid, partial := range byPage {
		existing, err := p.readPage(ctx, topicID, pid)
		if err != nil {
			return err
		}
		for id, m := range partial {
			existing[id] = m
		}
		if err := p.writePage(ctx, topicID, pid, existing); err != nil {
			return err
		}
	}
	return nil
}

// loadPage returns every message known in [fromID, toID] for topicID's pageID.
func (p *pages) loadPage(ctx context.Context, topicID string, pageID, fromID, toID int64) (map[int64]bus.Message, error) {
	raw, err := p.readPage(ctx, topicID, pageID)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]bus.Message, len(raw))
	for id, m := range raw {
		if id < fromID || id > toID {
			continue
		}
		out[id] = bus.Message{ID: id, Content: m.Content, Headers: m.Headers, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

func (p *pages) readPage(ctx context.Context, topicID string, pageID int64) (map[int64]redisMessage, error) {
	raw, err := p.client.Get(ctx, pageKey(topicID, pageID)).Bytes()
	if err == redis.Nil {
		return make(map[int64]redisMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", pageKey(topicID, pageID), err)
	}

	if p.compress {
		raw, err = p.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress page: %w", err)
		}
	}

	var out map[int64]redisMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return out, nil
}

func (p *pages) writePage(ctx context.Context, topicID string, pageID int64, messages map[int64]redisMessage) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(messages); err != nil {
		return fmt.Errorf("encode page: %w", err)
	}

	data := buf.Bytes()
	if p.compress {
		data = p.encoder.EncodeAll(data, nil)
	}

	if err := p.client.Set(ctx, pageKey(topicID, pageID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", pageKey(topicID, pageID), err)
	}
	return nil
}

func (p *pages) close() error {
	p.encoder.Close()
	p.decoder.Close()
	return p.client.Close()
}
