// Package pageloader fetches page content from the persistence backend on
// behalf of a topic's page store, collapsing concurrent fetches for the
// same page into one request.
package pageloader

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pagebus/busd/internal/page"
)

const (
	maxAttempts   = 5
	retryInterval = time.Second
)

// Backend fetches a page's raw message range from the persistence layer.
// A nil, nil return means the range is entirely absent (never published or
// purged), which the loader turns into EntryMissing slots.
type Backend interface {
	LoadPage(ctx context.Context, topicID string, pageID int64, fromID, toID int64) (map[int64]page.Message, error)
}

// Loader fetches pages on demand, deduplicating concurrent requests for the
// same (topicID, pageID) pair and retrying transient backend failures with
// a fixed backoff before giving up and returning an all-Missing page.
type Loader struct {
	backend Backend
	log     *zap.Logger
	group   singleflight.Group

	// shuttingDown is checked between retry attempts so a draining process
	// does not keep retrying into a backend that is going away.
	shuttingDown func() bool
}

// New returns a Loader backed by backend. shuttingDown, if non-nil, is
// polled between retry attempts to abandon a load early during shutdown.
func New(backend Backend, log *zap.Logger, shuttingDown func() bool) *Loader {
	if shuttingDown == nil {
		shuttingDown = func() bool { return false }
	}
	return &Loader{backend: backend, log: log, shuttingDown: shuttingDown}
}

// Load fetches and fully resolves pageID for topicID, returning the result
// to every caller that requested the same page concurrently. It always
// returns a non-nil entries map; entries absent from the backend or left
// unresolved after retries are marked EntryMissing so delivery can proceed.
func (l *Loader) Load(ctx context.Context, topicID string, pageID int64) map[int64]page.Entry {
	key := topicID + "#" + strconv.FormatInt(pageID, 10)

	result, _, _ := l.group.Do(key, func() (interface{}, error) {
		return l.loadWithRetry(ctx, topicID, pageID), nil
	})

	return result.(map[int64]page.Entry)
}

func (l *Loader) loadWithRetry(ctx context.Context, topicID string, pageID int64) map[int64]page.Entry {
	from, to := page.Bounds(pageID)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if l.shuttingDown() {
			break
		}

		messages, err := l.backend.LoadPage(ctx, topicID, pageID, from, to)
		if err == nil {
			return buildEntries(from, to, messages)
		}

		lastErr = err
		if !isTransient(err) {
			break
		}

		if attempt < maxAttempts {
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = maxAttempts
			}
		}
	}

	if l.log != nil {
		l.log.Warn("page load failed, serving missing page",
			zap.String("topic_id", topicID),
			zap.Int64("page_id", pageID),
			zap.Error(lastErr),
		)
	}

	return buildEntries(from, to, nil)
}

// buildEntries maps a backend result onto the page's full id range, filling
// any id absent from messages with EntryMissing.
func buildEntries(from, to int64, messages map[int64]page.Message) map[int64]page.Entry {
	entries := make(map[int64]page.Entry, to-from+1)
	for id := from; id <= to; id++ {
		if msg, ok := messages[id]; ok {
			entries[id] = page.Entry{Kind: page.EntryReady, Message: msg}
		} else {
			entries[id] = page.Entry{Kind: page.EntryMissing}
		}
	}
	return entries
}

// TransientError wraps a backend error that is worth retrying (network
// blip, connection pool exhaustion). Any other error is treated as
// terminal (format/compression failure) and fails the load immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	_, ok := err.(*TransientError)
	return ok
}
