package pageloader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/pagebus/busd/internal/page"
)

type fakeBackend struct {
	calls   int32
	fail    int32 // number of TransientError failures before succeeding
	err     error // non-transient error to return instead, if set
	result  map[int64]page.Message
}

func (f *fakeBackend) LoadPage(ctx context.Context, topicID string, pageID int64, fromID, toID int64) (map[int64]page.Message, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	if int32(n) <= f.fail {
		return nil, &TransientError{Err: errors.New("connection reset")}
	}
	return f.result, nil
}

func TestLoadSucceedsAfterTransientRetries(t *testing.T) {
	backend := &fakeBackend{
		fail:   2,
		result: map[int64]page.Message{5: {Content: []byte("hi")}},
	}
	loader := New(backend, nil, nil)

	entries := loader.Load(context.Background(), "topic-a", 0)

	if entries[5].Kind != page.EntryReady {
		t.Fatalf("entry 5 kind = %v, want EntryReady", entries[5].Kind)
	}
	if entries[6].Kind != page.EntryMissing {
		t.Fatalf("entry 6 kind = %v, want EntryMissing (not in backend result)", entries[6].Kind)
	}
	if int(backend.calls) != 3 {
		t.Fatalf("backend called %d times, want 3 (2 failures + 1 success)", backend.calls)
	}
}

func TestLoadReturnsMissingOnTerminalFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("bad zip format")}
	loader := New(backend, nil, nil)

	entries := loader.Load(context.Background(), "topic-a", 0)

	for id, e := range entries {
		if e.Kind != page.EntryMissing {
			t.Fatalf("entry %d kind = %v, want EntryMissing", id, e.Kind)
		}
	}
	if int(backend.calls) != 1 {
		t.Fatalf("backend called %d times, want 1 (non-transient error must not retry)", backend.calls)
	}
}

func TestLoadReturnsMissingAfterMaxAttempts(t *testing.T) {
	backend := &fakeBackend{fail: maxAttempts + 1}
	loader := New(backend, nil, nil)

	entries := loader.Load(context.Background(), "topic-a", 0)

	for id, e := range entries {
		if e.Kind != page.EntryMissing {
			t.Fatalf("entry %d kind = %v, want EntryMissing", id, e.Kind)
		}
	}
	if int(backend.calls) != maxAttempts {
		t.Fatalf("backend called %d times, want %d", backend.calls, maxAttempts)
	}
}

func TestLoadCoversFullPageRange(t *testing.T) {
	backend := &fakeBackend{result: map[int64]page.Message{}}
	loader := New(backend, nil, nil)

	entries := loader.Load(context.Background(), "topic-a", 2)

	from, to := page.Bounds(2)
	if int64(len(entries)) != to-from+1 {
		t.Fatalf("got %d entries, want %d", len(entries), to-from+1)
	}
}
