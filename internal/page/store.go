package page

import "sync"

// SizeProbe is the result of a size-only lookup, used by delivery to decide
// batching without copying message content.
type SizeProbe int

const (
	SizeNotLoaded SizeProbe = iota
	SizeMissing
	SizeReady // use the accompanying int for the byte count
)

// Store caches a single topic's pages in memory. One Store exists per
// topic; callers serialize access to it the same way the topic serializes
// access to its queues.
type Store struct {
	mu    sync.RWMutex
	pages map[int64]*Page
}

// NewStore returns an empty page store.
func NewStore() *Store {
	return &Store{pages: make(map[int64]*Page)}
}

// Get returns the page for pageID only if it is in the Ready state.
func (s *Store) Get(pageID int64) (*Page, bool) {
	s.mu.RLock()
	p, ok := s.pages[pageID]
	s.mu.RUnlock()

	if !ok || p.State() != Ready {
		return nil, false
	}
	return p, true
}

// GetOrReserve returns the page for pageID, inserting an Empty placeholder
// if one does not exist. wasNew reports whether the caller just created the
// placeholder and is therefore responsible for loading it; the caller must
// call MarkLoading once it actually starts the fetch.
func (s *Store) GetOrReserve(pageID int64) (p *Page, wasNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pages[pageID]; ok {
		return existing, false
	}

	p = newEmptyPage(pageID)
	s.pages[pageID] = p
	return p, true
}

// MarkLoading transitions pageID's page from Empty to Loading, reporting
// that a fetch is in flight via Page.State until Restore completes it. A
// no-op if pageID is unknown (evicted or never reserved).
func (s *Store) MarkLoading(pageID int64) {
	s.mu.RLock()
	p, ok := s.pages[pageID]
	s.mu.RUnlock()

	if ok {
		p.markLoading()
	}
}

// Restore replaces a reserved page's contents, same as Page.Restore, kept
// here for callers that only hold a page id.
func (s *Store) Restore(pageID int64, entries map[int64]Entry) {
	s.mu.RLock()
	p, ok := s.pages[pageID]
	s.mu.RUnlock()

	if !ok {
		return
	}
	p.Restore(entries)
}

// GC evicts every Ready page with id < minRequiredPageID. Loading and Empty
// pages are never evicted: a waiter may still be blocked on them.
func (s *Store) GC(minRequiredPageID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, p := range s.pages {
		if id < minRequiredPageID && p.State() == Ready {
			delete(s.pages, id)
			evicted++
		}
	}
	return evicted
}

// GetMessageSize probes a message id's size without requiring the caller to
// read the full entry. It returns SizeNotLoaded/SizeMissing/SizeReady and,
// for SizeReady, the byte size.
func (s *Store) GetMessageSize(messageID int64) (SizeProbe, int) {
	pageID := PageID(messageID)

	s.mu.RLock()
	p, ok := s.pages[pageID]
	s.mu.RUnlock()

	if !ok || p.State() != Ready {
		return SizeNotLoaded, 0
	}

	entry := p.EntryAt(messageID)
	switch entry.Kind {
	case EntryMissing:
		return SizeMissing, 0
	case EntryReady:
		return SizeReady, entry.Message.Size()
	default:
		return SizeNotLoaded, 0
	}
}

// Len returns the number of pages currently tracked, for tests and metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}
