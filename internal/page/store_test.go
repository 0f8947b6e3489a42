package page

import (
	"sync"
	"testing"
)

func TestGetOrReserveSingleFlight(t *testing.T) {
	s := NewStore()

	p1, wasNew1 := s.GetOrReserve(3)
	if !wasNew1 {
		t.Fatal("first reservation should report wasNew=true")
	}

	p2, wasNew2 := s.GetOrReserve(3)
	if wasNew2 {
		t.Fatal("second reservation should report wasNew=false")
	}
	if p1 != p2 {
		t.Fatal("GetOrReserve should return the same page for the same id")
	}
}

func TestGetOnlyReturnsReadyPages(t *testing.T) {
	s := NewStore()
	s.GetOrReserve(1)

	if _, ok := s.Get(1); ok {
		t.Fatal("Get should not return an Empty page")
	}

	s.Restore(1, map[int64]Entry{1000: {Kind: EntryReady, Message: Message{Content: []byte("hi")}}})

	p, ok := s.Get(1)
	if !ok || p.ID() != 1 {
		t.Fatal("Get should return the page once Ready")
	}
}

func TestGCEvictsOnlyReadyBelowFloor(t *testing.T) {
	s := NewStore()

	for _, id := range []int64{0, 1, 2} {
		s.GetOrReserve(id)
		s.Restore(id, map[int64]Entry{})
	}
	s.GetOrReserve(3) // left Empty, must survive GC regardless of floor

	evicted := s.GC(4)
	if evicted != 3 {
		t.Fatalf("GC evicted %d pages, want 3", evicted)
	}
	if s.Len() != 1 {
		t.Fatalf("store has %d pages after GC, want 1", s.Len())
	}
	if _, ok := s.pages[3]; !ok {
		t.Fatal("Empty page below floor should not be evicted")
	}
}

func TestGetMessageSize(t *testing.T) {
	s := NewStore()
	pageID := PageID(Width + 5)
	s.GetOrReserve(pageID)

	if probe, _ := s.GetMessageSize(Width + 5); probe != SizeNotLoaded {
		t.Fatalf("probe before restore = %v, want SizeNotLoaded", probe)
	}

	entries := map[int64]Entry{
		Width + 5: {Kind: EntryReady, Message: Message{Content: []byte("abcde")}},
		Width + 6: {Kind: EntryMissing},
	}
	s.Restore(pageID, entries)

	if probe, size := s.GetMessageSize(Width + 5); probe != SizeReady || size != 5 {
		t.Fatalf("probe after restore = %v, %d, want SizeReady, 5", probe, size)
	}
	if probe, _ := s.GetMessageSize(Width + 6); probe != SizeMissing {
		t.Fatalf("probe for missing id = %v, want SizeMissing", probe)
	}
}

func TestRestoreWakesWaiters(t *testing.T) {
	s := NewStore()
	p, _ := s.GetOrReserve(0)
	p.markLoading()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.WaitReady()
	}()

	p.Restore(map[int64]Entry{0: {Kind: EntryReady}})
	wg.Wait()
}
