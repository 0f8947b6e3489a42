package integration

import (
	"context"
	"reflect"
	"testing"

	bus "github.com/pagebus/busd"
	"github.com/pagebus/busd/internal/intervalset"
	"github.com/pagebus/busd/internal/queuestate"
)

func TestSaveAndLoadPageRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	messages := []bus.Message{
		{ID: 0, Content: []byte("hello"), Headers: map[string]string{"k": "v"}, CreatedAt: 1000},
		{ID: 1, Content: []byte("world"), CreatedAt: 1001},
	}
	if err := store.SaveMessages(ctx, "orders", messages); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	loaded, err := store.LoadPage(ctx, "orders", 0, 0, 1)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d messages, want 2", len(loaded))
	}
	if string(loaded[0].Content) != "hello" || loaded[0].Headers["k"] != "v" {
		t.Fatalf("message 0 corrupted: %+v", loaded[0])
	}
	if string(loaded[1].Content) != "world" {
		t.Fatalf("message 1 corrupted: %+v", loaded[1])
	}
}

func TestSaveMessagesIsIdempotentByID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := []bus.Message{{ID: 0, Content: []byte("v1"), CreatedAt: 1}}
	if err := store.SaveMessages(ctx, "retries", first); err != nil {
		t.Fatalf("SaveMessages first: %v", err)
	}

	replay := []bus.Message{{ID: 0, Content: []byte("v2"), CreatedAt: 1}}
	if err := store.SaveMessages(ctx, "retries", replay); err != nil {
		t.Fatalf("SaveMessages replay: %v", err)
	}

	loaded, err := store.LoadPage(ctx, "retries", 0, 0, 0)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d messages, want 1", len(loaded))
	}
	if string(loaded[0].Content) != "v2" {
		t.Fatalf("replay did not overwrite id 0: got %q", loaded[0].Content)
	}
}

func TestLoadPageOfUnknownTopicIsEmpty(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	loaded, err := store.LoadPage(ctx, "never-published", 0, 0, 999)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no messages for an unpublished topic, got %d", len(loaded))
	}
}

func TestSaveTopicsAndQueuesOverwritesPriorSnapshot(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := []bus.TopicSnapshot{{
		TopicID:      "shipments",
		MaxMessageID: 10,
		Queues: []bus.QueueSnapshot{
			{QueueID: "q1", Kind: queuestate.Permanent, Ranges: []intervalset.Range{{From: 0, To: 10}}},
		},
	}}
	if err := store.SaveTopicsAndQueues(ctx, first); err != nil {
		t.Fatalf("SaveTopicsAndQueues first: %v", err)
	}

	second := []bus.TopicSnapshot{{
		TopicID:      "shipments",
		MaxMessageID: 20,
		Queues: []bus.QueueSnapshot{
			{QueueID: "q1", Kind: queuestate.Permanent, Ranges: []intervalset.Range{{From: 11, To: 20}}},
		},
	}}
	if err := store.SaveTopicsAndQueues(ctx, second); err != nil {
		t.Fatalf("SaveTopicsAndQueues second: %v", err)
	}

	loaded, err := store.LoadTopicsAndQueues(ctx)
	if err != nil {
		t.Fatalf("LoadTopicsAndQueues: %v", err)
	}
	snap := findTopicSnapshot(loaded, "shipments")
	if snap == nil {
		t.Fatalf("no snapshot for topic %q in %+v", "shipments", loaded)
	}
	if snap.MaxMessageID != 20 {
		t.Fatalf("MaxMessageID = %d, want 20 (second save should overwrite the first)", snap.MaxMessageID)
	}
	if len(snap.Queues) != 1 {
		t.Fatalf("got %d queues, want 1 (delete-then-insert should leave exactly one row for q1)", len(snap.Queues))
	}
	q := snap.Queues[0]
	wantRanges := []intervalset.Range{{From: 11, To: 20}}
	if q.QueueID != "q1" || q.Kind != queuestate.Permanent || !reflect.DeepEqual(q.Ranges, wantRanges) {
		t.Fatalf("got queue %+v, want QueueID=q1 Kind=Permanent Ranges=%v", q, wantRanges)
	}
}

func findTopicSnapshot(snapshots []bus.TopicSnapshot, topicID string) *bus.TopicSnapshot {
	for i := range snapshots {
		if snapshots[i].TopicID == topicID {
			return &snapshots[i]
		}
	}
	return nil
}
