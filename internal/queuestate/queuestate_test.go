package queuestate

import "testing"

func TestEnqueuePeekDequeue(t *testing.T) {
	s := New("q1", Permanent)
	s.Enqueue(1, 5)

	for want := int64(1); want <= 5; want++ {
		got, ok := s.Peek()
		if !ok || got != want {
			t.Fatalf("Peek() = %d, %v, want %d, true", got, ok, want)
		}
		s.Dequeue(got)
	}

	if _, ok := s.Peek(); ok {
		t.Fatal("Peek() after draining should report ok=false")
	}
}

func TestDequeueOnlyRemovesPeekedID(t *testing.T) {
	s := New("q1", Permanent)
	s.Enqueue(1, 3)

	s.Dequeue(2) // not the min id, must be a no-op

	got, ok := s.Peek()
	if !ok || got != 1 {
		t.Fatalf("Peek() = %d, %v, want 1, true (dequeue of non-min id should be ignored)", got, ok)
	}
}

func TestConfirmedRequeuesNegative(t *testing.T) {
	s := New("q1", Permanent)
	s.Enqueue(1, 3)
	s.Dequeue(1)
	s.Dequeue(2)
	s.Dequeue(3)

	bucket := &Bucket{SubscriberID: "sub1", IDs: []int64{1, 2, 3}}
	s.AttachBucket(bucket)

	s.Confirmed("sub1", []int64{1, 2}, []int64{3})

	got, ok := s.Peek()
	if !ok || got != 3 {
		t.Fatalf("Peek() = %d, %v, want 3, true (negative id should be requeued)", got, ok)
	}
	if _, stillInFlight := s.inFlight["sub1"]; stillInFlight {
		t.Fatal("bucket should be removed from in-flight after confirmation")
	}
}

func TestMarkNotDeliveredRequeuesWholeBucket(t *testing.T) {
	s := New("q1", Permanent)
	s.Enqueue(1, 3)
	s.Dequeue(1)
	s.Dequeue(2)
	s.Dequeue(3)

	bucket := &Bucket{SubscriberID: "sub1", IDs: []int64{1, 2, 3}}
	s.AttachBucket(bucket)

	if ok := s.MarkNotDelivered("sub1"); !ok {
		t.Fatal("MarkNotDelivered should report ok=true for an in-flight subscriber")
	}

	for want := int64(1); want <= 3; want++ {
		got, ok := s.Peek()
		if !ok || got != want {
			t.Fatalf("Peek() = %d, %v, want %d, true", got, ok, want)
		}
		s.Dequeue(got)
	}
}

func TestMarkNotDeliveredUnknownSubscriberIsNoop(t *testing.T) {
	s := New("q1", Permanent)
	if ok := s.MarkNotDelivered("ghost"); ok {
		t.Fatal("MarkNotDelivered should report ok=false for a subscriber with no in-flight bucket")
	}
}

func TestMinMessageIDAcrossReadyAndInFlight(t *testing.T) {
	s := New("q1", Permanent)
	s.Enqueue(10, 12)
	s.Dequeue(10)

	bucket := &Bucket{SubscriberID: "sub1", IDs: []int64{10}}
	s.AttachBucket(bucket)

	min, ok := s.MinMessageID()
	if !ok || min != 10 {
		t.Fatalf("MinMessageID() = %d, %v, want 10, true", min, ok)
	}
}

func TestRemoveSubscriberDeletesOnDisconnectQueue(t *testing.T) {
	s := New("q1", DeleteOnDisconnect)
	s.AddSubscriber()

	if shouldDelete := s.RemoveSubscriber(); !shouldDelete {
		t.Fatal("RemoveSubscriber should report shouldDelete=true once last subscriber leaves")
	}
}

func TestRemoveSubscriberKeepsPermanentQueue(t *testing.T) {
	s := New("q1", Permanent)
	s.AddSubscriber()

	if shouldDelete := s.RemoveSubscriber(); shouldDelete {
		t.Fatal("Permanent queue should never report shouldDelete")
	}
}

func TestRestoreRanges(t *testing.T) {
	original := New("q2", Permanent)
	original.Enqueue(1, 5)
	original.Dequeue(1)

	restored := New("q3", Permanent)
	restored.RestoreRanges(original.Ranges())

	got, ok := restored.Peek()
	if !ok || got != 2 {
		t.Fatalf("Peek() after restore = %d, %v, want 2, true", got, ok)
	}
}
