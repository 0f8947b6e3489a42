package bus

// bucketEntry is one message within a bucket, resolved from a page.
type bucketEntry struct {
	id        int64
	attemptNo int32
	content   []byte
	headers   map[string]string
}

// bucket is a batch of resolved messages handed to one subscriber in one
// delivery round. It never spans sessions: if the owning session closes
// mid-build, the whole bucket is returned to ready.
type bucket struct {
	subscriberID string
	entries      []bucketEntry
	totalSize    int
}

func (b *bucket) ids() []int64 {
	ids := make([]int64, len(b.entries))
	for i, e := range b.entries {
		ids[i] = e.id
	}
	return ids
}

func (b *bucket) empty() bool {
	return len(b.entries) == 0
}
