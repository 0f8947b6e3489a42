package bus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pagebus/busd/internal/page"
	"github.com/pagebus/busd/internal/packets"
	"github.com/pagebus/busd/internal/queuestate"
)

// deliver runs the bucket-building algorithm for one queue: while an idle
// subscriber exists, build a bucket up to maxDeliverySize bytes and hand
// it off. Ready ids resolved from a page add to the bucket; NotLoaded
// pages suspend this attempt and schedule a load that re-enters delivery
// on completion; Missing ids are dropped. The subscriber's session is
// looked up through sessions; if it is gone the bucket returns to ready
// and the next idle subscriber is tried.
func (t *Topic) deliver(ctx context.Context, q *queue, sessions *Registry) {
	for {
		now := time.Now()
		sub, ok := q.subscribers.NextIdle(now)
		if !ok {
			return
		}

		b, suspended := t.buildBucket(ctx, q, sessions)
		if suspended {
			// the page loader will call deliver again on completion;
			// return this subscriber to idle so it can be picked up then
			// or by another queue's delivery pass in the meantime.
			q.subscribers.MarkIdle(sub.ID)
			return
		}

		if b == nil || b.empty() {
			q.subscribers.MarkIdle(sub.ID)
			return
		}
		b.subscriberID = sub.ID

		session, ok := sessions.Get(sub.SessionID)
		if !ok {
			q.state.Requeue(b.ids())
			q.subscribers.Detach(sub.ID)
			continue
		}

		q.state.AttachBucket(&queuestate.Bucket{SubscriberID: sub.ID, IDs: b.ids()})

		entries := make([]packets.MessageEntry, len(b.entries))
		for i, e := range b.entries {
			entries[i] = packets.MessageEntry{
				ID: e.id, AttemptNo: e.attemptNo, Content: e.content,
				Headers: e.headers, HasHeaders: len(e.headers) > 0,
			}
		}
		pkt := packets.NewNewMessagesPacket(t.id, q.id, sub.ID, entries, 0)

		if err := session.Send(pkt); err != nil {
			// write failed: treat like a closed session, requeue and move on.
			q.state.MarkNotDelivered(sub.ID)
			continue
		}
		t.metrics.onPacketSent()
	}
}

// buildBucket assembles one delivery bucket for q. suspended=true means a
// page load was scheduled and the caller should stop this delivery pass;
// deliver will be re-entered once the load completes.
func (t *Topic) buildBucket(ctx context.Context, q *queue, sessions *Registry) (b *bucket, suspended bool) {
	b = &bucket{}

	for {
		id, ok := q.state.Peek()
		if !ok {
			return b, false
		}

		probe, size := t.pages.GetMessageSize(id)
		switch probe {
		case page.SizeReady:
			if b.totalSize+size > t.maxDeliverySize && len(b.entries) > 0 {
				return b, false
			}
			q.state.Dequeue(id)

			pid := page.PageID(id)
			p, ok := t.pages.Get(pid)
			if !ok {
				// page got evicted between the size probe and here; put
				// the id back and let the next delivery pass reload it.
				q.state.Enqueue(id, id)
				return b, false
			}
			entry := p.EntryAt(id)

			b.entries = append(b.entries, bucketEntry{
				id:        id,
				attemptNo: q.state.NextAttempt(id),
				content:   entry.Message.Content,
				headers:   entry.Message.Headers,
			})
			b.totalSize += size

		case page.SizeMissing:
			q.state.Dequeue(id)
			t.log.Debug("dropping missing message id", zap.Int64("message_id", id))

		default: // SizeNotLoaded
			pid := page.PageID(id)
			p, wasNew := t.pages.GetOrReserve(pid)
			if wasNew {
				t.scheduleLoad(ctx, pid, func() {
					t.deliver(ctx, q, sessions)
				})
			} else {
				// another queue's delivery pass already triggered this
				// page's load; wait for it to finish rather than issuing a
				// second fetch, then re-enter delivery for this queue too.
				go func() {
					p.WaitReady()
					t.deliver(ctx, q, sessions)
				}()
			}
			return b, true
		}
	}
}
