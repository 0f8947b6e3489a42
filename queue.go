package bus

import (
	"github.com/pagebus/busd/internal/queuestate"
	"github.com/pagebus/busd/internal/subscriberset"
)

// queue pairs a queue's undelivered-id/in-flight state with its attached
// subscribers. One queue belongs to exactly one topic.
type queue struct {
	id      string
	topicID string

	state       *queuestate.State
	subscribers *subscriberset.Set
}

func newQueue(id, topicID string, kind queuestate.Kind) *queue {
	return &queue{
		id:          id,
		topicID:     topicID,
		state:       queuestate.New(id, kind),
		subscribers: subscriberset.New(),
	}
}

func queueKindFromWire(kind int) queuestate.Kind {
	switch kind {
	case 0:
		return queuestate.PermanentSingleSubscriber
	case 2:
		return queuestate.DeleteOnDisconnect
	default:
		return queuestate.Permanent
	}
}

// QueueKindFromWire converts a Subscribe packet's wire kind byte to the
// internal queue discipline, for use by the packet-handling entrypoint.
func QueueKindFromWire(kind uint8) queuestate.Kind {
	return queueKindFromWire(int(kind))
}
