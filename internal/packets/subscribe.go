package packets

import (
	"fmt"
	"io"
)

// SubscribePacket attaches the session to a queue on a topic, creating the
// queue with the requested discipline if it does not yet exist.
type SubscribePacket struct {
	TopicID string
	QueueID string
	Kind    SubscribeKind
}

func (s *SubscribePacket) Type() uint8    { return TypeSubscribe }
func (s *SubscribePacket) Version() int32 { return 0 }

func (s *SubscribePacket) Encode() []byte {
	return encodeFramed(TypeSubscribe, s.payload())
}

func (s *SubscribePacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypeSubscribe, s.payload())
}

func (s *SubscribePacket) payload() []byte {
	buf := appendString(nil, s.TopicID)
	buf = appendString(buf, s.QueueID)
	return append(buf, byte(s.Kind))
}

// DecodeSubscribe decodes a Subscribe packet body.
func DecodeSubscribe(payload []byte) (*SubscribePacket, error) {
	topicID, n, err := decodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode subscribe topic id: %w", err)
	}
	offset := n

	queueID, n, err := decodeString(payload[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode subscribe queue id: %w", err)
	}
	offset += n

	if len(payload) < offset+1 {
		return nil, fmt.Errorf("buffer too short for subscribe kind")
	}

	return &SubscribePacket{
		TopicID: topicID,
		QueueID: queueID,
		Kind:    SubscribeKind(payload[offset]),
	}, nil
}
