package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageEntry is one delivered message within a NewMessages packet.
type MessageEntry struct {
	ID         int64
	AttemptNo  int32
	Content    []byte
	Headers    map[string]string
	CreatedAt  int64 // unix millis; 0 means absent
	HasHeaders bool
	HasCreated bool
}

// NewMessagesPacket delivers a bucket of messages for one queue to one
// subscriber. It carries the version it was decoded at, but the wire layout
// is the same at every version; ReadPacket refuses any negotiated version
// other than 0.
type NewMessagesPacket struct {
	TopicID      string
	QueueID      string
	SubscriberID string
	Entries      []MessageEntry
	version      int32
}

func (n *NewMessagesPacket) Type() uint8    { return TypeNewMessages }
func (n *NewMessagesPacket) Version() int32 { return n.version }

func (n *NewMessagesPacket) Encode() []byte {
	return encodeFramed(TypeNewMessages, n.payload())
}

func (n *NewMessagesPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypeNewMessages, n.payload())
}

func (n *NewMessagesPacket) payload() []byte {
	buf := appendString(nil, n.TopicID)
	buf = appendString(buf, n.QueueID)
	buf = appendString(buf, n.SubscriberID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(n.Entries)))
	for _, e := range n.Entries {
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.ID))
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.AttemptNo))
		buf = appendContent(buf, e.Content)

		if e.HasHeaders {
			buf = append(buf, 1)
			buf = appendHeaders(buf, e.Headers)
		} else {
			buf = append(buf, 0)
		}

		if e.HasCreated {
			buf = append(buf, 1)
			buf = binary.BigEndian.AppendUint64(buf, uint64(e.CreatedAt))
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// NewNewMessagesPacket constructs a NewMessages packet at the given
// negotiated version.
func NewNewMessagesPacket(topicID, queueID, subscriberID string, entries []MessageEntry, version int32) *NewMessagesPacket {
	return &NewMessagesPacket{
		TopicID:      topicID,
		QueueID:      queueID,
		SubscriberID: subscriberID,
		Entries:      entries,
		version:      version,
	}
}

// DecodeNewMessages decodes a NewMessages packet body. version is the
// negotiated wire version for this packet type; unknown versions are
// rejected by the caller before decoding is attempted.
func DecodeNewMessages(payload []byte, version int32) (*NewMessagesPacket, error) {
	topicID, n, err := decodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode new messages topic id: %w", err)
	}
	offset := n

	queueID, n, err := decodeString(payload[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode new messages queue id: %w", err)
	}
	offset += n

	subscriberID, n, err := decodeString(payload[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode new messages subscriber id: %w", err)
	}
	offset += n

	if len(payload) < offset+4 {
		return nil, fmt.Errorf("buffer too short for entry count")
	}
	count := int(binary.BigEndian.Uint32(payload[offset:]))
	offset += 4

	entries := make([]MessageEntry, 0, count)
	for i := 0; i < count; i++ {
		if len(payload) < offset+12 {
			return nil, fmt.Errorf("buffer too short for entry %d header", i)
		}
		id := int64(binary.BigEndian.Uint64(payload[offset:]))
		offset += 8
		attemptNo := int32(binary.BigEndian.Uint32(payload[offset:]))
		offset += 4

		content, n, err := decodeContent(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("decode entry %d content: %w", i, err)
		}
		offset += n

		entry := MessageEntry{ID: id, AttemptNo: attemptNo, Content: content}

		if len(payload) < offset+1 {
			return nil, fmt.Errorf("buffer too short for entry %d headers flag", i)
		}
		if payload[offset] == 1 {
			offset++
			headers, n, err := decodeHeaders(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("decode entry %d headers: %w", i, err)
			}
			offset += n
			entry.Headers = headers
			entry.HasHeaders = true
		} else {
			offset++
		}

		if len(payload) < offset+1 {
			return nil, fmt.Errorf("buffer too short for entry %d created_at flag", i)
		}
		if payload[offset] == 1 {
			offset++
			if len(payload) < offset+8 {
				return nil, fmt.Errorf("buffer too short for entry %d created_at", i)
			}
			entry.CreatedAt = int64(binary.BigEndian.Uint64(payload[offset:]))
			entry.HasCreated = true
			offset += 8
		} else {
			offset++
		}

		entries = append(entries, entry)
	}

	return &NewMessagesPacket{
		TopicID:      topicID,
		QueueID:      queueID,
		SubscriberID: subscriberID,
		Entries:      entries,
		version:      version,
	}, nil
}
