package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PublishEntry is one message within a Publish packet's batch.
type PublishEntry struct {
	Content []byte
	Headers map[string]string
}

// PublishPacket carries a batch of messages for a single topic. RequestID
// round-trips in the PublishResponse so the client can correlate acks.
// PersistImmediately asks the server to wake the journal flusher right
// away instead of waiting for its next tick.
type PublishPacket struct {
	RequestID          int64
	TopicID            string
	Entries            []PublishEntry
	PersistImmediately bool
}

func (p *PublishPacket) Type() uint8    { return TypePublish }
func (p *PublishPacket) Version() int32 { return 0 }

func (p *PublishPacket) Encode() []byte {
	return encodeFramed(TypePublish, p.payload())
}

func (p *PublishPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypePublish, p.payload())
}

func (p *PublishPacket) payload() []byte {
	buf := binary.BigEndian.AppendUint64(nil, uint64(p.RequestID))
	buf = appendString(buf, p.TopicID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Entries)))
	for _, e := range p.Entries {
		buf = appendContent(buf, e.Content)
		buf = appendHeaders(buf, e.Headers)
	}
	if p.PersistImmediately {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodePublish decodes a Publish packet body.
func DecodePublish(payload []byte) (*PublishPacket, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("buffer too short for request id")
	}
	requestID := int64(binary.BigEndian.Uint64(payload))
	offset := 8

	topicID, n, err := decodeString(payload[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode publish topic id: %w", err)
	}
	offset += n

	if len(payload) < offset+4 {
		return nil, fmt.Errorf("buffer too short for entry count")
	}
	count := int(binary.BigEndian.Uint32(payload[offset:]))
	offset += 4

	entries := make([]PublishEntry, 0, count)
	for i := 0; i < count; i++ {
		content, n, err := decodeContent(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("decode publish entry %d content: %w", i, err)
		}
		offset += n

		headers, n, err := decodeHeaders(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("decode publish entry %d headers: %w", i, err)
		}
		offset += n

		entries = append(entries, PublishEntry{Content: content, Headers: headers})
	}

	persistImmediately := offset < len(payload) && payload[offset] == 1

	return &PublishPacket{
		RequestID:          requestID,
		TopicID:            topicID,
		Entries:            entries,
		PersistImmediately: persistImmediately,
	}, nil
}

// PublishResponsePacket acknowledges a Publish by echoing its RequestID.
type PublishResponsePacket struct {
	RequestID int64
}

func (p *PublishResponsePacket) Type() uint8    { return TypePublishResponse }
func (p *PublishResponsePacket) Version() int32 { return 0 }

func (p *PublishResponsePacket) Encode() []byte {
	return encodeFramed(TypePublishResponse, p.payload())
}

func (p *PublishResponsePacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypePublishResponse, p.payload())
}

func (p *PublishResponsePacket) payload() []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(p.RequestID))
}

// DecodePublishResponse decodes a PublishResponse packet body.
func DecodePublishResponse(payload []byte) (*PublishResponsePacket, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("buffer too short for request id")
	}
	return &PublishResponsePacket{RequestID: int64(binary.BigEndian.Uint64(payload))}, nil
}
