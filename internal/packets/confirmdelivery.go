package packets

import (
	"fmt"
	"io"
)

// ConfirmDeliveryPacket acknowledges a prior NewMessages bucket. Positive
// ranges confirm delivery; negative ranges report ids the client could not
// process, which the queue marks not-delivered for redelivery.
type ConfirmDeliveryPacket struct {
	SubscriberID string
	Positive     []Interval
	Negative     []Interval
}

func (c *ConfirmDeliveryPacket) Type() uint8    { return TypeConfirmDelivery }
func (c *ConfirmDeliveryPacket) Version() int32 { return 0 }

func (c *ConfirmDeliveryPacket) Encode() []byte {
	return encodeFramed(TypeConfirmDelivery, c.payload())
}

func (c *ConfirmDeliveryPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypeConfirmDelivery, c.payload())
}

func (c *ConfirmDeliveryPacket) payload() []byte {
	buf := appendString(nil, c.SubscriberID)
	buf = appendIntervals(buf, c.Positive)
	buf = appendIntervals(buf, c.Negative)
	return buf
}

// DecodeConfirmDelivery decodes a ConfirmDelivery packet body.
func DecodeConfirmDelivery(payload []byte) (*ConfirmDeliveryPacket, error) {
	subscriberID, n, err := decodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode confirm delivery subscriber id: %w", err)
	}
	offset := n

	positive, n, err := decodeIntervals(payload[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode confirm delivery positive ranges: %w", err)
	}
	offset += n

	negative, n, err := decodeIntervals(payload[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode confirm delivery negative ranges: %w", err)
	}
	offset += n

	return &ConfirmDeliveryPacket{SubscriberID: subscriberID, Positive: positive, Negative: negative}, nil
}
