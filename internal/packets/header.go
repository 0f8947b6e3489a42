package packets

import (
	"fmt"
	"io"
)

// FixedHeader is the fixed header present in every packet on the wire.
// Format: [PacketType (1 byte)][RemainingLength (1-4 byte varint)].
type FixedHeader struct {
	PacketType      uint8
	RemainingLength int
}

// appendBytes appends the encoded fixed header to dst.
func (h *FixedHeader) appendBytes(dst []byte) []byte {
	dst = append(dst, h.PacketType)
	return appendVarInt(dst, h.RemainingLength)
}

// DecodeFixedHeader reads and decodes a fixed header from r.
func DecodeFixedHeader(r io.Reader) (*FixedHeader, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	remainingLength, err := decodeVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode remaining length: %w", err)
	}

	return &FixedHeader{
		PacketType:      buf[0],
		RemainingLength: remainingLength,
	}, nil
}
