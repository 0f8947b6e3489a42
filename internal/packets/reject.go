package packets

import (
	"fmt"
	"io"
)

// RejectPacket reports a fatal protocol or application error to the client.
// The session does not advance any subscriber or queue state alongside it.
type RejectPacket struct {
	Message string
}

func (r *RejectPacket) Type() uint8    { return TypeReject }
func (r *RejectPacket) Version() int32 { return 0 }

func (r *RejectPacket) Encode() []byte {
	return encodeFramed(TypeReject, r.payload())
}

func (r *RejectPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypeReject, r.payload())
}

func (r *RejectPacket) payload() []byte {
	return appendString(nil, r.Message)
}

// DecodeReject decodes a Reject packet body.
func DecodeReject(payload []byte) (*RejectPacket, error) {
	message, _, err := decodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode reject message: %w", err)
	}
	return &RejectPacket{Message: message}, nil
}
