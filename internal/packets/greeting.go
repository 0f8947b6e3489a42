package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// GreetingPacket is the first packet a client sends on a new connection.
// It carries the client's self-reported name and the protocol version it
// speaks; the session records both and transitions New -> Greeted.
type GreetingPacket struct {
	Name            string
	ProtocolVersion int32
}

func (g *GreetingPacket) Type() uint8    { return TypeGreeting }
func (g *GreetingPacket) Version() int32 { return 0 }

func (g *GreetingPacket) Encode() []byte {
	return encodeFramed(TypeGreeting, g.payload())
}

func (g *GreetingPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypeGreeting, g.payload())
}

func (g *GreetingPacket) payload() []byte {
	buf := appendString(nil, g.Name)
	return binary.BigEndian.AppendUint32(buf, uint32(g.ProtocolVersion))
}

// DecodeGreeting decodes a Greeting packet body.
func DecodeGreeting(payload []byte) (*GreetingPacket, error) {
	name, n, err := decodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode greeting name: %w", err)
	}
	if len(payload) < n+4 {
		return nil, fmt.Errorf("buffer too short for protocol version")
	}
	version := int32(binary.BigEndian.Uint32(payload[n:]))

	return &GreetingPacket{Name: name, ProtocolVersion: version}, nil
}
