package packets

import "io"

// PingPacket carries no payload. Sessions send it to keep the connection
// alive between publish/delivery traffic.
type PingPacket struct{}

func (p *PingPacket) Type() uint8     { return TypePing }
func (p *PingPacket) Version() int32  { return 0 }
func (p *PingPacket) Encode() []byte  { return encodeFramed(TypePing, nil) }
func (p *PingPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypePing, nil)
}

// DecodePing decodes a Ping packet body, which is always empty.
func DecodePing(payload []byte) (*PingPacket, error) {
	return &PingPacket{}, nil
}

// PongPacket is the server's reply to Ping.
type PongPacket struct{}

func (p *PongPacket) Type() uint8    { return TypePong }
func (p *PongPacket) Version() int32 { return 0 }
func (p *PongPacket) Encode() []byte { return encodeFramed(TypePong, nil) }
func (p *PongPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypePong, nil)
}

// DecodePong decodes a Pong packet body, which is always empty.
func DecodePong(payload []byte) (*PongPacket, error) {
	return &PongPacket{}, nil
}
