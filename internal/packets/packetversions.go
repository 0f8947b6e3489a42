package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketVersionsPacket negotiates the per-packet-type wire version. Sending
// it transitions a Greeted session to Ready; packet types absent from the
// map default to version 0.
type PacketVersionsPacket struct {
	Versions map[uint8]int32
}

func (p *PacketVersionsPacket) Type() uint8    { return TypePacketVersions }
func (p *PacketVersionsPacket) Version() int32 { return 0 }

func (p *PacketVersionsPacket) Encode() []byte {
	return encodeFramed(TypePacketVersions, p.payload())
}

func (p *PacketVersionsPacket) WriteTo(w io.Writer) (int64, error) {
	return writePacket(w, TypePacketVersions, p.payload())
}

func (p *PacketVersionsPacket) payload() []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(p.Versions)))
	for packetType, version := range p.Versions {
		buf = append(buf, packetType)
		buf = binary.BigEndian.AppendUint32(buf, uint32(version))
	}
	return buf
}

// DecodePacketVersions decodes a PacketVersions packet body.
func DecodePacketVersions(payload []byte) (*PacketVersionsPacket, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("buffer too short for packet versions count")
	}
	count := int(binary.BigEndian.Uint32(payload))
	offset := 4

	versions := make(map[uint8]int32, count)
	for i := 0; i < count; i++ {
		if len(payload) < offset+5 {
			return nil, fmt.Errorf("buffer too short for packet version entry %d", i)
		}
		packetType := payload[offset]
		version := int32(binary.BigEndian.Uint32(payload[offset+1:]))
		versions[packetType] = version
		offset += 5
	}

	return &PacketVersionsPacket{Versions: versions}, nil
}
