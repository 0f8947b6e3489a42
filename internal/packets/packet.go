package packets

import "io"

// writePacket writes a framed packet (fixed header + payload) to w using a
// pooled buffer to avoid an allocation per frame on the hot publish path.
func writePacket(w io.Writer, packetType uint8, payload []byte) (int64, error) {
	header := FixedHeader{PacketType: packetType, RemainingLength: len(payload)}

	bufPtr := GetBuffer(len(payload) + 5)
	defer PutBuffer(bufPtr)

	buf := (*bufPtr)[:0]
	buf = header.appendBytes(buf)
	buf = append(buf, payload...)

	n, err := w.Write(buf)
	return int64(n), err
}

// encodeFramed returns the full framed packet (fixed header + payload) as a
// standalone byte slice, for callers that need the bytes rather than a
// direct write (tests, in-memory transports).
func encodeFramed(packetType uint8, payload []byte) []byte {
	header := FixedHeader{PacketType: packetType, RemainingLength: len(payload)}
	dst := header.appendBytes(make([]byte, 0, len(payload)+5))
	return append(dst, payload...)
}
