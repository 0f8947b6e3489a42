package packets

import (
	"fmt"
	"io"
)

// ReadPacket reads one framed packet from r and decodes it according to the
// versions map negotiated for this session (nil or missing entries default
// to version 0). An unknown packet type, or a version the decoder does not
// support, is a protocol error.
func ReadPacket(r io.Reader, versions map[uint8]int32) (Packet, error) {
	header, err := DecodeFixedHeader(r)
	if err != nil {
		return nil, err
	}

	bufPtr := GetBuffer(header.RemainingLength)
	defer PutBuffer(bufPtr)
	payload := (*bufPtr)[:header.RemainingLength]

	if header.RemainingLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read packet payload: %w", err)
		}
	}

	version := versions[header.PacketType]
	if version != 0 {
		return nil, fmt.Errorf("unsupported %s version %d", PacketNames[header.PacketType], version)
	}

	switch header.PacketType {
	case TypePing:
		return DecodePing(payload)
	case TypePong:
		return DecodePong(payload)
	case TypeGreeting:
		return DecodeGreeting(payload)
	case TypePublish:
		return DecodePublish(payload)
	case TypePublishResponse:
		return DecodePublishResponse(payload)
	case TypeSubscribe:
		return DecodeSubscribe(payload)
	case TypeNewMessages:
		return DecodeNewMessages(payload, version)
	case TypeConfirmDelivery:
		return DecodeConfirmDelivery(payload)
	case TypeReject:
		return DecodeReject(payload)
	case TypePacketVersions:
		return DecodePacketVersions(payload)
	default:
		return nil, fmt.Errorf("unknown packet type %d", header.PacketType)
	}
}
