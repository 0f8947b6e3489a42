package packets

// Packet type codes, bit-exact with the wire protocol.
const (
	TypePing             uint8 = 0
	TypePong             uint8 = 1
	TypeGreeting         uint8 = 2
	TypePublish          uint8 = 3
	TypePublishResponse  uint8 = 4
	TypeSubscribe        uint8 = 5
	TypeNewMessages      uint8 = 6
	TypeConfirmDelivery  uint8 = 7
	TypeReject           uint8 = 8
	TypePacketVersions   uint8 = 9
)

// PacketNames maps a packet type code to its human-readable name, used in
// logging and error messages.
var PacketNames = map[uint8]string{
	TypePing:            "PING",
	TypePong:            "PONG",
	TypeGreeting:        "GREETING",
	TypePublish:         "PUBLISH",
	TypePublishResponse: "PUBLISHRESPONSE",
	TypeSubscribe:       "SUBSCRIBE",
	TypeNewMessages:     "NEWMESSAGES",
	TypeConfirmDelivery: "CONFIRMDELIVERY",
	TypeReject:          "REJECT",
	TypePacketVersions:  "PACKETVERSIONS",
}

// SubscribeKind identifies the queue discipline requested on subscribe.
type SubscribeKind uint8

const (
	SubscribeKindPermanentSingle    SubscribeKind = 0
	SubscribeKindPermanent          SubscribeKind = 1
	SubscribeKindDeleteOnDisconnect SubscribeKind = 2
)

// Packet is implemented by every packet type. Version reports the packet's
// own wire-format version, checked against what the peer negotiated via
// PacketVersionsPacket before the packet is decoded.
type Packet interface {
	Type() uint8
	Version() int32
	Encode() []byte
}
