// Package protocol defines the wire frame format and the handshake payloads
// shared by both peer roles.
package protocol

// Message type tags carried in the frame header.
const (
	TypeSyn          uint8 = 0x01 // connection request, JSON parameter payload
	TypeAck          uint8 = 0x02 // acknowledgment; carries the SYN-ACK payload during the handshake
	TypeAckFinal     uint8 = 0x03 // final handshake acknowledgment, JSON session payload
	TypeData         uint8 = 0x04 // application data fragment
	TypeDisconnect   uint8 = 0x05 // graceful termination request
	TypeNack         uint8 = 0x06 // negative acknowledgment: corruption or gap
	TypeChannelError uint8 = 0x99 // channel integrity fault marker, fatal on receipt
)

// HeaderSize is the fixed header size:
// PayloadLength(4) + Type(1) + Seq(2) + Checksum(4).
const HeaderSize = 11

// ChecksumSize is the number of digest bytes carried in the header.
const ChecksumSize = 4

// MaxFrameSize bounds the total encoded frame size the codec will accept,
// so a corrupted or hostile payload_length can never drive an allocation.
const MaxFrameSize = 64 * 1024

// Frame is the wire unit exchanged between peers. The checksum is not
// carried in the struct: Encode computes it and Decode validates it.
type Frame struct {
	Type    uint8
	Seq     uint16 // modular sequence number
	Payload []byte
}

// TypeName returns a human-readable name for a message type tag.
func TypeName(t uint8) string {
	switch t {
	case TypeSyn:
		return "SYN"
	case TypeAck:
		return "ACK"
	case TypeAckFinal:
		return "ACK_FINAL"
	case TypeData:
		return "DATA"
	case TypeDisconnect:
		return "DISCONNECT"
	case TypeNack:
		return "NACK"
	case TypeChannelError:
		return "CHANNEL_ERROR"
	default:
		return "UNKNOWN"
	}
}

func validType(t uint8) bool {
	switch t {
	case TypeSyn, TypeAck, TypeAckFinal, TypeData, TypeDisconnect, TypeNack, TypeChannelError:
		return true
	}
	return false
}
