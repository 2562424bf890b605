package tftp

import "encoding/binary"

// Encode serializes a packet to wire format (big-endian). It is total
// over the packet sum: every well-formed packet encodes without error.
func Encode(p Packet) []byte {
	switch pkt := p.(type) {
	case ReadRequest:
		return encodeRequest(OpRRQ, pkt.Filename, pkt.Mode, pkt.Options)
	case WriteRequest:
		return encodeRequest(OpWRQ, pkt.Filename, pkt.Mode, pkt.Options)
	case Data:
		buf := make([]byte, 4+len(pkt.Payload))
		binary.BigEndian.PutUint16(buf[0:2], uint16(OpDATA))
		binary.BigEndian.PutUint16(buf[2:4], pkt.Block)
		copy(buf[4:], pkt.Payload)
		return buf
	case Ack:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf[0:2], uint16(OpACK))
		binary.BigEndian.PutUint16(buf[2:4], pkt.Block)
		return buf
	case Error:
		buf := make([]byte, 0, 5+len(pkt.Message))
		buf = binary.BigEndian.AppendUint16(buf, uint16(OpERROR))
		buf = binary.BigEndian.AppendUint16(buf, pkt.Code)
		buf = append(buf, pkt.Message...)
		buf = append(buf, 0)
		return buf
	case OptionAck:
		buf := binary.BigEndian.AppendUint16(nil, uint16(OpOACK))
		return appendOptions(buf, pkt.Options)
	default:
		// The Packet sum has exactly six arms; anything else is a
		// programming error in the caller.
		panic("tftp: encode of unknown packet type")
	}
}

func encodeRequest(op Opcode, filename, mode string, options Options) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(op))
	buf = append(buf, filename...)
	buf = append(buf, 0)
	buf = append(buf, mode...)
	buf = append(buf, 0)
	return appendOptions(buf, options)
}

func appendOptions(buf []byte, options Options) []byte {
	for _, opt := range options {
		buf = append(buf, opt.Name...)
		buf = append(buf, 0)
		buf = append(buf, opt.Value...)
		buf = append(buf, 0)
	}
	return buf
}
