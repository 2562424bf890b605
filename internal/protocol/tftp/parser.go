package tftp

import (
	"bytes"
	"encoding/binary"
)

// Decode parses a datagram into a packet. It fails with *DecodeError
// for: fewer than 2 bytes, an unknown opcode, a string or option list
// missing its NUL terminator, a DATA payload longer than MaxBlksize, an
// ERROR code above the defined range, or an empty option value.
func Decode(data []byte) (Packet, error) {
	if len(data) < 2 {
		return nil, decodeErrorf("datagram too short (%d bytes)", len(data))
	}

	op := Opcode(binary.BigEndian.Uint16(data[0:2]))
	body := data[2:]

	switch op {
	case OpRRQ, OpWRQ:
		return decodeRequest(op, body)
	case OpDATA:
		if len(body) < 2 {
			return nil, decodeErrorf("DATA truncated before block number")
		}
		payload := body[2:]
		if len(payload) > MaxBlksize {
			return nil, decodeErrorf("DATA payload of %d bytes exceeds maximum %d", len(payload), MaxBlksize)
		}
		return Data{
			Block:   binary.BigEndian.Uint16(body[0:2]),
			Payload: payload,
		}, nil
	case OpACK:
		if len(body) < 2 {
			return nil, decodeErrorf("ACK truncated before block number")
		}
		return Ack{Block: binary.BigEndian.Uint16(body[0:2])}, nil
	case OpERROR:
		return decodeError(body)
	case OpOACK:
		options, err := decodeOptions(body)
		if err != nil {
			return nil, err
		}
		return OptionAck{Options: options}, nil
	default:
		return nil, decodeErrorf("unknown opcode %d", uint16(op))
	}
}

func decodeRequest(op Opcode, body []byte) (Packet, error) {
	filename, rest, err := takeString(body, "filename")
	if err != nil {
		return nil, err
	}
	mode, rest, err := takeString(rest, "mode")
	if err != nil {
		return nil, err
	}
	options, err := decodeOptions(rest)
	if err != nil {
		return nil, err
	}

	if op == OpRRQ {
		return ReadRequest{Filename: filename, Mode: mode, Options: options}, nil
	}
	return WriteRequest{Filename: filename, Mode: mode, Options: options}, nil
}

func decodeError(body []byte) (Packet, error) {
	if len(body) < 2 {
		return nil, decodeErrorf("ERROR truncated before code")
	}
	code := binary.BigEndian.Uint16(body[0:2])
	if code > maxErrCode {
		return nil, decodeErrorf("ERROR code %d out of range", code)
	}
	message, _, err := takeString(body[2:], "error message")
	if err != nil {
		return nil, err
	}
	return Error{Code: code, Message: message}, nil
}

// decodeOptions parses alternating NUL-terminated name/value pairs
// until the buffer is exhausted. Case is preserved for OACK echoing.
func decodeOptions(body []byte) (Options, error) {
	var options Options
	rest := body
	for len(rest) > 0 {
		name, after, err := takeString(rest, "option name")
		if err != nil {
			return nil, err
		}
		value, after, err := takeString(after, "option value")
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, decodeErrorf("empty option name")
		}
		if value == "" {
			return nil, decodeErrorf("empty value for option %q", name)
		}
		options = append(options, Option{Name: name, Value: value})
		rest = after
	}
	return options, nil
}

// takeString consumes one NUL-terminated string and returns it with the
// remaining bytes.
func takeString(data []byte, what string) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, decodeErrorf("%s missing NUL terminator", what)
	}
	return string(data[:idx]), data[idx+1:], nil
}
