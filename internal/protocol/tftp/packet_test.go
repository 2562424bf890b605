package tftp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Encoding
// ============================================================================

func TestEncodeWireFormat(t *testing.T) {
	tests := []struct {
		name string
		pkt  Packet
		want []byte
	}{
		{
			name: "RRQ",
			pkt:  ReadRequest{Filename: "boot.img", Mode: "octet"},
			want: []byte("\x00\x01boot.img\x00octet\x00"),
		},
		{
			name: "RRQWithOptions",
			pkt: ReadRequest{
				Filename: "boot.img",
				Mode:     "octet",
				Options: Options{
					{Name: "blksize", Value: "1024"},
					{Name: "tsize", Value: "0"},
				},
			},
			want: []byte("\x00\x01boot.img\x00octet\x00blksize\x001024\x00tsize\x000\x00"),
		},
		{
			name: "WRQ",
			pkt:  WriteRequest{Filename: "out.bin", Mode: "octet"},
			want: []byte("\x00\x02out.bin\x00octet\x00"),
		},
		{
			name: "Data",
			pkt:  Data{Block: 1, Payload: []byte("hello")},
			want: []byte("\x00\x03\x00\x01hello"),
		},
		{
			name: "DataEmptyPayload",
			pkt:  Data{Block: 7},
			want: []byte("\x00\x03\x00\x07"),
		},
		{
			name: "DataHighBlock",
			pkt:  Data{Block: 65535, Payload: []byte{0xAA}},
			want: []byte{0x00, 0x03, 0xFF, 0xFF, 0xAA},
		},
		{
			name: "Ack",
			pkt:  Ack{Block: 258},
			want: []byte{0x00, 0x04, 0x01, 0x02},
		},
		{
			name: "Error",
			pkt:  Error{Code: 1, Message: "File not found"},
			want: []byte("\x00\x05\x00\x01File not found\x00"),
		},
		{
			name: "OACK",
			pkt: OptionAck{Options: Options{
				{Name: "blksize", Value: "1432"},
			}},
			want: []byte("\x00\x06blksize\x001432\x00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.pkt))
		})
	}
}

// ============================================================================
// Round trips
// ============================================================================

func TestRoundTrip(t *testing.T) {
	packets := []Packet{
		ReadRequest{Filename: "dir/file.txt", Mode: "octet"},
		ReadRequest{
			Filename: "fw.bin",
			Mode:     "OCTET",
			Options:  Options{{Name: "BLKSIZE", Value: "8192"}},
		},
		WriteRequest{
			Filename: "upload.dat",
			Mode:     "octet",
			Options:  Options{{Name: "tsize", Value: "1048576"}},
		},
		Data{Block: 42, Payload: bytes.Repeat([]byte{0x5A}, 512)},
		Ack{Block: 0},
		Ack{Block: 65535},
		Error{Code: 8, Message: "Option negotiation error"},
		OptionAck{Options: Options{
			{Name: "blksize", Value: "1024"},
			{Name: "tsize", Value: "2048"},
		}},
	}

	for _, pkt := range packets {
		t.Run(pkt.Opcode().String(), func(t *testing.T) {
			decoded, err := Decode(Encode(pkt))
			require.NoError(t, err)
			assert.Equal(t, pkt, decoded)
		})
	}
}

// ============================================================================
// Decode errors
// ============================================================================

func TestDecodeRejectsMalformed(t *testing.T) {
	oversized := append([]byte{0x00, 0x03, 0x00, 0x01}, make([]byte, MaxBlksize+1)...)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "Empty", data: nil},
		{name: "OneByte", data: []byte{0x00}},
		{name: "UnknownOpcode", data: []byte{0x00, 0x07, 0x00, 0x00}},
		{name: "OpcodeZero", data: []byte{0x00, 0x00}},
		{name: "RRQMissingFilenameNUL", data: []byte("\x00\x01boot.img")},
		{name: "RRQMissingModeNUL", data: []byte("\x00\x01boot.img\x00octet")},
		{name: "RRQDanglingOptionName", data: []byte("\x00\x01f\x00octet\x00blksize\x00")},
		{name: "RRQEmptyOptionName", data: []byte("\x00\x01f\x00octet\x00\x001024\x00")},
		{name: "RRQEmptyOptionValue", data: []byte("\x00\x01f\x00octet\x00blksize\x00\x00")},
		{name: "DataTruncated", data: []byte{0x00, 0x03, 0x00}},
		{name: "DataPayloadTooLarge", data: oversized},
		{name: "AckTruncated", data: []byte{0x00, 0x04, 0x01}},
		{name: "ErrorTruncated", data: []byte{0x00, 0x05, 0x00}},
		{name: "ErrorMissingNUL", data: []byte("\x00\x05\x00\x01oops")},
		{name: "ErrorCodeOutOfRange", data: []byte("\x00\x05\x00\x09oops\x00")},
		{name: "OACKDanglingName", data: []byte("\x00\x06blksize\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := Decode(tt.data)
			require.Error(t, err)
			assert.Nil(t, pkt)

			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeBoundaries(t *testing.T) {
	t.Run("MaxPayloadAccepted", func(t *testing.T) {
		raw := append([]byte{0x00, 0x03, 0x00, 0x01}, make([]byte, MaxBlksize)...)
		pkt, err := Decode(raw)
		require.NoError(t, err)
		data, ok := pkt.(Data)
		require.True(t, ok)
		assert.Len(t, data.Payload, MaxBlksize)
	})

	t.Run("ErrorCode8Accepted", func(t *testing.T) {
		pkt, err := Decode([]byte("\x00\x05\x00\x08bad option\x00"))
		require.NoError(t, err)
		assert.Equal(t, Error{Code: 8, Message: "bad option"}, pkt)
	})

	t.Run("EmptyErrorMessage", func(t *testing.T) {
		pkt, err := Decode([]byte{0x00, 0x05, 0x00, 0x00, 0x00})
		require.NoError(t, err)
		assert.Equal(t, Error{Code: 0, Message: ""}, pkt)
	})

	t.Run("AckTrailingBytesIgnored", func(t *testing.T) {
		pkt, err := Decode([]byte{0x00, 0x04, 0x00, 0x05, 0xDE, 0xAD})
		require.NoError(t, err)
		assert.Equal(t, Ack{Block: 5}, pkt)
	})
}

// ============================================================================
// Option lookup
// ============================================================================

func TestOptionsGet(t *testing.T) {
	opts := Options{
		{Name: "BlkSize", Value: "1024"},
		{Name: "tsize", Value: "100"},
		{Name: "blksize", Value: "2048"},
	}

	t.Run("CaseInsensitive", func(t *testing.T) {
		value, ok := opts.Get("TSIZE")
		require.True(t, ok)
		assert.Equal(t, "100", value)
	})

	t.Run("LastOccurrenceWins", func(t *testing.T) {
		value, ok := opts.Get("blksize")
		require.True(t, ok)
		assert.Equal(t, "2048", value)
	})

	t.Run("Missing", func(t *testing.T) {
		_, ok := opts.Get("windowsize")
		assert.False(t, ok)
		assert.False(t, opts.Has("windowsize"))
	})

	t.Run("Has", func(t *testing.T) {
		assert.True(t, opts.Has("BLKSIZE"))
	})
}
