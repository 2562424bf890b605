package logger

import (
	"log/slog"
	"time"
)

// Standard field names used across the codebase. Using constants keeps
// log output consistent and greppable.
const (
	// Session fields
	KeySessionID = "session_id"
	KeyPeer      = "peer"
	KeyRole      = "role"
	KeyState     = "state"

	// Transfer fields
	KeyFilename = "filename"
	KeyMode     = "mode"
	KeyBlock    = "block"
	KeyBlksize  = "blksize"
	KeyTsize    = "tsize"
	KeyBytes    = "bytes"
	KeyOpcode   = "opcode"

	// Error fields
	KeyError     = "error"
	KeyErrorCode = "error_code"

	// Performance fields
	KeyDurationMs = "duration_ms"
	KeyKbps       = "kbps"
	KeyRetries    = "retries"
	KeyDups       = "dups"

	// Server fields
	KeyListenAddr = "listen_addr"
	KeyRoot       = "root"
	KeyPort       = "port"
	KeySessions   = "sessions"
)

// ============================================================================
// Typed field constructors
// ============================================================================

// SessionID creates a session_id field
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Peer creates a peer field from a remote address
func Peer(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// Filename creates a filename field
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Block creates a block number field
func Block(n uint16) slog.Attr {
	return slog.Int(KeyBlock, int(n))
}

// Blksize creates a blksize field
func Blksize(n int) slog.Attr {
	return slog.Int(KeyBlksize, n)
}

// Bytes creates a byte count field
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// Err creates an error field
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode creates a wire error code field
func ErrorCode(code uint16) slog.Attr {
	return slog.Int(KeyErrorCode, int(code))
}

// DurationMs creates a duration field in milliseconds
func DurationMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(d.Microseconds())/1000.0)
}

// Retries creates a retries field
func Retries(n int) slog.Attr {
	return slog.Int(KeyRetries, n)
}
