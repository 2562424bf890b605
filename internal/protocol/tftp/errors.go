package tftp

import "fmt"

// Wire error codes from RFC 1350 plus the RFC 2347 option negotiation
// failure code.
const (
	ErrCodeNotDefined        uint16 = 0
	ErrCodeFileNotFound      uint16 = 1
	ErrCodeAccessViolation   uint16 = 2
	ErrCodeDiskFull          uint16 = 3
	ErrCodeIllegalOperation  uint16 = 4
	ErrCodeUnknownTID        uint16 = 5
	ErrCodeFileExists        uint16 = 6
	ErrCodeNoSuchUser        uint16 = 7
	ErrCodeOptionNegotiation uint16 = 8
)

// maxErrCode is the highest error code accepted by the decoder.
const maxErrCode = ErrCodeOptionNegotiation

// ErrorMessage returns the canonical message for a wire error code.
func ErrorMessage(code uint16) string {
	switch code {
	case ErrCodeNotDefined:
		return "Not defined"
	case ErrCodeFileNotFound:
		return "File not found"
	case ErrCodeAccessViolation:
		return "Access violation"
	case ErrCodeDiskFull:
		return "Disk full or allocation exceeded"
	case ErrCodeIllegalOperation:
		return "Illegal TFTP operation"
	case ErrCodeUnknownTID:
		return "Unknown transfer ID"
	case ErrCodeFileExists:
		return "File already exists"
	case ErrCodeNoSuchUser:
		return "No such user"
	case ErrCodeOptionNegotiation:
		return "Option negotiation error"
	default:
		return "Unknown error"
	}
}

// DecodeError reports a malformed datagram. The peer's bytes could not
// be interpreted as any legal packet shape.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "tftp: malformed packet: " + e.Reason
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// ErrorKind classifies a TransferError.
type ErrorKind int

const (
	// KindProtocol covers peer behavior that violates the protocol:
	// illegal operations, unexpected packets, bad mode.
	KindProtocol ErrorKind = iota
	// KindFilesystem covers stream open/read/write failures.
	KindFilesystem
	// KindTransport covers local endpoint failures and exhausted
	// retransmit budgets. No wire error is sent for these.
	KindTransport
	// KindDecode covers malformed packets received from the peer.
	KindDecode
	// KindOption covers OACK validation failures.
	KindOption
	// KindRemote covers ERROR packets received from the peer.
	KindRemote
	// KindCancelled covers caller-initiated cancellation.
	KindCancelled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindFilesystem:
		return "filesystem"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindOption:
		return "option"
	case KindRemote:
		return "remote"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TransferError is the structured error surfaced to the session caller
// when a transfer ends in failure.
type TransferError struct {
	Kind    ErrorKind
	Code    uint16 // wire error code, meaningful only when HasCode
	HasCode bool
	Message string
	Peer    string // remote address, when known
	Err     error  // underlying cause, when any
}

func (e *TransferError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.HasCode {
		if e.Peer != "" {
			return fmt.Sprintf("tftp: %s error from %s (code %d): %s", e.Kind, e.Peer, e.Code, msg)
		}
		return fmt.Sprintf("tftp: %s error (code %d): %s", e.Kind, e.Code, msg)
	}
	if e.Peer != "" {
		return fmt.Sprintf("tftp: %s error from %s: %s", e.Kind, e.Peer, msg)
	}
	return fmt.Sprintf("tftp: %s error: %s", e.Kind, msg)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// wireError builds a TransferError that carries a wire error code.
func wireError(kind ErrorKind, code uint16, message, peer string) *TransferError {
	return &TransferError{
		Kind:    kind,
		Code:    code,
		HasCode: true,
		Message: message,
		Peer:    peer,
	}
}

// localError builds a TransferError with no wire code.
func localError(kind ErrorKind, message, peer string, err error) *TransferError {
	return &TransferError{
		Kind:    kind,
		Message: message,
		Peer:    peer,
		Err:     err,
	}
}
