package tftp

import (
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// Defaults for per-session tuning, overridable via SessionParams.
const (
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

// Role identifies which side of which transfer direction a session
// plays. It decides option semantics and the initial state.
type Role int

const (
	// RoleClientDownload fetches a file from a server (sends RRQ).
	RoleClientDownload Role = iota
	// RoleClientUpload pushes a file to a server (sends WRQ).
	RoleClientUpload
	// RoleServerDownload serves a file to a client (answers RRQ).
	RoleServerDownload
	// RoleServerUpload receives a file from a client (answers WRQ).
	RoleServerUpload
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClientDownload:
		return "client-download"
	case RoleClientUpload:
		return "client-upload"
	case RoleServerDownload:
		return "server-download"
	case RoleServerUpload:
		return "server-upload"
	default:
		return "unknown"
	}
}

// isClient reports whether the session initiates the transfer.
func (r Role) isClient() bool {
	return r == RoleClientDownload || r == RoleClientUpload
}

// sendsData reports whether the session is the side that transmits
// DATA packets.
func (r Role) sendsData() bool {
	return r == RoleClientUpload || r == RoleServerDownload
}

// State is the session state, a tagged kind driven by the dispatcher.
type State int

const (
	// StateStart is the initial state; nothing sent or received yet.
	StateStart State = iota
	// StateSentRRQ awaits DATA, OACK or ERROR after a read request.
	StateSentRRQ
	// StateSentWRQ awaits ACK(0), OACK or ERROR after a write request.
	StateSentWRQ
	// StateReceivedRRQ holds a decoded read request to answer.
	StateReceivedRRQ
	// StateReceivedWRQ holds a decoded write request to answer.
	StateReceivedWRQ
	// StateExpectData awaits the next DATA block.
	StateExpectData
	// StateExpectAck awaits the ACK for the last DATA sent.
	StateExpectAck
	// StateFinished is the terminal success state.
	StateFinished
	// StateErrored is the terminal failure state.
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSentRRQ:
		return "sent-rrq"
	case StateSentWRQ:
		return "sent-wrq"
	case StateReceivedRRQ:
		return "received-rrq"
	case StateReceivedWRQ:
		return "received-wrq"
	case StateExpectData:
		return "expect-data"
	case StateExpectAck:
		return "expect-ack"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateErrored
}

// PacketHook receives every valid decoded inbound packet and every
// request, OACK, DATA and ACK the session sends. ERROR packets the
// session sends and retransmissions of the last packet are not passed
// to it. Panics in the hook are recovered and do not disturb the
// session.
type PacketHook func(Packet)

// ServerStreams supplies the file streams for a server session. The
// dispatcher binds these to its sandboxed filesystem before the session
// runs. Open errors that carry a *TransferError with a wire code are
// reported to the peer with that code.
type ServerStreams struct {
	// OpenRead opens the file named in an RRQ and reports its size
	// (-1 when unknown, disabling tsize).
	OpenRead func(filename string) (io.ReadCloser, int64, error)

	// OpenWrite opens the file named in a WRQ for writing.
	OpenWrite func(filename string) (io.WriteCloser, error)
}

// SessionParams configures a Session. Zero values take the package
// defaults.
type SessionParams struct {
	// ID tags the session in logs. Generated when empty.
	ID string

	Role     Role
	Endpoint Endpoint

	// Peer is the initial remote address: the server's well-known port
	// for a client, the client's ephemeral source address for a server.
	Peer *net.UDPAddr

	// Filename names the remote file (client roles only).
	Filename string

	// Source supplies upload payload; Sink receives download payload.
	Source io.Reader
	Sink   io.Writer

	// SourceSize is the upload size declared via tsize; -1 unknown.
	SourceSize int64

	// Requested lists the options to send with the request (client
	// roles only). Build with RequestOptions.
	Requested Options

	// FirstPacket is the raw first datagram handed over by the server
	// dispatcher (server roles only).
	FirstPacket []byte

	// Streams opens server-side files (server roles only).
	Streams ServerStreams

	// MaxBlksize caps the block size a server accepts; 0 means the
	// full RFC 2348 range.
	MaxBlksize int

	Timeout time.Duration
	Retries int
	Hook    PacketHook
}

// Session holds the mutable per-transfer data the state machine reads
// and updates. It is owned by exactly one goroutine and never shared.
type Session struct {
	id   string
	role Role

	endpoint Endpoint
	peer     *net.UDPAddr
	// tidFrozen is set once the peer's ephemeral port is known. After
	// that, packets from other ports are answered with ERROR 5 and the
	// session is untouched.
	tidFrozen bool

	filename string
	source   io.Reader
	sink     io.Writer
	srcSize  int64
	streams  ServerStreams

	requested  Options
	negotiated Negotiated
	blksize    int
	maxBlksize int

	lastBlockSent  uint16
	lastBlockAcked uint16
	// lastPayloadLen is the payload length of the most recent DATA
	// sent or received, used for end-of-transfer detection. sentData
	// distinguishes a wrapped block counter from the pre-DATA OACK
	// exchange.
	lastPayloadLen int
	sentData       bool

	// lastSent is the encoded last outbound packet, retained verbatim
	// for retransmission.
	lastSent []byte

	firstPacket []byte

	timeout     time.Duration
	retries     int
	retriesLeft int

	state   State
	termErr *TransferError

	metrics Metrics
	hook    PacketHook
}

// NewSession builds a session from params. The session does not touch
// the endpoint until Run is called.
func NewSession(params SessionParams) *Session {
	if params.ID == "" {
		params.ID = uuid.NewString()
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	if params.Retries <= 0 {
		params.Retries = DefaultRetries
	}

	return &Session{
		id:          params.ID,
		role:        params.Role,
		endpoint:    params.Endpoint,
		peer:        params.Peer,
		tidFrozen:   !params.Role.isClient(),
		filename:    params.Filename,
		source:      params.Source,
		sink:        params.Sink,
		srcSize:     params.SourceSize,
		streams:     params.Streams,
		requested:   params.Requested,
		blksize:     DefaultBlksize,
		maxBlksize:  params.MaxBlksize,
		firstPacket: params.FirstPacket,
		timeout:     params.Timeout,
		retries:     params.Retries,
		retriesLeft: params.Retries,
		state:       StateStart,
		hook:        params.Hook,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Metrics returns the transfer statistics accumulated so far. Final
// throughput figures are present once the session has terminated.
func (s *Session) Metrics() Metrics {
	return s.metrics
}

// Peer returns the current remote address.
func (s *Session) Peer() *net.UDPAddr {
	return s.peer
}
