// Package tftp implements the TFTP server adapter: the accept loop on
// the well-known port that multiplexes incoming requests onto
// per-session protocol engines, each on its own ephemeral UDP socket.
package tftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/marmos91/tftpfs/internal/logger"
	tftpproto "github.com/marmos91/tftpfs/internal/protocol/tftp"
	"github.com/marmos91/tftpfs/pkg/metrics"
)

// DynFileFunc serves generated content for a read request whose file
// does not exist under the root. Returning a nil reader declines, and
// the client gets the usual "File not found".
type DynFileFunc func(filename string) (io.ReadCloser, int64)

// UploadOpenFunc vetoes or redirects an incoming write request.
// Returning a nil writer with a nil error falls back to the default
// sandboxed open; returning an error refuses the upload.
type UploadOpenFunc func(filename string, fs afero.Fs) (io.WriteCloser, error)

// ServerConfig holds configuration for the TFTP server adapter.
type ServerConfig struct {
	// ListenAddr is the bind address for the request socket
	// (default "0.0.0.0").
	ListenAddr string

	// Port is the well-known request port (default 69 per RFC 1350).
	Port int

	// Root is the served directory. Requests resolving outside it are
	// rejected with an access violation.
	Root string

	// Fs overrides the filesystem the root lives on. Defaults to the
	// OS filesystem; tests use an in-memory one.
	Fs afero.Fs

	// Timeout and Retries tune each session's retransmit behavior.
	Timeout time.Duration
	Retries int

	// MaxBlksize caps what a client may negotiate; 0 allows the full
	// RFC 2348 range.
	MaxBlksize int

	// ShutdownTimeout bounds the graceful drain of active sessions.
	ShutdownTimeout time.Duration

	// DynFile and UploadOpen are optional content hooks.
	DynFile    DynFileFunc
	UploadOpen UploadOpenFunc

	// Hook observes the packets of every session, as described on
	// tftpproto.PacketHook.
	Hook tftpproto.PacketHook
}

// Server is the TFTP server adapter. It owns the request socket and
// spawns one goroutine per transfer session.
type Server struct {
	config  ServerConfig
	root    afero.Fs
	metrics metrics.TransferMetrics

	conn         atomic.Pointer[net.UDPConn]
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// sessionCancel aborts in-flight sessions on immediate shutdown.
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	wg sync.WaitGroup

	activeSessions atomic.Int32

	// peers tracks addresses with a session in flight, so that a
	// retransmitted request does not spawn a second engine.
	peersMu sync.Mutex
	peers   map[string]struct{}
}

// NewServer creates a TFTP server adapter. Pass nil transferMetrics to
// disable metrics collection.
func NewServer(cfg ServerConfig, transferMetrics metrics.TransferMetrics) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 69
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = tftpproto.DefaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = tftpproto.DefaultRetries
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	baseFs := cfg.Fs
	if baseFs == nil {
		baseFs = afero.NewOsFs()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:        cfg,
		root:          afero.NewBasePathFs(baseFs, cfg.Root),
		metrics:       transferMetrics,
		shutdown:      make(chan struct{}),
		sessionCtx:    ctx,
		sessionCancel: cancel,
		peers:         make(map[string]struct{}),
	}
}

// Serve binds the request socket and blocks accepting requests until
// the context is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.ListenAddr, s.config.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen UDP %s: %w", addr, err)
	}
	s.conn.Store(conn)

	logger.Info("TFTP server started",
		logger.KeyListenAddr, conn.LocalAddr().String(),
		logger.KeyRoot, s.config.Root)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.acceptLoop(conn)

	// Stop accepting, then drain sessions within the shutdown budget.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.ShutdownTimeout):
		logger.Warn("shutdown timeout reached, aborting active sessions",
			logger.KeySessions, s.activeSessions.Load())
		s.sessionCancel()
		<-done
	}

	logger.Info("TFTP server stopped")
	return nil
}

// acceptLoop reads first packets off the request socket and hands each
// to a fresh session goroutine.
func (s *Server) acceptLoop(conn *net.UDPConn) {
	buf := make([]byte, 65535)

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		// Short deadline so shutdown is noticed promptly.
		if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			logger.Debug("failed to set read deadline", logger.KeyError, err.Error())
			continue
		}

		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("request socket read error", logger.KeyError, err.Error())
				continue
			}
		}

		// Copy the datagram since buf is reused.
		first := make([]byte, n)
		copy(first, buf[:n])

		if !s.claimPeer(clientAddr) {
			logger.Debug("request from peer with session in flight",
				logger.KeyPeer, clientAddr.String())
			continue
		}

		s.wg.Add(1)
		go s.runSession(first, clientAddr)
	}
}

// runSession drives one transfer on its own ephemeral socket.
func (s *Server) runSession(first []byte, peer *net.UDPAddr) {
	defer s.wg.Done()
	defer s.releasePeer(peer)

	sessionID := uuid.NewString()
	ctx := logger.ContextWithAttrs(s.sessionCtx,
		logger.SessionID(sessionID),
		logger.Peer(peer.String()))

	endpoint, err := tftpproto.ListenEndpoint()
	if err != nil {
		logger.ErrorCtx(ctx, "failed to open session socket",
			logger.KeyError, err.Error())
		return
	}
	defer endpoint.Close()

	role, direction := requestRole(first)

	session := tftpproto.NewSession(tftpproto.SessionParams{
		ID:          sessionID,
		Role:        role,
		Endpoint:    endpoint,
		Peer:        peer,
		FirstPacket: first,
		Streams: tftpproto.ServerStreams{
			OpenRead:  s.openRead,
			OpenWrite: s.openWrite,
		},
		MaxBlksize: s.config.MaxBlksize,
		Timeout:    s.config.Timeout,
		Retries:    s.config.Retries,
		Hook:       s.config.Hook,
	})

	logger.DebugCtx(ctx, "session started",
		logger.KeyRole, role.String())

	active := s.activeSessions.Add(1)
	if s.metrics != nil {
		s.metrics.RecordTransferStart(direction)
		s.metrics.SetActiveSessions(active)
	}

	result, runErr := session.Run(ctx)

	active = s.activeSessions.Add(-1)
	if s.metrics != nil {
		s.metrics.SetActiveSessions(active)
		s.metrics.RecordBytesTransferred(direction, uint64(result.Bytes))
		s.metrics.RecordRetransmits(result.Retransmits)
		s.metrics.RecordDuplicates(result.Duplicates)
		if runErr != nil {
			s.metrics.RecordTransferFailed(direction)
		} else {
			s.metrics.RecordTransferComplete(direction, result.Duration)
		}
	}
}

// Stop initiates a graceful shutdown: the request socket closes and
// active sessions drain within the configured timeout.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if conn := s.conn.Load(); conn != nil {
			_ = conn.Close()
		}
	})
}

// StopNow shuts down immediately, cancelling active sessions. Each
// peer is told with ERROR 0 "Cancelled".
func (s *Server) StopNow() {
	s.Stop()
	s.sessionCancel()
}

// Addr returns the request socket address (for tests). Empty when the
// server is not listening.
func (s *Server) Addr() string {
	if conn := s.conn.Load(); conn != nil {
		return conn.LocalAddr().String()
	}
	return ""
}

// ActiveSessions returns the number of in-flight transfers.
func (s *Server) ActiveSessions() int {
	return int(s.activeSessions.Load())
}

func (s *Server) claimPeer(addr *net.UDPAddr) bool {
	key := addr.String()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if _, busy := s.peers[key]; busy {
		return false
	}
	s.peers[key] = struct{}{}
	return true
}

func (s *Server) releasePeer(addr *net.UDPAddr) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	delete(s.peers, addr.String())
}

// requestRole inspects the raw first packet to pick the session role
// and metric direction. Anything unrecognized defaults to the download
// role; the session rejects it properly with a wire error.
func requestRole(first []byte) (tftpproto.Role, string) {
	if pkt, err := tftpproto.Decode(first); err == nil {
		if _, ok := pkt.(tftpproto.WriteRequest); ok {
			return tftpproto.RoleServerUpload, metrics.DirectionUpload
		}
	}
	return tftpproto.RoleServerDownload, metrics.DirectionDownload
}
