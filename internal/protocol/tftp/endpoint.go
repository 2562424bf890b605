package tftp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/tftpfs/pkg/bufpool"
)

// ErrReceiveTimeout is returned by Endpoint.Receive when no datagram
// arrives within the timeout. The session turns it into a retransmit.
var ErrReceiveTimeout = errors.New("tftp: receive timed out")

// IsTimeout reports whether err is a receive timeout, either the
// package sentinel or a net.Error timeout from the socket layer.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrReceiveTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Endpoint is the datagram transport a session runs on. Receive is the
// only blocking call in a session.
type Endpoint interface {
	// Send transmits one datagram to addr.
	Send(b []byte, addr *net.UDPAddr) error

	// Receive blocks until a datagram arrives or the timeout elapses.
	// On timeout the error satisfies IsTimeout.
	Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error)

	// LocalAddr returns the bound local address (the local TID).
	LocalAddr() *net.UDPAddr

	Close() error
}

// UDPEndpoint implements Endpoint over an unconnected UDP socket.
// Receive buffers come from the shared buffer pool; each datagram is
// copied out before the buffer is returned.
type UDPEndpoint struct {
	conn *net.UDPConn
}

// NewUDPEndpoint wraps an existing UDP socket.
func NewUDPEndpoint(conn *net.UDPConn) *UDPEndpoint {
	return &UDPEndpoint{conn: conn}
}

// ListenEndpoint binds a new UDP socket on an ephemeral local port,
// allocating a fresh local TID for a session.
func ListenEndpoint() (*UDPEndpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to bind session socket: %w", err)
	}
	return &UDPEndpoint{conn: conn}, nil
}

func (e *UDPEndpoint) Send(b []byte, addr *net.UDPAddr) error {
	_, err := e.conn.WriteToUDP(b, addr)
	if err != nil {
		return fmt.Errorf("udp send to %s failed: %w", addr, err)
	}
	return nil
}

func (e *UDPEndpoint) Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, fmt.Errorf("failed to arm read deadline: %w", err)
	}

	buf := bufpool.Get(bufpool.DefaultDatagramSize)
	defer bufpool.Put(buf)

	n, addr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if IsTimeout(err) {
			return nil, nil, ErrReceiveTimeout
		}
		return nil, nil, fmt.Errorf("udp receive failed: %w", err)
	}

	data := make([]byte, n)
	copy(data, buf[:n])
	return data, addr, nil
}

func (e *UDPEndpoint) LocalAddr() *net.UDPAddr {
	addr, _ := e.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

func (e *UDPEndpoint) Close() error {
	return e.conn.Close()
}
