// Package client provides the TFTP client API: lock-step downloads and
// uploads against a remote server, with blksize/tsize negotiation,
// per-request tuning and transfer metrics.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/tftpfs/internal/protocol/tftp"
)

// Config holds the client defaults applied to every transfer unless
// overridden per request.
type Config struct {
	// Blksize requested from the server. The default 512 sends no
	// blksize option at all.
	Blksize int

	// Timeout between retransmissions.
	Timeout time.Duration

	// Retries is the retransmit budget, replenished on forward
	// progress.
	Retries int
}

// Client performs TFTP transfers against one server address. A Client
// is cheap; each transfer runs on its own ephemeral UDP socket.
type Client struct {
	server string
	cfg    Config
}

// New creates a client for the given server address (host:port; port
// 69 is the conventional default).
func New(server string, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = tftp.DefaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = tftp.DefaultRetries
	}
	return &Client{server: server, cfg: cfg}
}

// TransferOptions tune a single transfer. The zero value inherits the
// client configuration.
type TransferOptions struct {
	// Blksize overrides the client default block size.
	Blksize int

	// Tsize declares the upload size for a write request. Negative
	// means unknown and omits the option.
	Tsize int64

	// RequestTsize asks the server for the file size on a download.
	RequestTsize bool

	Timeout time.Duration
	Retries int

	// Hook observes the transfer's packets, as described on
	// tftp.PacketHook.
	Hook tftp.PacketHook
}

// Download fetches filename from the server into sink. When sink
// implements io.Closer it is closed when the transfer ends.
func (c *Client) Download(ctx context.Context, filename string, sink io.Writer, opts *TransferOptions) (tftp.Metrics, error) {
	params, endpoint, err := c.sessionParams(tftp.RoleClientDownload, filename, opts)
	if err != nil {
		return tftp.Metrics{}, err
	}
	defer endpoint.Close()

	params.Sink = sink
	return tftp.NewSession(params).Run(ctx)
}

// Upload sends source to the server as filename. When source
// implements io.Closer it is closed when the transfer ends. Declare
// the size via TransferOptions.Tsize to offer the tsize option.
func (c *Client) Upload(ctx context.Context, filename string, source io.Reader, opts *TransferOptions) (tftp.Metrics, error) {
	params, endpoint, err := c.sessionParams(tftp.RoleClientUpload, filename, opts)
	if err != nil {
		return tftp.Metrics{}, err
	}
	defer endpoint.Close()

	params.Source = source
	return tftp.NewSession(params).Run(ctx)
}

// sessionParams resolves the server address, binds a fresh session
// socket and assembles the session parameters.
func (c *Client) sessionParams(role tftp.Role, filename string, opts *TransferOptions) (tftp.SessionParams, tftp.Endpoint, error) {
	if opts == nil {
		opts = &TransferOptions{Tsize: -1}
	}

	addr, err := net.ResolveUDPAddr("udp", c.server)
	if err != nil {
		return tftp.SessionParams{}, nil, fmt.Errorf("failed to resolve server address %q: %w", c.server, err)
	}

	endpoint, err := tftp.ListenEndpoint()
	if err != nil {
		return tftp.SessionParams{}, nil, err
	}

	blksize := opts.Blksize
	if blksize <= 0 {
		blksize = c.cfg.Blksize
	}

	tsize := int64(-1)
	if role == tftp.RoleClientDownload {
		if opts.RequestTsize {
			tsize = 0
		}
	} else if opts.Tsize >= 0 {
		tsize = opts.Tsize
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = c.cfg.Retries
	}

	params := tftp.SessionParams{
		Role:       role,
		Endpoint:   endpoint,
		Peer:       addr,
		Filename:   filename,
		SourceSize: opts.Tsize,
		Requested:  tftp.RequestOptions(blksize, tsize),
		Timeout:    timeout,
		Retries:    retries,
		Hook:       opts.Hook,
	}
	return params, endpoint, nil
}
