package tftp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tftpproto "github.com/marmos91/tftpfs/internal/protocol/tftp"
	"github.com/marmos91/tftpfs/pkg/client"
)

// ============================================================================
// Test harness
// ============================================================================

// freeUDPPort grabs an ephemeral port and releases it for the server to
// bind.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

// startServer boots a server on a loopback port and returns it together
// with its filesystem and a client pointed at it. The server is stopped
// when the test ends.
func startServer(t *testing.T, cfg ServerConfig) (*Server, afero.Fs, *client.Client) {
	t.Helper()

	fs := afero.NewMemMapFs()
	cfg.Fs = fs
	if cfg.Root == "" {
		cfg.Root = "/srv/tftp"
	}
	require.NoError(t, fs.MkdirAll(cfg.Root, 0755))

	cfg.ListenAddr = "127.0.0.1"
	cfg.Port = freeUDPPort(t)
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	srv := NewServer(cfg, nil)

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(context.Background())
	}()

	require.Eventually(t, func() bool {
		return srv.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "server did not bind")

	t.Cleanup(func() {
		srv.StopNow()
		select {
		case <-serveDone:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	c := client.New(fmt.Sprintf("127.0.0.1:%d", cfg.Port), client.Config{
		Timeout: time.Second,
		Retries: 3,
	})
	return srv, fs, c
}

// ============================================================================
// Downloads
// ============================================================================

func TestServer_Download(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	content := []byte("served over loopback")
	require.NoError(t, afero.WriteFile(fs, "/srv/tftp/hello.txt", content, 0644))

	var sink bytes.Buffer
	m, err := c.Download(context.Background(), "hello.txt", &sink, nil)
	require.NoError(t, err)

	assert.Equal(t, content, sink.Bytes())
	assert.Equal(t, int64(len(content)), m.Bytes)
}

func TestServer_DownloadWithOptions(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	content := bytes.Repeat([]byte{0xC3}, 3000)
	require.NoError(t, afero.WriteFile(fs, "/srv/tftp/fw.bin", content, 0644))

	var oackSeen bool
	var sink bytes.Buffer
	m, err := c.Download(context.Background(), "fw.bin", &sink, &client.TransferOptions{
		Blksize:      1024,
		RequestTsize: true,
		Hook: func(p tftpproto.Packet) {
			if p.Opcode() == tftpproto.OpOACK {
				oackSeen = true
			}
		},
	})
	require.NoError(t, err)

	assert.True(t, oackSeen, "server never sent an OACK")
	assert.Equal(t, content, sink.Bytes())
	assert.Equal(t, int64(3000), m.Bytes)
}

func TestServer_DownloadSubdirectory(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	require.NoError(t, fs.MkdirAll("/srv/tftp/boot", 0755))
	require.NoError(t, afero.WriteFile(fs, "/srv/tftp/boot/pxelinux.0", []byte("loader"), 0644))

	var sink bytes.Buffer
	_, err := c.Download(context.Background(), "boot/pxelinux.0", &sink, nil)
	require.NoError(t, err)
	assert.Equal(t, "loader", sink.String())
}

func TestServer_DownloadMissingFile(t *testing.T) {
	_, _, c := startServer(t, ServerConfig{})

	var sink bytes.Buffer
	_, err := c.Download(context.Background(), "missing.bin", &sink, nil)
	require.Error(t, err)

	var terr *tftpproto.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tftpproto.KindRemote, terr.Kind)
	assert.Equal(t, tftpproto.ErrCodeFileNotFound, terr.Code)
}

func TestServer_DownloadTraversalRejected(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	require.NoError(t, afero.WriteFile(fs, "/srv/secret.txt", []byte("keep out"), 0644))

	var sink bytes.Buffer
	_, err := c.Download(context.Background(), "../secret.txt", &sink, nil)
	require.Error(t, err)

	var terr *tftpproto.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tftpproto.ErrCodeAccessViolation, terr.Code)
	assert.Zero(t, sink.Len())
}

func TestServer_DynFile(t *testing.T) {
	_, _, c := startServer(t, ServerConfig{
		DynFile: func(filename string) (io.ReadCloser, int64) {
			if filename != "mac-config" {
				return nil, -1
			}
			return io.NopCloser(strings.NewReader("ip=10.0.0.2")), 11
		},
	})

	var sink bytes.Buffer
	_, err := c.Download(context.Background(), "mac-config", &sink, nil)
	require.NoError(t, err)
	assert.Equal(t, "ip=10.0.0.2", sink.String())
}

// ============================================================================
// Uploads
// ============================================================================

func TestServer_Upload(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	content := bytes.Repeat([]byte{0x42}, 1500)

	m, err := c.Upload(context.Background(), "incoming.bin", bytes.NewReader(content), &client.TransferOptions{
		Tsize: int64(len(content)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), m.Bytes)

	stored, err := afero.ReadFile(fs, "/srv/tftp/incoming.bin")
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestServer_UploadWithBlksize(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	content := bytes.Repeat([]byte{0x24}, 5000)

	_, err := c.Upload(context.Background(), "big.bin", bytes.NewReader(content), &client.TransferOptions{
		Blksize: 2048,
		Tsize:   int64(len(content)),
	})
	require.NoError(t, err)

	stored, err := afero.ReadFile(fs, "/srv/tftp/big.bin")
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestServer_UploadVetoed(t *testing.T) {
	_, _, c := startServer(t, ServerConfig{
		UploadOpen: func(string, afero.Fs) (io.WriteCloser, error) {
			return nil, fmt.Errorf("read-only server")
		},
	})

	_, err := c.Upload(context.Background(), "denied.bin", strings.NewReader("x"), nil)
	require.Error(t, err)

	var terr *tftpproto.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tftpproto.KindRemote, terr.Kind)
	assert.Equal(t, tftpproto.ErrCodeAccessViolation, terr.Code)
}

// ============================================================================
// Negotiation limits
// ============================================================================

func TestServer_MaxBlksizeCap(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{MaxBlksize: 1024})
	content := bytes.Repeat([]byte{0x7E}, 2500)
	require.NoError(t, afero.WriteFile(fs, "/srv/tftp/capped.bin", content, 0644))

	var capped string
	var sink bytes.Buffer
	_, err := c.Download(context.Background(), "capped.bin", &sink, &client.TransferOptions{
		Blksize: 8192,
		Hook: func(p tftpproto.Packet) {
			if oack, ok := p.(tftpproto.OptionAck); ok {
				capped, _ = oack.Options.Get("blksize")
			}
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "1024", capped)
	assert.Equal(t, content, sink.Bytes())
}

// ============================================================================
// Concurrency and shutdown
// ============================================================================

func TestServer_ConcurrentTransfers(t *testing.T) {
	_, fs, c := startServer(t, ServerConfig{})
	content := bytes.Repeat([]byte{0x5C}, 4096)
	require.NoError(t, afero.WriteFile(fs, "/srv/tftp/shared.bin", content, 0644))

	const clients = 8
	var wg sync.WaitGroup
	errs := make([]error, clients)
	sinks := make([]bytes.Buffer, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Download(context.Background(), "shared.bin", &sinks[i], nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i], "client %d failed", i)
		assert.Equal(t, content, sinks[i].Bytes(), "client %d content mismatch", i)
	}
}

func TestServer_GracefulStop(t *testing.T) {
	srv, _, _ := startServer(t, ServerConfig{})

	srv.Stop()
	require.Eventually(t, func() bool {
		return srv.ActiveSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_ContextStops(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/srv/tftp", 0755))

	srv := NewServer(ServerConfig{
		ListenAddr:      "127.0.0.1",
		Port:            freeUDPPort(t),
		Root:            "/srv/tftp",
		Fs:              fs,
		ShutdownTimeout: time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(ctx)
	}()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
