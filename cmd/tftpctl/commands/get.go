package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	tftpproto "github.com/marmos91/tftpfs/internal/protocol/tftp"
	"github.com/marmos91/tftpfs/pkg/client"
	"github.com/marmos91/tftpfs/pkg/metrics"
)

var getFlags transferFlags

var getCmd = &cobra.Command{
	Use:   "get <remote-file> [local-file]",
	Short: "Download a file from a TFTP server",
	Long: `Download a file from a TFTP server.

The file is written to local-file, or to the basename of the remote
path when omitted. Use "-" as local-file to write to stdout.

Examples:
  # Download to the current directory
  tftpctl get firmware.bin --server 192.0.2.10:69

  # Download to a specific path with a 1432-byte block size
  tftpctl get boot/pxelinux.0 /tmp/pxelinux.0 --blksize 1432

  # Stream to stdout
  tftpctl get config.txt - | less`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

func init() {
	getCmd.Flags().IntVar(&getFlags.blksize, "blksize", 0, "Block size to negotiate (8-65464, 0 keeps the configured client block size)")
	getCmd.Flags().DurationVar(&getFlags.timeout, "timeout", 0, "Retransmission timeout (default 5s)")
	getCmd.Flags().IntVar(&getFlags.retries, "retries", 0, "Retransmission budget per packet (default 3)")
	getCmd.Flags().Bool("tsize", false, "Request the transfer size from the server")
}

func runGet(cmd *cobra.Command, args []string) error {
	remote := args[0]
	local := filepath.Base(remote)
	if len(args) == 2 {
		local = args[1]
	}

	c, err := newClient(getFlags)
	if err != nil {
		return err
	}

	requestTsize, _ := cmd.Flags().GetBool("tsize")
	opts := &client.TransferOptions{
		Tsize:        -1,
		RequestTsize: requestTsize,
	}

	// The session closes the sink when the transfer ends, so stdout
	// gets a sync-only wrapper instead of the raw file.
	var sink io.Writer
	toStdout := local == "-"
	if toStdout {
		sink = tftpproto.StdoutSink()
	} else {
		f, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", local, err)
		}
		sink = f
	}

	result, err := c.Download(context.Background(), remote, sink, opts)
	if err != nil {
		if !toStdout {
			// Do not leave a truncated file behind.
			_ = os.Remove(local)
		}
		return fmt.Errorf("download failed: %w", err)
	}

	// The summary goes to stderr when the payload occupies stdout.
	summaryOut := os.Stdout
	if toStdout {
		summaryOut = os.Stderr
	}
	return printSummary(summaryOut, remote, metrics.DirectionDownload, result)
}
