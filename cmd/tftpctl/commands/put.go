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

var putFlags transferFlags

var putCmd = &cobra.Command{
	Use:   "put <local-file> [remote-file]",
	Short: "Upload a file to a TFTP server",
	Long: `Upload a file to a TFTP server.

The file is stored under remote-file, or under the basename of the
local path when omitted. Use "-" as local-file to read from stdin
(a remote-file name is then required).

Examples:
  # Upload with the default 512-byte blocks
  tftpctl put ./image.bin --server 192.0.2.10:69

  # Upload under a different remote name
  tftpctl put ./build/uImage boot/uImage --blksize 8192

  # Stream from stdin
  cat report.txt | tftpctl put - report.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

func init() {
	putCmd.Flags().IntVar(&putFlags.blksize, "blksize", 0, "Block size to negotiate (8-65464, 0 keeps the configured client block size)")
	putCmd.Flags().DurationVar(&putFlags.timeout, "timeout", 0, "Retransmission timeout (default 5s)")
	putCmd.Flags().IntVar(&putFlags.retries, "retries", 0, "Retransmission budget per packet (default 3)")
}

func runPut(cmd *cobra.Command, args []string) error {
	local := args[0]
	fromStdin := local == "-"

	var remote string
	switch {
	case len(args) == 2:
		remote = args[1]
	case fromStdin:
		return fmt.Errorf("a remote file name is required when reading from stdin")
	default:
		remote = filepath.Base(local)
	}

	c, err := newClient(putFlags)
	if err != nil {
		return err
	}

	var source io.Reader
	tsize := int64(-1)
	if fromStdin {
		source = tftpproto.StdinSource()
	} else {
		f, err := os.Open(local)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", local, err)
		}
		source = f

		if info, err := f.Stat(); err == nil {
			tsize = info.Size()
		}
	}

	opts := &client.TransferOptions{Tsize: tsize}

	result, err := c.Upload(context.Background(), remote, source, opts)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	return printSummary(os.Stdout, remote, metrics.DirectionUpload, result)
}
