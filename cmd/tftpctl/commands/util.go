package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/marmos91/tftpfs/internal/cli/output"
	tftpproto "github.com/marmos91/tftpfs/internal/protocol/tftp"
	"github.com/marmos91/tftpfs/pkg/client"
	"github.com/marmos91/tftpfs/pkg/config"
)

// transferFlags are shared by the get and put commands.
type transferFlags struct {
	blksize int
	timeout time.Duration
	retries int
}

// newClient builds a TFTP client from the config file defaults, with
// any non-zero flag values taking precedence.
func newClient(flags transferFlags) (*client.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	clientCfg := client.Config{
		Blksize: cfg.Client.Blksize,
		Timeout: cfg.Client.Timeout,
		Retries: cfg.Client.Retries,
	}
	if flags.blksize > 0 {
		clientCfg.Blksize = flags.blksize
	}
	if flags.timeout > 0 {
		clientCfg.Timeout = flags.timeout
	}
	if flags.retries > 0 {
		clientCfg.Retries = flags.retries
	}

	return client.New(serverAddr, clientCfg), nil
}

// printSummary renders the transfer outcome in the selected output
// format.
func printSummary(w io.Writer, file, direction string, m tftpproto.Metrics) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	summary := &output.TransferSummary{
		File:        file,
		Direction:   direction,
		Bytes:       m.Bytes,
		Duration:    m.Duration,
		Kbps:        m.Kbps,
		Blocks:      m.PacketsSent,
		Retransmits: m.Retransmits,
		Duplicates:  m.Duplicates,
	}

	printer := output.NewPrinter(w, format, !noColor)
	if err := printer.Print(summary); err != nil {
		return fmt.Errorf("failed to render transfer summary: %w", err)
	}
	return nil
}
