package metrics

import (
	"time"
)

// TransferMetrics provides observability for TFTP transfers.
//
// Implementations can collect metrics about transfer lifecycle,
// throughput, retransmissions and duplicates. This interface is
// optional - pass nil to disable metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewTransferMetrics()
//	server := tftp.NewServer(config, m)
//
//	// Without metrics (pass nil for zero overhead)
//	server := tftp.NewServer(config, nil)
type TransferMetrics interface {
	// RecordTransferStart increments the started counter and should be
	// paired with RecordTransferComplete or RecordTransferFailed.
	//
	// Parameters:
	//   - direction: "download" (serving a read) or "upload" (receiving a write)
	RecordTransferStart(direction string)

	// RecordTransferComplete records a successful transfer and its duration.
	RecordTransferComplete(direction string, duration time.Duration)

	// RecordTransferFailed records a transfer that ended in error.
	RecordTransferFailed(direction string)

	// RecordBytesTransferred adds the payload bytes moved in a transfer.
	RecordBytesTransferred(direction string, bytes uint64)

	// RecordRetransmits adds timeout-driven resends observed in a transfer.
	RecordRetransmits(count int)

	// RecordDuplicates adds duplicate packets received in a transfer.
	RecordDuplicates(count int)

	// SetActiveSessions updates the current session count gauge.
	SetActiveSessions(count int32)
}

// Transfer directions used as metric label values.
const (
	DirectionDownload = "download"
	DirectionUpload   = "upload"
)
