package output

import (
	"fmt"
	"time"
)

// TransferSummary holds the outcome of a single transfer for display.
// It renders as a one-row table under a header row and marshals cleanly
// to JSON/YAML.
type TransferSummary struct {
	File        string        `json:"file" yaml:"file"`
	Direction   string        `json:"direction" yaml:"direction"`
	Bytes       int64         `json:"bytes" yaml:"bytes"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Kbps        float64       `json:"kbps" yaml:"kbps"`
	Blocks      int           `json:"blocks" yaml:"blocks"`
	Retransmits int           `json:"retransmits" yaml:"retransmits"`
	Duplicates  int           `json:"duplicates" yaml:"duplicates"`
}

// Headers implements TableRenderer.
func (s *TransferSummary) Headers() []string {
	return []string{"FILE", "DIRECTION", "BYTES", "DURATION", "RATE", "RETRANS", "DUPS"}
}

// Rows implements TableRenderer.
func (s *TransferSummary) Rows() [][]string {
	return [][]string{{
		s.File,
		s.Direction,
		FormatBytes(s.Bytes),
		s.Duration.Round(time.Millisecond).String(),
		fmt.Sprintf("%.1f kbps", s.Kbps),
		fmt.Sprintf("%d", s.Retransmits),
		fmt.Sprintf("%d", s.Duplicates),
	}}
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
