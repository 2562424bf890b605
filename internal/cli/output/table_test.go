package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	summary := &TransferSummary{
		File:      "initrd.gz",
		Direction: "download",
		Bytes:     2048,
	}

	require.NoError(t, PrintTable(&buf, summary))
	out := buf.String()

	// Header row comes first, data row second
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "FILE")
	assert.Contains(t, lines[0], "DIRECTION")
	assert.Contains(t, lines[1], "initrd.gz")
	assert.Contains(t, lines[1], "2.0 KiB")

	// Borderless style: no separator characters
	assert.NotContains(t, out, "|")
	assert.NotContains(t, out, "+")
}
