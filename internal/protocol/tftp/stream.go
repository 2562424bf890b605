package tftp

import (
	"io"
	"os"

	"github.com/spf13/afero"
)

// Upload sources are plain io.Readers; download sinks are io.Writers.
// Streams that also implement io.Closer are closed when the session
// reaches a terminal state.

// OpenFileSource opens name on fs for reading and reports its size.
// The size feeds the tsize option; -1 means unknown.
func OpenFileSource(fs afero.Fs, name string) (io.ReadCloser, int64, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, -1, err
	}
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return f, size, nil
}

// OpenFileSink opens name on fs for writing, truncating any existing
// content.
func OpenFileSink(fs afero.Fs, name string) (io.WriteCloser, error) {
	return fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

// StdinSource adapts standard input as an upload source. The size is
// unknown, so tsize cannot be declared.
func StdinSource() io.ReadCloser {
	return io.NopCloser(os.Stdin)
}

// StdoutSink adapts standard output as a download sink. Close syncs
// without closing the underlying descriptor.
func StdoutSink() io.WriteCloser {
	return stdoutSink{}
}

type stdoutSink struct{}

func (stdoutSink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdoutSink) Close() error                { return os.Stdout.Sync() }

// readBlock fills buf from r, returning the number of bytes read and
// whether the source is exhausted. A short read marks the final block;
// sources must return short reads only at EOF.
func readBlock(r io.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(r, buf)
	switch err {
	case nil:
		return n, false, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return n, true, nil
	default:
		return n, false, err
	}
}

// closeStream closes s when it supports closing.
func closeStream(s any) error {
	if c, ok := s.(io.Closer); ok && c != nil {
		return c.Close()
	}
	return nil
}
