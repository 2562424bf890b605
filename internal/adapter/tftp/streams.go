package tftp

import (
	"io"
	"os"
	"path"
	"strings"

	tftpproto "github.com/marmos91/tftpfs/internal/protocol/tftp"
)

// sandboxPath normalizes a requested filename and rejects anything that
// would escape the served root. The returned path is relative to the
// root filesystem.
func sandboxPath(name string) (string, error) {
	// An absolute request path is anchored at the root, as tftpd does.
	// Relative segments that climb above the root are refused.
	cleaned := path.Clean(strings.TrimLeft(name, "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &tftpproto.TransferError{
			Kind:    tftpproto.KindFilesystem,
			Code:    tftpproto.ErrCodeAccessViolation,
			HasCode: true,
			Message: "path escapes served root",
		}
	}
	return cleaned, nil
}

// openRead resolves a read request against the sandboxed root. When the
// file does not exist and a DynFile hook is configured, the hook may
// serve generated content instead.
func (s *Server) openRead(filename string) (io.ReadCloser, int64, error) {
	rel, err := sandboxPath(filename)
	if err != nil {
		return nil, -1, err
	}

	src, size, err := tftpproto.OpenFileSource(s.root, rel)
	if err == nil {
		return src, size, nil
	}

	if os.IsNotExist(err) && s.config.DynFile != nil {
		if dyn, dynSize := s.config.DynFile(rel); dyn != nil {
			return dyn, dynSize, nil
		}
	}

	return nil, -1, err
}

// openWrite resolves a write request against the sandboxed root. A
// configured UploadOpen hook may veto the upload or supply its own
// sink; a nil writer with a nil error falls through to the default
// sandboxed open.
func (s *Server) openWrite(filename string) (io.WriteCloser, error) {
	rel, err := sandboxPath(filename)
	if err != nil {
		return nil, err
	}

	if s.config.UploadOpen != nil {
		sink, err := s.config.UploadOpen(rel, s.root)
		if err != nil {
			return nil, err
		}
		if sink != nil {
			return sink, nil
		}
	}

	return tftpproto.OpenFileSink(s.root, rel)
}
