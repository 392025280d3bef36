package core

// streaming.go reads uploaded documents from a stream without trusting the
// declared size. Multipart uploads and stdin both arrive as io.Reader, and
// neither is guaranteed to carry an honest Content-Length.

import (
	"bytes"
	"fmt"
	"io"
)

// ReadDocument reads at most limit bytes from r. A stream longer than limit
// fails with a *LimitError wrapping ErrFileTooLarge; the actual size is
// reported as at least limit+1 since the rest is never read.
func ReadDocument(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}

	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	if err := CheckFileSize(n, limit); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
