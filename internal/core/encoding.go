package core

// encoding.go turns uploaded bytes into text the parser can trust.
//
// Only UTF-8 is accepted. A UTF-8 byte-order mark (commonly written by
// Windows spreadsheet tools) is stripped; UTF-16/32 marks, NUL bytes and
// invalid byte sequences are rejected instead of being silently replaced, so the user is
// told to re-save the file rather than importing mangled values.

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxFileSize is the soft limit on uploaded document size (5 MiB).
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

var foreignBOMs = []struct {
	name string
	bom  []byte
}{
	{"UTF-32LE", []byte{0xFF, 0xFE, 0x00, 0x00}},
	{"UTF-32BE", []byte{0x00, 0x00, 0xFE, 0xFF}},
	{"UTF-16LE", []byte{0xFF, 0xFE}},
	{"UTF-16BE", []byte{0xFE, 0xFF}},
}

// CheckFileSize rejects documents larger than limit bytes.
// Callers run this before content reaches NormalizeText.
func CheckFileSize(size, limit int64) error {
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if size > limit {
		return &LimitError{Kind: ErrFileTooLarge, Limit: limit, Actual: size, Unit: "bytes"}
	}
	return nil
}

// NormalizeText validates that data is UTF-8, strips a leading BOM and
// converts CRLF and CR line endings to LF.
func NormalizeText(data []byte) (string, error) {
	for _, f := range foreignBOMs {
		if bytes.HasPrefix(data, f.bom) {
			return "", fmt.Errorf("%w: file is encoded as %s, re-save it as UTF-8", ErrEncoding, f.name)
		}
	}

	// UTF-16 without a BOM is valid UTF-8 byte for byte; NUL gives it away.
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: file contains NUL bytes (likely UTF-16 without a byte-order mark), re-save it as UTF-8", ErrEncoding)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8, re-save it as UTF-8", ErrEncoding)
	}

	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	text := string(decoded)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}
