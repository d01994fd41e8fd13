// Package codec converts blob payloads between their wire form (base64,
// optionally behind a data-URI marker) and raw bytes.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

const (
	dataScheme   = "data:"
	base64Marker = ";base64,"
)

var strict = base64.StdEncoding.Strict()

// Decode strips an optional "data:<mime>;base64," prefix and decodes the
// remainder as padded standard base64. Anything else fails with
// ErrInvalidPayloadEncoding: alphabet or padding errors, a "data:" prefix
// without the base64 marker, a second prefix behind the first, and embedded
// line breaks.
func Decode(input string) ([]byte, error) {
	body := input
	if strings.HasPrefix(body, dataScheme) {
		idx := strings.Index(body, base64Marker)
		if idx < 0 {
			return nil, fmt.Errorf("%w: data URI without %q marker", blobderr.ErrInvalidPayloadEncoding, base64Marker)
		}
		body = body[idx+len(base64Marker):]
		if strings.HasPrefix(body, dataScheme) {
			return nil, fmt.Errorf("%w: nested data URI prefix", blobderr.ErrInvalidPayloadEncoding)
		}
	}

	// DecodeString silently drops \r and \n, which would let a corrupted
	// payload through.
	if strings.ContainsAny(body, "\r\n") {
		return nil, fmt.Errorf("%w: line breaks in payload", blobderr.ErrInvalidPayloadEncoding)
	}

	out, err := strict.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blobderr.ErrInvalidPayloadEncoding, err)
	}
	return out, nil
}

// Encode returns the canonical padded base64 form of b. It never adds a
// data-URI prefix.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
