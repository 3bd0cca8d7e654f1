package parsers

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

var (
	utf8BOM            = []byte{0xEF, 0xBB, 0xBF}
	declarationPattern = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)
)

// DecodePayload returns the payload as UTF-8 text.
//
// ASCII and valid UTF-8 pass through (a leading BOM is dropped). Other input
// is converted from the charset named in the XML declaration. Anything else
// fails with models.ErrEncoding. A nil accelerator means accel.Default().
func DecodePayload(b []byte, acc accel.Accelerator) (string, error) {
	if acc == nil {
		acc = accel.Default()
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	if acc.ValidateBytes(b) || utf8.Valid(b) {
		return string(b), nil
	}

	label := declaredEncoding(b)
	if label == "" {
		return "", fmt.Errorf("%w: payload is not valid UTF-8 and declares no encoding", models.ErrEncoding)
	}
	enc, err := lookupEncoding(label)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", models.ErrEncoding, label, err)
	}
	log.Debugf("decoded %d bytes from %s", len(b), label)
	return string(out), nil
}

func declaredEncoding(b []byte) string {
	head := b
	if len(head) > 256 {
		head = head[:256]
	}
	m := declarationPattern.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func lookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(label) {
	case "utf-8", "utf8":
		return nil, fmt.Errorf("%w: payload declares UTF-8 but contains invalid sequences", models.ErrEncoding)
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		// htmlindex maps these to windows-1252; keep the strict table.
		return charmap.ISO8859_1, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported encoding %q", models.ErrEncoding, label)
	}
	return enc, nil
}
