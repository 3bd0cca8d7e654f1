// Package accel provides the byte-level primitives used on hot ingestion paths:
// printable-ASCII checks, tag search and leading-integer parsing.
//
// Two implementations give identical results. Portable is a straightforward
// byte loop; Fast works on 8-byte words. Default picks one at build time.
package accel

import (
	"fmt"
	"strings"
)

type Accelerator interface {
	// ValidateBytes reports whether every byte is printable ASCII, tab, LF or CR.
	ValidateBytes(b []byte) bool
	// FindTag returns the offset of the first "<"+tag in b, or -1.
	FindTag(b []byte, tag string) int
	// ExtractNumber parses the leading decimal digits of b.
	// It fails when b does not start with a digit or the value overflows.
	ExtractNumber(b []byte) (uint64, bool)
}

// ByName returns the accelerator named "portable" or "fast".
func ByName(name string) (Accelerator, error) {
	switch strings.ToLower(name) {
	case "portable":
		return Portable{}, nil
	case "fast", "":
		return Fast{}, nil
	default:
		return nil, fmt.Errorf("unknown accelerator %q", name)
	}
}

func allowed(c byte) bool {
	return c == '\t' || c == '\n' || c == '\r' || (c >= 0x20 && c <= 0x7E)
}
