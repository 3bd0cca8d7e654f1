package accel

import (
	"bytes"
	"encoding/binary"
	"math/bits"
)

const (
	lo7F   = 0x7F7F7F7F7F7F7F7F
	lo20   = 0x2020202020202020
	hi80   = 0x8080808080808080
	ones01 = 0x0101010101010101
)

type Fast struct{}

var _ Accelerator = Fast{}

// ValidateBytes checks eight bytes at a time and only inspects single bytes
// of a word that contains something outside 0x20..0x7E.
func (Fast) ValidateBytes(b []byte) bool {
	i := 0
	for ; i+8 <= len(b); i += 8 {
		w := binary.LittleEndian.Uint64(b[i:])
		if w&hi80 == 0 && !hasLess(w, 0x20) && !hasZero(w^lo7F) {
			continue
		}
		for _, c := range b[i : i+8] {
			if !allowed(c) {
				return false
			}
		}
	}
	for _, c := range b[i:] {
		if !allowed(c) {
			return false
		}
	}
	return true
}

// hasLess reports whether any byte of w is below n. Only valid when no byte
// has the high bit set, which the caller checks first.
func hasLess(w uint64, n uint64) bool {
	return (w-ones01*n)&^w&hi80 != 0
}

func hasZero(w uint64) bool {
	return (w-ones01)&^w&hi80 != 0
}

func (Fast) FindTag(b []byte, tag string) int {
	if tag == "" || len(b) == 0 {
		return -1
	}
	needle := make([]byte, 0, len(tag)+1)
	needle = append(needle, '<')
	needle = append(needle, tag...)
	return bytes.Index(b, needle)
}

func (Fast) ExtractNumber(b []byte) (uint64, bool) {
	if len(b) == 0 || b[0] < '0' || b[0] > '9' {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		hi, lo := bits.Mul64(v, 10)
		if hi != 0 {
			return 0, false
		}
		sum, carry := bits.Add64(lo, uint64(c-'0'), 0)
		if carry != 0 {
			return 0, false
		}
		v = sum
	}
	return v, true
}
