package accel

import "math"

type Portable struct{}

var _ Accelerator = Portable{}

func (Portable) ValidateBytes(b []byte) bool {
	for _, c := range b {
		if !allowed(c) {
			return false
		}
	}
	return true
}

func (Portable) FindTag(b []byte, tag string) int {
	if tag == "" || len(b) == 0 {
		return -1
	}
	n := len(tag) + 1
outer:
	for i := 0; i+n <= len(b); i++ {
		if b[i] != '<' {
			continue
		}
		for j := 0; j < len(tag); j++ {
			if b[i+1+j] != tag[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func (Portable) ExtractNumber(b []byte) (uint64, bool) {
	if len(b) == 0 || b[0] < '0' || b[0] > '9' {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	return v, true
}
