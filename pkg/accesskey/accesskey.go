// Package accesskey locates and checks the 44-digit chave de acesso of NF-e and CT-e documents.
package accesskey

import (
	"fmt"
	"strings"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

const Length = 44

// markers are scanned in this order before falling back to bare digit runs.
var markers = []string{
	"<chNFe>",
	"<chCTe>",
	`Id="NFe`,
	`Id="CTe`,
}

// IsWellFormed reports whether s is exactly 44 ASCII digits.
func IsWellFormed(s string) bool {
	if len(s) != Length {
		return false
	}
	return allDigits(s)
}

// CheckDigit computes the Mod-11 check digit of the first 43 digits of a key.
func CheckDigit(prefix string) (int, error) {
	if len(prefix) != Length-1 || !allDigits(prefix) {
		return 0, fmt.Errorf("%w: prefixo deve ter %d dígitos", models.ErrInvalidAccessKey, Length-1)
	}
	sum := 0
	weight := 2
	for i := len(prefix) - 1; i >= 0; i-- {
		sum += int(prefix[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rem := sum % 11
	if rem < 2 {
		return 0, nil
	}
	return 11 - rem, nil
}

// CheckDigitValid reports whether the last digit of s matches the Mod-11 digit of the rest.
func CheckDigitValid(s string) bool {
	if !IsWellFormed(s) {
		return false
	}
	dv, err := CheckDigit(s[:Length-1])
	if err != nil {
		return false
	}
	return int(s[Length-1]-'0') == dv
}

// Validate returns nil for an acceptable key, or an error wrapping
// models.ErrInvalidAccessKey that names the failed aspect.
func Validate(s string) error {
	if !IsWellFormed(s) {
		return fmt.Errorf("%w: formato (esperado %d dígitos numéricos)", models.ErrInvalidAccessKey, Length)
	}
	if !CheckDigitValid(s) {
		return fmt.Errorf("%w: dígito verificador", models.ErrInvalidAccessKey)
	}
	return nil
}

// Extract returns the first valid access key found in the raw XML.
func Extract(xml string) (string, bool) {
	for _, marker := range markers {
		for _, candidate := range markerCandidates(xml, marker, false) {
			if Validate(candidate) == nil {
				return candidate, true
			}
		}
	}
	for _, candidate := range digitRuns(xml) {
		if CheckDigitValid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Find returns the first candidate following a known marker, valid or not.
// The candidate stops at the first '<' or '"' so a short key is reported as such.
func Find(xml string) (string, bool) {
	for _, marker := range markers {
		candidates := markerCandidates(xml, marker, true)
		if len(candidates) > 0 {
			return candidates[0], true
		}
	}
	runs := digitRuns(xml)
	if len(runs) > 0 {
		return runs[0], true
	}
	return "", false
}

// markerCandidates returns the text following every occurrence of marker: the
// next 44 characters, or when delimited is set, everything up to '<' or '"'.
func markerCandidates(xml string, marker string, delimited bool) []string {
	var out []string
	rest := xml
	for {
		idx := strings.Index(rest, marker)
		if idx < 0 {
			return out
		}
		rest = rest[idx+len(marker):]
		if !delimited {
			if len(rest) >= Length {
				out = append(out, rest[:Length])
			}
			continue
		}
		end := strings.IndexAny(rest, `<"`)
		if end < 0 {
			end = len(rest)
		}
		if end > 2*Length {
			end = 2 * Length
		}
		out = append(out, strings.TrimSpace(rest[:end]))
	}
}

// digitRuns returns every maximal run of exactly 44 ASCII digits.
func digitRuns(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && isDigit(s[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start == Length {
			out = append(out, s[start:i])
		}
		start = -1
	}
	return out
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
