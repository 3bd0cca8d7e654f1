// Package identity validates and formats Brazilian taxpayer identifiers (CNPJ and CPF).
package identity

import (
	"strings"
)

const (
	CNPJLength = 14
	CPFLength  = 11
)

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// OnlyDigits drops every character that is not an ASCII digit.
func OnlyDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func uniform(d string) bool {
	for i := 1; i < len(d); i++ {
		if d[i] != d[0] {
			return false
		}
	}
	return true
}

func cnpjDigit(d string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(d[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}

// ValidateCNPJ checks both CNPJ check digits. Punctuation is ignored.
func ValidateCNPJ(cnpj string) bool {
	d := OnlyDigits(cnpj)
	if len(d) != CNPJLength || uniform(d) {
		return false
	}
	return cnpjDigit(d, cnpjFirstWeights) == d[12] &&
		cnpjDigit(d, cnpjSecondWeights) == d[13]
}

func cpfDigit(d string, n int) byte {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(d[i]-'0') * (n + 1 - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		rem = 0
	}
	return byte('0' + rem)
}

// ValidateCPF checks both CPF check digits. Punctuation is ignored.
func ValidateCPF(cpf string) bool {
	d := OnlyDigits(cpf)
	if len(d) != CPFLength || uniform(d) {
		return false
	}
	return cpfDigit(d, 9) == d[9] && cpfDigit(d, 10) == d[10]
}

// ValidateTaxID picks the CNPJ or CPF check by digit count.
func ValidateTaxID(id string) bool {
	switch len(OnlyDigits(id)) {
	case CNPJLength:
		return ValidateCNPJ(id)
	case CPFLength:
		return ValidateCPF(id)
	default:
		return false
	}
}

// FormatCNPJ renders NN.NNN.NNN/NNNN-NN, or returns the input unchanged
// when it does not hold exactly 14 digits.
func FormatCNPJ(cnpj string) string {
	d := OnlyDigits(cnpj)
	if len(d) != CNPJLength {
		return cnpj
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// FormatCPF renders NNN.NNN.NNN-NN, or returns the input unchanged
// when it does not hold exactly 11 digits.
func FormatCPF(cpf string) string {
	d := OnlyDigits(cpf)
	if len(d) != CPFLength {
		return cpf
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

func FormatTaxID(id string) string {
	switch len(OnlyDigits(id)) {
	case CNPJLength:
		return FormatCNPJ(id)
	case CPFLength:
		return FormatCPF(id)
	default:
		return id
	}
}
