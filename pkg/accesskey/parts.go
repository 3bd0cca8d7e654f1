package accesskey

import (
	"strings"
)

// Parts is the positional breakdown of an access key.
type Parts struct {
	UF           string `json:"uf"`
	YearMonth    string `json:"yearMonth"`
	IssuerCNPJ   string `json:"issuerCnpj"`
	Model        string `json:"model"`
	Series       string `json:"series"`
	Number       string `json:"number"`
	EmissionType string `json:"emissionType"`
	Code         string `json:"code"`
	CheckDigit   string `json:"checkDigit"`
}

// Decompose splits a valid key into its fields.
func Decompose(key string) (Parts, error) {
	if err := Validate(key); err != nil {
		return Parts{}, err
	}
	return Parts{
		UF:           key[0:2],
		YearMonth:    key[2:6],
		IssuerCNPJ:   key[6:20],
		Model:        key[20:22],
		Series:       key[22:25],
		Number:       key[25:34],
		EmissionType: key[34:35],
		Code:         key[35:43],
		CheckDigit:   key[43:44],
	}, nil
}

// Format groups a 44-character key in blocks of four separated by spaces.
// Any other input is returned unchanged.
func Format(key string) string {
	if len(key) != Length {
		return key
	}
	var sb strings.Builder
	sb.Grow(Length + Length/4)
	for i := 0; i < Length; i += 4 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(key[i : i+4])
	}
	return sb.String()
}
