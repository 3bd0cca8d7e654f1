package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/denysvitali/go-datesfinder"

	"github.com/denysvitali/fiscal-ingest/pkg/accesskey"
	"github.com/denysvitali/fiscal-ingest/pkg/identity"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

const (
	codeXMLMalformed      = "XML_MALFORMED"
	codeCFOPInvalid       = "CFOP_INVALID"
	codeCFOPCheckUF       = "CFOP_CHECK_UF"
	codeNCMInvalidFormat  = "NCM_INVALID_FORMAT"
	codeNCMRequiresIPI    = "NCM_REQUIRES_IPI"
	codeICMSCalcError     = "ICMS_CALC_ERROR"
	codeICMSTotalMismatch = "ICMS_TOTAL_MISMATCH"
	codeKeyInvalidFormat  = "KEY_INVALID_FORMAT"
	codeKeyInvalidDigit   = "KEY_INVALID_DIGIT"
	codeDateInvalid       = "DATE_INVALID_FORMAT"
	codeDateRetroactive   = "DATE_RETROACTIVE"
	codeDateFuture        = "DATE_FUTURE"
	codeDocTypeInvalid    = "DOC_TYPE_INVALID"
	codeTaxIDInvalid      = "TAXID_INVALID"
)

const (
	tolerance        = 0.01 + 1e-9
	retroactiveLimit = 5 * 24 * time.Hour
	futureLimit      = 24 * time.Hour
)

var knownCFOPs = map[string]bool{
	"5102": true, "5103": true, "5104": true, "5405": true, "5949": true,
	"6102": true, "6103": true, "6104": true, "6405": true, "6949": true,
}

// ipiPrefixes are NCM chapters that usually carry IPI.
var ipiPrefixes = []string{"8433", "8704"}

// IsKnownCFOP reports whether cfop is in the accepted CFOP table.
func IsKnownCFOP(cfop string) bool {
	return knownCFOPs[cfop]
}

func checkStructure(r *report, f *facts) {
	if f.parseErr == nil {
		return
	}
	r.fail(codeXMLMalformed, "xml", fmt.Sprintf("XML malformado: %v", f.parseErr), models.SeverityCritical)
}

// checkTaxIDs flags issuer and recipient identifiers whose check digits fail.
// A CNPJ element holding a CPF-sized number, or the reverse, is invalid too.
func checkTaxIDs(r *report, f *facts) {
	for _, id := range f.taxIDs {
		want := identity.CNPJLength
		if id.tag == "CPF" {
			want = identity.CPFLength
		}
		if len(identity.OnlyDigits(id.value)) == want && identity.ValidateTaxID(id.value) {
			continue
		}
		r.warn(codeTaxIDInvalid, id.party,
			fmt.Sprintf("%s %s do %s é inválido", id.tag, identity.FormatTaxID(id.value), id.party),
			"Documento pode ser rejeitado pela SEFAZ")
	}
}

func checkCFOP(r *report, f *facts) {
	seen := map[string]bool{}
	for _, it := range f.items {
		cfop := it.cfop
		if cfop == "" || seen[cfop] {
			continue
		}
		seen[cfop] = true

		if !IsKnownCFOP(cfop) {
			r.fail(codeCFOPInvalid, "CFOP",
				fmt.Sprintf("CFOP %s não existe na tabela oficial", cfop), models.SeverityHigh)
			r.suggest("Verifique a tabela de CFOPs da Receita Federal")
		}

		sameUF := f.issuerUF != "" && f.issuerUF == f.recipientUF
		switch {
		case strings.HasPrefix(cfop, "5") && !sameUF:
			r.warn(codeCFOPCheckUF, "CFOP",
				fmt.Sprintf("CFOP %s é para operações internas - verifique UFs", cfop),
				"Pode gerar multa se UFs forem diferentes")
		case strings.HasPrefix(cfop, "6") && sameUF:
			r.warn(codeCFOPCheckUF, "CFOP",
				fmt.Sprintf("CFOP %s é para operações interestaduais - verifique UFs", cfop),
				"Pode gerar multa se UFs forem iguais")
		}
	}
}

func checkNCM(r *report, f *facts) {
	type ncmFacts struct {
		hasIPI bool
	}
	var order []string
	byNCM := map[string]*ncmFacts{}
	for _, it := range f.items {
		if it.ncm == "" {
			continue
		}
		nf, ok := byNCM[it.ncm]
		if !ok {
			nf = &ncmFacts{}
			byNCM[it.ncm] = nf
			order = append(order, it.ncm)
		}
		nf.hasIPI = nf.hasIPI || it.hasIPI
	}

	for _, ncm := range order {
		if len(ncm) != 8 || !allDigits(ncm) {
			r.fail(codeNCMInvalidFormat, "NCM",
				fmt.Sprintf("NCM %s deve ter 8 dígitos numéricos", ncm), models.SeverityHigh)
		}
		if requiresIPI(ncm) && !byNCM[ncm].hasIPI {
			r.warn(codeNCMRequiresIPI, "NCM",
				fmt.Sprintf("NCM %s pode exigir IPI - verifique alíquota", ncm),
				"Falta de IPI pode gerar autuação")
		}
	}
}

func requiresIPI(ncm string) bool {
	for _, p := range ipiPrefixes {
		if strings.HasPrefix(ncm, p) {
			return true
		}
	}
	return false
}

func checkICMS(r *report, f *facts) {
	var sum float64
	var itemsWithICMS int
	for _, it := range f.items {
		if it.icmsValue != nil {
			sum += *it.icmsValue
			itemsWithICMS++
		}
		if it.icmsBase == nil || it.icmsRate == nil || it.icmsValue == nil {
			continue
		}
		base, rate, value := *it.icmsBase, *it.icmsRate, *it.icmsValue
		expected := base * rate / 100
		if math.Abs(value-expected) <= tolerance {
			continue
		}
		r.fail(codeICMSCalcError, "ICMS",
			fmt.Sprintf("ICMS calculado (R$ %.2f) difere do esperado (R$ %.2f)", value, expected),
			models.SeverityMedium)
		r.suggest(fmt.Sprintf("Recalcule: %s × %s%% = R$ %.2f", formatNumber(base), formatNumber(rate), expected))
	}

	if f.icmsTotal == nil || itemsWithICMS == 0 {
		return
	}
	if math.Abs(*f.icmsTotal-sum) > tolerance {
		r.fail(codeICMSTotalMismatch, "ICMSTot",
			fmt.Sprintf("Total de ICMS (R$ %.2f) difere da soma dos itens (R$ %.2f)", *f.icmsTotal, sum),
			models.SeverityMedium)
	}
}

func checkAccessKey(r *report, xml string) {
	key, ok := accesskey.Find(xml)
	if !ok {
		return
	}
	if !accesskey.IsWellFormed(key) {
		r.fail(codeKeyInvalidFormat, "chave_acesso",
			"Chave de acesso deve ter 44 dígitos numéricos", models.SeverityCritical)
		return
	}
	if !accesskey.CheckDigitValid(key) {
		r.fail(codeKeyInvalidDigit, "chave_acesso",
			"Dígito verificador da chave de acesso inválido", models.SeverityCritical)
	}
}

func checkDates(r *report, f *facts, now time.Time) {
	if f.emission == "" {
		return
	}
	issued, ok := parseEmission(f.emission)
	if !ok {
		r.warn(codeDateInvalid, "data_emissao",
			fmt.Sprintf("Data de emissão %q em formato inválido", f.emission),
			"Documento pode ser rejeitado pela SEFAZ")
		return
	}
	switch {
	case issued.Before(now.Add(-retroactiveLimit)):
		r.warn(codeDateRetroactive, "data_emissao",
			"Data de emissão está retroativa (mais de 5 dias)",
			"Pode indicar manipulação fiscal")
	case issued.After(now.Add(futureLimit)):
		r.warn(codeDateFuture, "data_emissao",
			"Data de emissão está no futuro",
			"Documento pode ser rejeitado pela SEFAZ")
	}
}

// parseEmission accepts RFC 3339 and plain dates, then tries to recover a
// date from free text.
func parseEmission(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	dates, errs := datesfinder.FindDates(s)
	for _, err := range errs {
		log.Debugf("date recovery for %q: %v", s, err)
	}
	if len(dates) > 0 {
		return dates[0], true
	}
	return time.Time{}, false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
