// Package validator checks fiscal documents against business rules and
// reports the findings as a models.ValidationResult.
//
// Validation never fails: structural problems become Critical errors in the
// result. Checks that cannot find their input are skipped.
package validator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/accesskey"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "validator")

type Validator struct {
	now func() time.Time
}

type Option func(*Validator)

func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// Validate runs the checks for docType using the wall clock.
func Validate(xml string, docType models.DocumentType) models.ValidationResult {
	return defaultValidator.Validate(xml, docType)
}

type report struct {
	result *models.ValidationResult
	seen   map[string]bool
}

func (r *report) fail(code, field, message string, severity models.Severity) {
	r.result.Errors = append(r.result.Errors, models.ValidationError{
		Code:     code,
		Field:    field,
		Message:  message,
		Severity: severity,
	})
}

func (r *report) warn(code, field, message, impact string) {
	r.result.Warnings = append(r.result.Warnings, models.ValidationWarning{
		Code:    code,
		Field:   field,
		Message: message,
		Impact:  impact,
	})
}

func (r *report) suggest(s string) {
	if r.seen[s] {
		return
	}
	r.seen[s] = true
	r.result.Suggestions = append(r.result.Suggestions, s)
}

func (v *Validator) Validate(xml string, docType models.DocumentType) models.ValidationResult {
	now := v.now().UTC()
	result := models.ValidationResult{
		AccessKey:    documentKey(xml),
		DocumentType: docType,
		Errors:       []models.ValidationError{},
		Warnings:     []models.ValidationWarning{},
		Suggestions:  []string{},
		ValidatedAt:  now,
	}
	r := &report{result: &result, seen: map[string]bool{}}

	switch docType {
	case models.NotaFiscal:
		f := extractFacts(xml)
		checkStructure(r, f)
		checkTaxIDs(r, f)
		checkCFOP(r, f)
		checkNCM(r, f)
		checkICMS(r, f)
		checkAccessKey(r, xml)
		checkDates(r, f, now)
	case models.ConhecimentoTransporte:
		f := extractFacts(xml)
		checkStructure(r, f)
		checkTaxIDs(r, f)
		checkAccessKey(r, xml)
		checkDates(r, f, now)
	default:
		r.fail(codeDocTypeInvalid, "document_type", "Tipo de documento não suportado", models.SeverityCritical)
	}

	result.IsValid = len(result.Errors) == 0
	log.Debugf("validated %s %s: %d errors, %d warnings",
		docType, result.AccessKey, len(result.Errors), len(result.Warnings))
	return result
}

// documentKey is the key the document claims, valid or not.
func documentKey(xml string) string {
	if key, ok := accesskey.Extract(xml); ok {
		return key
	}
	if key, ok := accesskey.Find(xml); ok {
		return key
	}
	return ""
}
