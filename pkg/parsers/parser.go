// Package parsers turns NF-e and CT-e XML into typed records.
//
// Each builder folds the text nodes reported by xmlpath.Walk over a static
// rule table. A rule fires when the node's leaf element matches and the
// required ancestor is open; the first matching rule wins.
package parsers

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/accesskey"
	"github.com/denysvitali/fiscal-ingest/pkg/identity"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/xmlpath"
)

var log = logrus.StandardLogger().WithField("package", "parsers")

type rule[S any] struct {
	ancestor string
	leaf     string
	set      func(s *S, text string)
}

// apply runs the first rule matching path. It reports whether one did.
func apply[S any](rules []rule[S], s *S, text string, path xmlpath.Path) bool {
	for _, r := range rules {
		if path.Under(r.ancestor, r.leaf) {
			r.set(s, text)
			return true
		}
	}
	return false
}

type config struct {
	accelerator accel.Accelerator
	now         func() time.Time
}

type Option func(*config)

func WithAccelerator(a accel.Accelerator) Option {
	return func(c *config) {
		c.accelerator = a
	}
}

// WithClock sets the time source used for CreatedAt and for unparseable emission dates.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

func newConfig(opts []Option) config {
	c := config{
		accelerator: accel.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Debugf("invalid number %q, using 0", s)
		return 0
	}
	return v
}

// parseDate accepts RFC 3339 timestamps and plain dates (legacy dEmi).
// Anything else falls back to the current time.
func (c config) parseDate(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC()
	}
	log.Debugf("invalid date %q, using current time", s)
	return c.now().UTC()
}

func (c config) parseCode(s string) (uint64, bool) {
	return c.accelerator.ExtractNumber([]byte(s))
}

// requireKey returns the document's valid access key. A document carrying no
// key candidate at all also matches ErrMissingRequiredField.
func (c config) requireKey(xml string) (string, error) {
	key, ok := accesskey.Extract(xml)
	if ok {
		return key, nil
	}
	if _, found := accesskey.Find(xml); !found {
		return "", fmt.Errorf("%w: %w: chave de acesso ausente", models.ErrMissingRequiredField, models.ErrInvalidAccessKey)
	}
	return "", fmt.Errorf("%w: chave não encontrada", models.ErrInvalidAccessKey)
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, err)
	}
	return b, nil
}

func strPtr(s string) *string {
	return &s
}

// partyRules maps the identity and address leaves of a party element.
// The helper is shared by every party of both document types.
func partyRules[S any](party string, address string, get func(*S) *models.Party) []rule[S] {
	addr := func(f func(a *models.Address, text string)) func(*S, string) {
		return func(s *S, text string) {
			f(&get(s).Address, text)
		}
	}
	return []rule[S]{
		{address, "xLgr", addr(func(a *models.Address, v string) { a.Street = v })},
		{address, "nro", addr(func(a *models.Address, v string) { a.Number = v })},
		{address, "xCpl", addr(func(a *models.Address, v string) { a.Complement = strPtr(v) })},
		{address, "xBairro", addr(func(a *models.Address, v string) { a.District = v })},
		{address, "cMun", addr(func(a *models.Address, v string) { a.MunicipalityCode = v })},
		{address, "xMun", addr(func(a *models.Address, v string) { a.Municipality = v })},
		{address, "UF", addr(func(a *models.Address, v string) { a.State = v })},
		{address, "CEP", addr(func(a *models.Address, v string) { a.PostalCode = v })},
		{address, "cPais", addr(func(a *models.Address, v string) { a.CountryCode = v })},
		{address, "xPais", addr(func(a *models.Address, v string) { a.Country = v })},
		{address, "fone", func(s *S, v string) { get(s).Phone = strPtr(v) }},
		{party, "fone", func(s *S, v string) { get(s).Phone = strPtr(v) }},
		{party, "CNPJ", func(s *S, v string) { get(s).TaxID = identity.OnlyDigits(v) }},
		{party, "CPF", func(s *S, v string) { get(s).TaxID = identity.OnlyDigits(v) }},
		{party, "xNome", func(s *S, v string) { get(s).Name = v }},
		{party, "xFant", func(s *S, v string) { get(s).TradeName = strPtr(v) }},
		{party, "IE", func(s *S, v string) { get(s).StateRegistration = strPtr(v) }},
		{party, "email", func(s *S, v string) { get(s).Email = strPtr(v) }},
	}
}
