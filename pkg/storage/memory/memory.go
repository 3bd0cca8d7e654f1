// Package memory is a Store kept in process memory. It backs tests and
// single-process deployments that do not need persistence.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

type entry struct {
	id        string
	doc       models.Document
	createdAt time.Time
}

// docKey mirrors the per-type tables of the SQL stores: an access key is
// unique within its document type only.
type docKey struct {
	docType models.DocumentType
	key     string
}

type Memory struct {
	mu          sync.RWMutex
	byKey       map[docKey]*entry
	order       []*entry
	validations map[string][]models.ValidationResult
	now         func() time.Time
}

var (
	_ model.Store    = (*Memory)(nil)
	_ model.Searcher = (*Memory)(nil)
)

type Option func(*Memory)

func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

func New(opts ...Option) *Memory {
	m := &Memory{
		byKey:       map[docKey]*entry{},
		validations: map[string][]models.ValidationResult{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) FindByAccessKey(_ context.Context, docType models.DocumentType, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byKey[docKey{docType, key}]
	if !ok {
		return "", false, nil
	}
	return e.id, true, nil
}

func (m *Memory) Insert(_ context.Context, doc models.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := docKey{doc.Type(), doc.Key()}
	if _, ok := m.byKey[k]; ok {
		return "", fmt.Errorf("%w: %s", models.ErrDuplicateDocument, doc.Key())
	}
	e := &entry{id: uuid.NewString(), doc: doc, createdAt: m.now().UTC()}
	m.byKey[k] = e
	m.order = append(m.order, e)
	return e.id, nil
}

func (m *Memory) InsertValidation(_ context.Context, result models.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations[result.AccessKey] = append(m.validations[result.AccessKey], result)
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) FindSummary(_ context.Context, key string) (*models.DocumentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range []models.DocumentType{models.NotaFiscal, models.ConhecimentoTransporte} {
		if e, ok := m.byKey[docKey{t, key}]; ok {
			s := e.doc.Summary()
			return &s, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *Memory) FindValidation(_ context.Context, key string) (*models.ValidationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.validations[key]
	if len(results) == 0 {
		return nil, models.ErrNotFound
	}
	latest := results[len(results)-1]
	return &latest, nil
}

func (m *Memory) ListValidations(_ context.Context, key string) ([]models.ValidationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ValidationResult(nil), m.validations[key]...), nil
}

func (m *Memory) ListDocuments(_ context.Context, filter model.ListFilter) ([]models.DocumentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DocumentSummary
	skipped := 0
	for i := len(m.order) - 1; i >= 0; i-- {
		e := m.order[i]
		if filter.Type != "" && e.doc.Type() != filter.Type {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		out = append(out, e.doc.Summary())
	}
	return out, nil
}

func (m *Memory) Stats(context.Context) (*models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	today := m.now().UTC().Truncate(24 * time.Hour)
	stats := &models.Stats{}
	for _, e := range m.order {
		stats.TotalDocuments++
		switch e.doc.Type() {
		case models.NotaFiscal:
			stats.NotasFiscais++
		case models.ConhecimentoTransporte:
			stats.Ctes++
		}
		if !e.createdAt.Before(today) {
			stats.ProcessedToday++
		}
	}
	return stats, nil
}

// Search matches term against the access key, issuer and recipient names.
func (m *Memory) Search(_ context.Context, term string, size int) ([]models.DocumentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	term = strings.ToLower(strings.TrimSpace(term))
	var out []models.DocumentSummary
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.order[i].doc.Summary()
		if term != "" &&
			!strings.Contains(s.AccessKey, term) &&
			!strings.Contains(strings.ToLower(s.Issuer), term) &&
			!strings.Contains(strings.ToLower(s.Recipient), term) {
			continue
		}
		out = append(out, s)
		if size > 0 && len(out) >= size {
			break
		}
	}
	return out, nil
}
