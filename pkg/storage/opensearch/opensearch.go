// Package opensearch is a Store backed by two OpenSearch indices: one holding
// documents keyed by access key, one holding validation results.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	osgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/caroundtripper"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/opensearch")

const DefaultIndexPrefix = "fiscal"

// maxResults bounds listings that were asked for without a limit.
const maxResults = 10000

type Store struct {
	addr               string
	username           string
	password           string
	insecureSkipVerify bool
	caPath             string
	transport          http.RoundTripper
	indexPrefix        string
	now                func() time.Time

	client *osgo.Client
}

var (
	_ model.Store    = (*Store)(nil)
	_ model.Searcher = (*Store)(nil)
)

type Option func(*Store)

func WithUsername(username string) Option {
	return func(s *Store) {
		s.username = username
	}
}

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithSkipTLS() Option {
	return func(s *Store) {
		s.insecureSkipVerify = true
	}
}

// WithCAPath trusts only the PEM CA certificate at path.
func WithCAPath(path string) Option {
	return func(s *Store) {
		s.caPath = path
	}
}

func WithTransport(t http.RoundTripper) Option {
	return func(s *Store) {
		s.transport = t
	}
}

// WithIndexPrefix names the indices <prefix>-documents and <prefix>-validations.
func WithIndexPrefix(prefix string) Option {
	return func(s *Store) {
		s.indexPrefix = prefix
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	s := &Store{
		addr:        addr,
		indexPrefix: DefaultIndexPrefix,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	transport := s.transport
	switch {
	case transport != nil:
	case s.caPath != "":
		rt, err := caroundtripper.New(s.caPath)
		if err != nil {
			return nil, fmt.Errorf("opensearch CA: %w", err)
		}
		transport = rt
	case s.insecureSkipVerify:
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	var err error
	s.client, err = osgo.NewClient(osgo.Config{
		Addresses: []string{s.addr},
		Username:  s.username,
		Password:  s.password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	return s, nil
}

func (s *Store) DocumentsIndex() string {
	return s.indexPrefix + "-documents"
}

func (s *Store) ValidationsIndex() string {
	return s.indexPrefix + "-validations"
}

var documentsMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":           map[string]any{"type": "keyword"},
			"documentType": map[string]any{"type": "keyword"},
			"accessKey":    map[string]any{"type": "keyword"},
			"number":       map[string]any{"type": "keyword"},
			"series":       map[string]any{"type": "keyword"},
			"issuedAt":     map[string]any{"type": "date"},
			"issuer":       map[string]any{"type": "text"},
			"recipient":    map[string]any{"type": "text"},
			"totalValue":   map[string]any{"type": "double"},
			"createdAt":    map[string]any{"type": "date"},
			"payload":      map[string]any{"type": "object", "enabled": false},
		},
	},
}

var validationsMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"accessKey":    map[string]any{"type": "keyword"},
			"documentType": map[string]any{"type": "keyword"},
			"isValid":      map[string]any{"type": "boolean"},
			"validatedAt":  map[string]any{"type": "date"},
			"storedAt":     map[string]any{"type": "date"},
			"errors":       map[string]any{"type": "object", "enabled": false},
			"warnings":     map[string]any{"type": "object", "enabled": false},
			"suggestions":  map[string]any{"type": "object", "enabled": false},
		},
	},
}

// Init creates both indices. Existing indices are left untouched.
func (s *Store) Init(ctx context.Context) error {
	if err := s.createIndex(ctx, s.DocumentsIndex(), documentsMapping); err != nil {
		return err
	}
	return s.createIndex(ctx, s.ValidationsIndex(), validationsMapping)
}

func (s *Store) createIndex(ctx context.Context, index string, mapping map[string]any) error {
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	req := opensearchapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusBadRequest {
		// Index already exists
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("create index %s: unexpected status %s", index, res.Status())
	}
	log.Debugf("created index %s", index)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	req := opensearchapi.PingRequest{}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: unable to ping OpenSearch: %s", models.ErrDatabase, res.Status())
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

type indexedDocument struct {
	ID string `json:"id"`
	models.DocumentSummary
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

type storedValidation struct {
	models.ValidationResult
	StoredAt time.Time `json:"storedAt"`
}

type hit[T any] struct {
	Index  string `json:"_index"`
	Id     string `json:"_id"`
	Found  bool   `json:"found"`
	Source T      `json:"_source"`
}

type searchResponse[T any] struct {
	Hits struct {
		Hits []hit[T] `json:"hits"`
	} `json:"hits"`
}

func decodeError(body io.Reader) string {
	var errorMessage struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&errorMessage); err != nil {
		return ""
	}
	if errorMessage.Error.Reason != "" {
		return errorMessage.Error.Reason
	}
	return errorMessage.Error.Type
}

func (s *Store) getDocument(ctx context.Context, key string) (*indexedDocument, error) {
	req := opensearchapi.GetRequest{Index: s.DocumentsIndex(), DocumentID: key}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: get %s: %s %s", models.ErrDatabase, key, res.Status(), decodeError(res.Body))
	}

	var doc hit[indexedDocument]
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", models.ErrDatabase, key, err)
	}
	if !doc.Found {
		return nil, models.ErrNotFound
	}
	return &doc.Source, nil
}

func (s *Store) FindByAccessKey(ctx context.Context, docType models.DocumentType, key string) (string, bool, error) {
	doc, err := s.getDocument(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if doc.DocumentType != docType {
		return "", false, nil
	}
	return doc.ID, true, nil
}

func (s *Store) Insert(ctx context.Context, doc models.Document) (string, error) {
	if !doc.Type().IsValid() {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedDocumentType, doc.Type())
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("unable to encode document: %w", err)
	}
	id := uuid.NewString()
	body, err := json.Marshal(indexedDocument{
		ID:              id,
		DocumentSummary: doc.Summary(),
		CreatedAt:       s.now().UTC(),
		Payload:         payload,
	})
	if err != nil {
		return "", fmt.Errorf("unable to encode document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      s.DocumentsIndex(),
		DocumentID: doc.Key(),
		Body:       bytes.NewReader(body),
		OpType:     "create",
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusConflict {
		return "", fmt.Errorf("%w: %s", models.ErrDuplicateDocument, doc.Key())
	}
	if res.IsError() {
		return "", fmt.Errorf("%w: opensearch returned an invalid status %s: %s",
			models.ErrDatabase, res.Status(), decodeError(res.Body))
	}
	log.Debugf("indexed %s %s", doc.Type(), doc.Key())
	return id, nil
}

func (s *Store) InsertValidation(ctx context.Context, result models.ValidationResult) error {
	body, err := json.Marshal(storedValidation{ValidationResult: result, StoredAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("unable to encode validation: %w", err)
	}
	req := opensearchapi.IndexRequest{
		Index:   s.ValidationsIndex(),
		Body:    bytes.NewReader(body),
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: opensearch returned an invalid status %s: %s",
			models.ErrDatabase, res.Status(), decodeError(res.Body))
	}
	return nil
}

func (s *Store) FindSummary(ctx context.Context, key string) (*models.DocumentSummary, error) {
	doc, err := s.getDocument(ctx, key)
	if err != nil {
		return nil, err
	}
	return &doc.DocumentSummary, nil
}

func search[T any](ctx context.Context, s *Store, index string, query map[string]any) ([]T, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: search %s: %s %s", models.ErrDatabase, index, res.Status(), decodeError(res.Body))
	}

	var sr searchResponse[T]
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %w", models.ErrDatabase, err)
	}
	out := make([]T, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func validationsQuery(key string, order string, size int) map[string]any {
	return map[string]any{
		"size":  size,
		"query": map[string]any{"term": map[string]any{"accessKey": key}},
		"sort":  []any{map[string]any{"storedAt": map[string]any{"order": order}}},
	}
}

func (s *Store) FindValidation(ctx context.Context, key string) (*models.ValidationResult, error) {
	found, err := search[storedValidation](ctx, s, s.ValidationsIndex(), validationsQuery(key, "desc", 1))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, models.ErrNotFound
	}
	return &found[0].ValidationResult, nil
}

func (s *Store) ListValidations(ctx context.Context, key string) ([]models.ValidationResult, error) {
	found, err := search[storedValidation](ctx, s, s.ValidationsIndex(), validationsQuery(key, "asc", maxResults))
	if err != nil {
		return nil, err
	}
	out := make([]models.ValidationResult, 0, len(found))
	for _, v := range found {
		out = append(out, v.ValidationResult)
	}
	return out, nil
}

func summaries(docs []indexedDocument) []models.DocumentSummary {
	out := make([]models.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.DocumentSummary)
	}
	return out
}

func (s *Store) ListDocuments(ctx context.Context, filter model.ListFilter) ([]models.DocumentSummary, error) {
	size := filter.Limit
	if size <= 0 {
		size = maxResults
	}
	query := map[string]any{"match_all": map[string]any{}}
	if filter.Type != "" {
		query = map[string]any{"term": map[string]any{"documentType": string(filter.Type)}}
	}
	docs, err := search[indexedDocument](ctx, s, s.DocumentsIndex(), map[string]any{
		"from":  filter.Offset,
		"size":  size,
		"query": query,
		"sort": []any{
			map[string]any{"createdAt": map[string]any{"order": "desc"}},
			map[string]any{"accessKey": map[string]any{"order": "asc"}},
		},
	})
	if err != nil {
		return nil, err
	}
	return summaries(docs), nil
}

// Search runs a query_string query against the access key, issuer and recipient.
func (s *Store) Search(ctx context.Context, term string, size int) ([]models.DocumentSummary, error) {
	if size <= 0 {
		size = 50
	}
	docs, err := search[indexedDocument](ctx, s, s.DocumentsIndex(), map[string]any{
		"size": size,
		"query": map[string]any{
			"query_string": map[string]any{
				"query":  term,
				"fields": []string{"accessKey", "issuer", "recipient", "number"},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return summaries(docs), nil
}

func (s *Store) count(ctx context.Context, query map[string]any) (int64, error) {
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, err
	}
	req := opensearchapi.CountRequest{
		Index: []string{s.DocumentsIndex()},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrDatabase, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: count: %s %s", models.ErrDatabase, res.Status(), decodeError(res.Body))
	}
	var cr struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("%w: decode count: %w", models.ErrDatabase, err)
	}
	return cr.Count, nil
}

func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	var (
		stats models.Stats
		err   error
	)
	stats.NotasFiscais, err = s.count(ctx, map[string]any{"term": map[string]any{"documentType": string(models.NotaFiscal)}})
	if err != nil {
		return nil, err
	}
	stats.Ctes, err = s.count(ctx, map[string]any{"term": map[string]any{"documentType": string(models.ConhecimentoTransporte)}})
	if err != nil {
		return nil, err
	}
	stats.ProcessedToday, err = s.count(ctx, map[string]any{"range": map[string]any{"createdAt": map[string]any{"gte": today.Format(time.RFC3339)}}})
	if err != nil {
		return nil, err
	}
	stats.TotalDocuments = stats.NotasFiscais + stats.Ctes
	return &stats, nil
}
