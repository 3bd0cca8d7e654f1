package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backend "github.com/denysvitali/fiscal-ingest"
	"github.com/denysvitali/fiscal-ingest/pkg/ingestor"
	"github.com/denysvitali/fiscal-ingest/pkg/metrics"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/fs"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/memory"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/storetest"
)

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testdata(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("pkg", "parsers", "testdata", name))
	require.NoError(t, err)
	return b
}

type testServer struct {
	handler http.Handler
	store   model.Store
}

func newTestServer(t *testing.T, store model.Store) testServer {
	t.Helper()
	if store == nil {
		store = memory.New(memory.WithClock(storetest.Clock(storetest.Start)))
	}
	archive, err := fs.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.NewPrometheus()
	ing, err := ingestor.New(ingestor.Config{Repository: store, Archive: archive, Metrics: m})
	require.NoError(t, err)
	s, err := backend.New(backend.Config{
		Ingestor: ing,
		Store:    store,
		Archive:  archive,
		Metrics:  m.Handler(),
		Version:  "1.2.3",
	})
	require.NoError(t, err)
	return testServer{handler: s.Handler(), store: store}
}

func (ts testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestNew_Requires(t *testing.T) {
	_, err := backend.New(backend.Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, backend.ServiceName, body["service"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestUpload_RawBody(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "nfe.xml"), "application/xml")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[models.ProcessingResult](t, w)
	assert.Equal(t, storetest.NFeKey, res.AccessKey)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "NF-e processada com sucesso", res.Message)

	w = ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "nfe.xml"), "application/xml")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[models.ProcessingResult](t, w)
	assert.True(t, res.Duplicate)
}

func TestUpload_Multipart(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "cte.xml")
	require.NoError(t, err)
	_, err = part.Write(testdata(t, "cte.xml"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := ts.do(t, http.MethodPost, "/api/v1/documents/upload", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[models.ProcessingResult](t, w)
	assert.Equal(t, models.ConhecimentoTransporte, res.DocumentType)
	assert.Equal(t, "CT-e processado com sucesso", res.Message)
}

func TestUpload_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/documents/upload", []byte("<MDFe/>"), "application/xml")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported document type")

	w = ts.do(t, http.MethodPost, "/api/v1/documents/upload", []byte("<nfeProc><NFe>"), "application/xml")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/documents/upload", nil, "application/xml")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenStore struct {
	*memory.Memory
}

func (brokenStore) FindByAccessKey(context.Context, models.DocumentType, string) (string, bool, error) {
	return "", false, errors.New("connection reset")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("connection reset")
}

func TestUpload_StorageFailure(t *testing.T) {
	ts := newTestServer(t, brokenStore{memory.New()})

	w := ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "nfe.xml"), "application/xml")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	w = ts.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestValidate_StoresNothing(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/documents/validate", testdata(t, "nfe.xml"), "application/xml")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[models.ValidationResult](t, w)
	assert.Equal(t, storetest.NFeKey, v.AccessKey)
	assert.Equal(t, models.NotaFiscal, v.DocumentType)

	stats, err := ts.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalDocuments)

	w = ts.do(t, http.MethodPost, "/api/v1/documents/validate", []byte("<x/>"), "application/xml")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDocumentsQueries(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "nfe.xml"), "application/xml")
	ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "cte.xml"), "application/xml")

	w := ts.do(t, http.MethodGet, "/api/v1/documents/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.Stats](t, w)
	assert.Equal(t, int64(2), stats.TotalDocuments)
	assert.Equal(t, int64(1), stats.NotasFiscais)
	assert.Equal(t, int64(1), stats.Ctes)

	w = ts.do(t, http.MethodGet, "/api/v1/documents/"+storetest.NFeKey, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode[backend.DocumentResponse](t, w)
	require.NotNil(t, doc.Document)
	assert.Equal(t, "12345", doc.Document.Number)
	require.NotNil(t, doc.Validation)
	assert.Equal(t, storetest.NFeKey, doc.Validation.AccessKey)

	w = ts.do(t, http.MethodGet, "/api/v1/documents/"+storetest.OtherNFeKey, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	type listing struct {
		Documents []models.DocumentSummary `json:"documents"`
		Limit     int                      `json:"limit"`
		Offset    int                      `json:"offset"`
	}
	w = ts.do(t, http.MethodGet, "/api/v1/documents", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	l := decode[listing](t, w)
	assert.Equal(t, 50, l.Limit)
	require.Len(t, l.Documents, 2)
	assert.Equal(t, storetest.CTeKey, l.Documents[0].AccessKey)

	w = ts.do(t, http.MethodGet, "/api/v1/documents?doc_type=NFe&limit=9999&offset=-3", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	l = decode[listing](t, w)
	assert.Equal(t, 500, l.Limit)
	assert.Equal(t, 0, l.Offset)
	require.Len(t, l.Documents, 1)
	assert.Equal(t, storetest.NFeKey, l.Documents[0].AccessKey)

	w = ts.do(t, http.MethodGet, "/api/v1/documents?limit=0", nil, "")
	assert.Equal(t, 1, decode[listing](t, w).Limit)

	w = ts.do(t, http.MethodGet, "/api/v1/documents?doc_type=MDFe", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/documents?limit=ten", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "cte.xml"), "application/xml")

	w := ts.do(t, http.MethodPost, "/api/v1/search", []byte(`{"searchTerm":"`+storetest.CTeKey+`"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), storetest.CTeKey)

	w = ts.do(t, http.MethodPost, "/api/v1/search", []byte(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// storeOnly hides the Searcher implementation of the memory store.
type storeOnly struct {
	model.Store
}

func TestSearch_NotSupported(t *testing.T) {
	ts := newTestServer(t, storeOnly{memory.New()})
	w := ts.do(t, http.MethodPost, "/api/v1/search", []byte(`{"searchTerm":"x"}`), "application/json")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestFiles(t *testing.T) {
	ts := newTestServer(t, nil)
	payload := testdata(t, "nfe.xml")
	ts.do(t, http.MethodPost, "/api/v1/documents/upload", payload, "application/xml")

	w := ts.do(t, http.MethodGet, "/api/v1/files/NFe/"+storetest.NFeKey, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Equal(t, strings.TrimSpace(string(payload)), w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/v1/files/CTe/"+storetest.CTeKey, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/files/MDFe/"+storetest.CTeKey, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/v1/documents/upload", testdata(t, "nfe.xml"), "application/xml")

	w := ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fiscal_documents_processed_total")
}
