package ingestor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	os.Exit(m.Run())
}

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "parsers", "testdata", name))
	require.NoError(t, err)
	return b
}

type fixture struct {
	ing     *ingestor.Ingestor
	store   *memory.Memory
	metrics *metrics.Prometheus
	archive *fs.Fs
}

func newFixture(t *testing.T, repo model.Repository) fixture {
	t.Helper()
	store := memory.New(memory.WithClock(storetest.Clock(storetest.Start)))
	if repo == nil {
		repo = store
	}
	archive, err := fs.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.NewPrometheus()
	ing, err := ingestor.New(ingestor.Config{
		Repository: repo,
		Archive:    archive,
		Metrics:    m,
	})
	require.NoError(t, err)
	return fixture{ing: ing, store: store, metrics: m, archive: archive}
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := ingestor.New(ingestor.Config{})
	assert.Error(t, err)
}

func TestProcess_NFeTwice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	payload := readTestdata(t, "nfe.xml")

	first, err := f.ing.Process(ctx, payload)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.Duplicate)
	assert.Equal(t, models.NotaFiscal, first.DocumentType)
	assert.Equal(t, storetest.NFeKey, first.AccessKey)
	assert.Equal(t, "NF-e processada com sucesso", first.Message)
	require.NotNil(t, first.Validation)
	assert.Equal(t, storetest.NFeKey, first.Validation.AccessKey)

	second, err := f.ing.Process(ctx, payload)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "NF-e já existente", second.Message)

	docs, err := f.store.ListDocuments(ctx, model.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	validations, err := f.store.ListValidations(ctx, storetest.NFeKey)
	require.NoError(t, err)
	assert.Len(t, validations, 2)

	assert.Equal(t, 1.0, f.metrics.Processed(models.NotaFiscal))
	assert.Equal(t, 1.0, f.metrics.Duplicates(models.NotaFiscal))
	assert.Equal(t, 2.0, f.metrics.Validations())

	archived, err := f.archive.List(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, storetest.NFeKey, archived[0].AccessKey)
}

func TestProcess_CTe(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.ing.Process(ctx, readTestdata(t, "cte.xml"))
	require.NoError(t, err)
	assert.Equal(t, models.ConhecimentoTransporte, res.DocumentType)
	assert.Equal(t, storetest.CTeKey, res.AccessKey)
	assert.Equal(t, "CT-e processado com sucesso", res.Message)

	res, err = f.ing.Process(ctx, readTestdata(t, "cte.xml"))
	require.NoError(t, err)
	assert.Equal(t, "CT-e já existente", res.Message)

	summary, err := f.store.FindSummary(ctx, storetest.CTeKey)
	require.NoError(t, err)
	assert.Equal(t, models.ConhecimentoTransporte, summary.DocumentType)
	assert.Equal(t, 1.0, f.metrics.Processed(models.ConhecimentoTransporte))
	assert.Equal(t, 0.0, f.metrics.Processed(models.NotaFiscal))
}

func TestProcess_DocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{"unsupported", `<MDFe><infMDFe/></MDFe>`, models.ErrUnsupportedDocumentType},
		{"malformed", `<nfeProc><NFe><infNFe>`, models.ErrXmlParse},
		{"no key", `<nfeProc><NFe><infNFe><ide><nNF>1</nNF></ide></infNFe></NFe></nfeProc>`, models.ErrInvalidAccessKey},
		{"bad encoding", "<?xml version=\"1.0\" encoding=\"UTF-8\"?><nfeProc>\xff</nfeProc>", models.ErrEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			res, err := f.ing.Process(ctx, []byte(tt.payload))
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, models.IsDocumentError(err))

			stats, err := f.store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), stats.TotalDocuments)
			assert.Equal(t, 0.0, f.metrics.Validations())
		})
	}
}

// flakyRepo fails the operations named by its fields and delegates the rest.
type flakyRepo struct {
	*memory.Memory
	findErr       error
	validationErr error
	// raceInsert reports every document as missing so Insert has to detect duplicates.
	raceInsert bool
}

func (r *flakyRepo) FindByAccessKey(ctx context.Context, docType models.DocumentType, key string) (string, bool, error) {
	if r.findErr != nil {
		return "", false, r.findErr
	}
	if r.raceInsert {
		return "", false, nil
	}
	return r.Memory.FindByAccessKey(ctx, docType, key)
}

func (r *flakyRepo) InsertValidation(ctx context.Context, v models.ValidationResult) error {
	if r.validationErr != nil {
		return r.validationErr
	}
	return r.Memory.InsertValidation(ctx, v)
}

func TestProcess_DatabaseError(t *testing.T) {
	repo := &flakyRepo{Memory: memory.New(), findErr: errors.New("connection refused")}
	f := newFixture(t, repo)

	_, err := f.ing.Process(context.Background(), readTestdata(t, "nfe.xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDatabase)
	assert.False(t, models.IsDocumentError(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProcess_DuplicateDetectedOnInsert(t *testing.T) {
	repo := &flakyRepo{Memory: memory.New(), raceInsert: true}
	f := newFixture(t, repo)
	ctx := context.Background()

	res, err := f.ing.Process(ctx, readTestdata(t, "nfe.xml"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	res, err = f.ing.Process(ctx, readTestdata(t, "nfe.xml"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1.0, f.metrics.Duplicates(models.NotaFiscal))
}

func TestProcess_ValidationNotSaved(t *testing.T) {
	repo := &flakyRepo{Memory: memory.New(), validationErr: errors.New("disk full")}
	f := newFixture(t, repo)

	res, err := f.ing.Process(context.Background(), readTestdata(t, "nfe.xml"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1.0, f.metrics.Processed(models.NotaFiscal))
	assert.Equal(t, 0.0, f.metrics.Validations())
}

func TestProcess_ConcurrentSameDocument(t *testing.T) {
	f := newFixture(t, nil)
	payload := readTestdata(t, "nfe.xml")

	const n = 8
	var wg sync.WaitGroup
	results := make([]*models.ProcessingResult, n)
	errs := make([]error, n)
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			results[k], errs[k] = f.ing.Process(context.Background(), payload)
		}(k)
	}
	wg.Wait()

	inserted := 0
	for k := 0; k < n; k++ {
		require.NoError(t, errs[k])
		if !results[k].Duplicate {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDocuments)
}

func TestProcessFile(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.ing.ProcessFile(context.Background(), filepath.Join("..", "parsers", "testdata", "cte.xml"))
	require.NoError(t, err)
	assert.Equal(t, storetest.CTeKey, res.AccessKey)

	_, err = f.ing.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	assert.ErrorIs(t, err, models.ErrXmlRead)
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)
	assert.NoError(t, f.ing.Ping(context.Background()))
}
