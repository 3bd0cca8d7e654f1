package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/sqlite"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/storetest"
)

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	os.Exit(m.Run())
}

func newTestSQLite(t *testing.T) *sqlite.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := sqlite.New(dbPath, sqlite.WithClock(storetest.Clock(storetest.Start)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) model.Store {
		return newTestSQLite(t)
	})
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_TablePerType(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, storetest.NotaFiscal(storetest.NFeKey))
	require.NoError(t, err)

	// Same key under the other document type lives in its own table.
	_, err = s.Insert(ctx, storetest.Conhecimento(storetest.NFeKey))
	require.NoError(t, err)

	_, found, err := s.FindByAccessKey(ctx, models.ConhecimentoTransporte, storetest.NFeKey)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSQLite_UnsupportedType(t *testing.T) {
	s := newTestSQLite(t)
	_, _, err := s.FindByAccessKey(context.Background(), models.DocumentType("MDFe"), storetest.NFeKey)
	assert.ErrorIs(t, err, models.ErrUnsupportedDocumentType)
}
