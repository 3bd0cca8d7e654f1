package storage_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/b2"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/fs"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/memory"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/storetest"
)

func TestOpenRepository_Memory(t *testing.T) {
	s, err := storage.OpenRepository(context.Background(), storage.RepositoryConfig{Driver: storage.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Memory{}, s)
}

func TestOpenRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	s, err := storage.OpenRepository(ctx, storage.RepositoryConfig{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "fiscal.db"),
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert(ctx, storetest.NotaFiscal(storetest.NFeKey))
	require.NoError(t, err)
	_, found, err := s.FindByAccessKey(ctx, models.NotaFiscal, storetest.NFeKey)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpenRepository_UnknownDriver(t *testing.T) {
	_, err := storage.OpenRepository(context.Background(), storage.RepositoryConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestOpenArchive(t *testing.T) {
	ctx := context.Background()

	a, err := storage.OpenArchive(ctx, storage.ArchiveConfig{Kind: storage.ArchiveNone})
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = storage.OpenArchive(ctx, storage.ArchiveConfig{Kind: storage.ArchiveFs, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &fs.Fs{}, a)

	dir := t.TempDir()
	a, err = storage.OpenArchive(ctx, storage.ArchiveConfig{Kind: storage.ArchiveFs, Path: dir, Passphrase: "secret"})
	require.NoError(t, err)
	err = a.Store(ctx, models.RawDocument{
		Reader:       strings.NewReader("<nfeProc/>"),
		DocumentType: models.NotaFiscal,
		AccessKey:    storetest.NFeKey,
	})
	require.NoError(t, err)
	raw, err := a.Retrieve(ctx, models.NotaFiscal, storetest.NFeKey)
	require.NoError(t, err)
	assert.Equal(t, storetest.NFeKey, raw.AccessKey)

	_, err = storage.OpenArchive(ctx, storage.ArchiveConfig{Kind: storage.ArchiveB2, B2: b2.Config{}})
	assert.Error(t, err)

	_, err = storage.OpenArchive(ctx, storage.ArchiveConfig{Kind: "s3"})
	assert.Error(t, err)
}
