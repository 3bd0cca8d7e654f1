package cli

import (
	"context"

	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/logutils"
	"github.com/denysvitali/fiscal-ingest/pkg/storage"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/b2"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

type LogArgs struct {
	LogLevel  string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	LogFormat string `arg:"--log-format,env:LOG_FORMAT" default:"text" help:"text or json"`
}

func (a LogArgs) Apply() {
	logutils.SetLoggerLevel(a.LogLevel)
	logutils.SetFormatter(a.LogFormat)
}

type OpenSearchArgs struct {
	OpenSearchAddr        string `arg:"--opensearch-addr,env:OPENSEARCH_ADDR" default:"https://127.0.0.1:9200"`
	OpenSearchUsername    string `arg:"--opensearch-username,env:OPENSEARCH_USERNAME" default:"admin"`
	OpenSearchPassword    string `arg:"--opensearch-password,env:OPENSEARCH_PASSWORD"`
	OpenSearchSkipTLS     bool   `arg:"--opensearch-skip-tls,env:OPENSEARCH_SKIP_TLS"`
	OpenSearchCAPath      string `arg:"--opensearch-ca-path,env:OPENSEARCH_CA_PATH"`
	OpenSearchIndexPrefix string `arg:"--opensearch-index-prefix,env:OPENSEARCH_INDEX_PREFIX" default:"fiscal"`
}

type StorageArgs struct {
	Storage          string `arg:"--storage,env:FISCAL_STORAGE" default:"sqlite" help:"memory, sqlite, postgres or opensearch"`
	SQLitePath       string `arg:"--sqlite-path,env:SQLITE_PATH" default:"fiscal.db"`
	DatabaseURL      string `arg:"--database-url,env:DATABASE_URL"`
	DatabaseMaxConns int32  `arg:"--database-max-conns,env:DATABASE_MAX_CONNS" default:"10"`
	OpenSearchArgs
}

func (a StorageArgs) RepositoryConfig() storage.RepositoryConfig {
	c := storage.RepositoryConfig{
		Driver:   a.Storage,
		MaxConns: a.DatabaseMaxConns,
		OpenSearch: storage.OpenSearchConfig{
			Addr:        a.OpenSearchAddr,
			Username:    a.OpenSearchUsername,
			Password:    a.OpenSearchPassword,
			SkipTLS:     a.OpenSearchSkipTLS,
			CAPath:      a.OpenSearchCAPath,
			IndexPrefix: a.OpenSearchIndexPrefix,
		},
	}
	switch a.Storage {
	case storage.DriverSQLite:
		c.DSN = a.SQLitePath
	case storage.DriverPostgres:
		c.DSN = a.DatabaseURL
	}
	return c
}

// Repository opens the configured store and exits on failure.
func (a StorageArgs) Repository(ctx context.Context) model.Store {
	return storage.SetupRepository(ctx, a.RepositoryConfig())
}

type ArchiveArgs struct {
	Archive           string `arg:"--archive,env:FISCAL_ARCHIVE" default:"none" help:"none, fs or b2"`
	ArchivePath       string `arg:"--archive-path,env:FISCAL_ARCHIVE_PATH" default:"archive"`
	ArchivePassphrase string `arg:"--archive-passphrase,env:FISCAL_ARCHIVE_PASSPHRASE"`
	B2Account         string `arg:"--b2-account,env:B2_ACCOUNT"`
	B2Key             string `arg:"--b2-key,env:B2_KEY"`
	B2BucketName      string `arg:"--b2-bucket-name,env:B2_BUCKET_NAME"`
}

func (a ArchiveArgs) ArchiveConfig() storage.ArchiveConfig {
	return storage.ArchiveConfig{
		Kind:       a.Archive,
		Path:       a.ArchivePath,
		Passphrase: a.ArchivePassphrase,
		B2: b2.Config{
			Account:    a.B2Account,
			Key:        a.B2Key,
			BucketName: a.B2BucketName,
		},
	}
}

// OpenArchive returns nil when --archive is none, and exits on failure.
func (a ArchiveArgs) OpenArchive(ctx context.Context) model.Archive {
	return storage.SetupArchive(ctx, a.ArchiveConfig())
}

type EngineArgs struct {
	Accelerator string `arg:"--accelerator,env:FISCAL_ACCELERATOR" help:"portable or fast; empty selects the build default"`
}

func (a EngineArgs) Accel() (accel.Accelerator, error) {
	if a.Accelerator == "" {
		return accel.Default(), nil
	}
	return accel.ByName(a.Accelerator)
}
