package storage

import (
	"context"
	"fmt"

	"github.com/denysvitali/fiscal-ingest/pkg/crypt"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/b2"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/fs"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/memory"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/opensearch"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/postgres"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/rclone"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/sqlite"
)

const (
	DriverMemory     = "memory"
	DriverSQLite     = "sqlite"
	DriverPostgres   = "postgres"
	DriverOpenSearch = "opensearch"
)

type OpenSearchConfig struct {
	Addr        string
	Username    string
	Password    string
	SkipTLS     bool
	CAPath      string
	IndexPrefix string
}

type RepositoryConfig struct {
	Driver string
	// DSN is the database file for sqlite and the connection string for postgres.
	DSN        string
	MaxConns   int32
	OpenSearch OpenSearchConfig
}

// OpenRepository connects to the configured store and prepares its schema.
func OpenRepository(ctx context.Context, config RepositoryConfig) (model.Store, error) {
	switch config.Driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		s, err := sqlite.New(config.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		p, err := postgres.New(ctx, config.DSN, &postgres.PoolConfig{MaxConns: config.MaxConns})
		if err != nil {
			return nil, err
		}
		if err := p.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	case DriverOpenSearch:
		return openOpenSearch(ctx, config.OpenSearch)
	}
	return nil, fmt.Errorf("unknown storage driver %q", config.Driver)
}

func openOpenSearch(ctx context.Context, config OpenSearchConfig) (model.Store, error) {
	opts := []opensearch.Option{
		opensearch.WithUsername(config.Username),
		opensearch.WithPassword(config.Password),
	}
	if config.SkipTLS {
		opts = append(opts, opensearch.WithSkipTLS())
	}
	if config.CAPath != "" {
		opts = append(opts, opensearch.WithCAPath(config.CAPath))
	}
	if config.IndexPrefix != "" {
		opts = append(opts, opensearch.WithIndexPrefix(config.IndexPrefix))
	}
	s, err := opensearch.New(config.Addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	ArchiveNone = "none"
	ArchiveFs   = "fs"
	ArchiveB2   = "b2"
)

type ArchiveConfig struct {
	Kind string
	Path string
	// Passphrase encrypts payloads at rest. Empty keeps them in clear.
	Passphrase string
	B2         b2.Config
}

// OpenArchive returns nil when no archive is configured.
func OpenArchive(ctx context.Context, config ArchiveConfig) (model.Archive, error) {
	switch config.Kind {
	case "", ArchiveNone:
		return nil, nil
	case ArchiveFs:
		if config.Passphrase == "" {
			a, err := fs.New(config.Path)
			if err != nil {
				return nil, err
			}
			return a, nil
		}
		c, err := crypt.New(config.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("unable to create cipher: %w", err)
		}
		a, err := rclone.NewLocal(ctx, config.Path, rclone.WithCipher(c))
		if err != nil {
			return nil, err
		}
		return a, nil
	case ArchiveB2:
		b2Config := config.B2
		b2Config.Passphrase = config.Passphrase
		a, err := b2.New(ctx, b2Config)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown archive %q", config.Kind)
}
