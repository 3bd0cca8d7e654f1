package storage

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage")

func SetupRepository(ctx context.Context, config RepositoryConfig) model.Store {
	selectedStorage, err := OpenRepository(ctx, config)
	if err != nil {
		log.Fatalf("unable to create %s storage: %v", config.Driver, err)
	}
	log.Infof("using %s storage", config.Driver)
	return selectedStorage
}

// SetupArchive returns nil when no archive is configured.
func SetupArchive(ctx context.Context, config ArchiveConfig) model.Archive {
	selectedStorage, err := OpenArchive(ctx, config)
	if err != nil {
		log.Fatalf("unable to create %s archive: %v", config.Kind, err)
	}
	return selectedStorage
}
