package main

// Replays the raw payloads kept in an archive through the ingestion pipeline,
// e.g. to fill a new repository or to apply updated parsing rules.

import (
	"context"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/cli"
	"github.com/denysvitali/fiscal-ingest/pkg/ingestor"
)

var args struct {
	cli.LogArgs
	cli.StorageArgs
	cli.ArchiveArgs
	cli.EngineArgs

	Workers int `arg:"-w,--workers" default:"4"`
}

var log = logrus.StandardLogger()

func main() {
	cli.LoadEnv(".")
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	args.LogArgs.Apply()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	archive := args.ArchiveArgs.OpenArchive(ctx)
	if archive == nil {
		log.Fatalf("--archive is required")
	}
	acc, err := args.EngineArgs.Accel()
	if err != nil {
		log.Fatalf("accelerator: %v", err)
	}
	store := args.StorageArgs.Repository(ctx)
	defer store.Close()

	ing, err := ingestor.New(ingestor.Config{Repository: store, Accelerator: acc})
	if err != nil {
		log.Fatalf("create ingestor: %v", err)
	}

	outcomes, err := ing.IngestAll(ctx, ingestor.NewArchiveSource(ctx, archive), args.Workers)
	if err != nil {
		log.Fatalf("reindex: %v", err)
	}
	inserted, duplicates, failed := 0, 0, 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.Result.Duplicate:
			duplicates++
		default:
			inserted++
		}
	}
	log.Infof("reindexed %d documents: %d inserted, %d already present, %d failed",
		len(outcomes), inserted, duplicates, failed)
}
