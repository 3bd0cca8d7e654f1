package main

import (
	"context"
	"encoding/json"
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

	Paths   []string `arg:"positional,required" help:"XML files or directories"`
	Workers int      `arg:"-w,--workers" default:"4"`
}

var log = logrus.StandardLogger()

type line struct {
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	cli.LoadEnv(".")
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	args.LogArgs.Apply()

	if args.Workers <= 0 {
		args.Workers = 4
		log.Warnf("workers cannot be <= 0, resetting value to %d", args.Workers)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	acc, err := args.EngineArgs.Accel()
	if err != nil {
		log.Fatalf("accelerator: %v", err)
	}
	store := args.StorageArgs.Repository(ctx)
	defer store.Close()

	cfg := ingestor.Config{Repository: store, Accelerator: acc}
	if archive := args.ArchiveArgs.OpenArchive(ctx); archive != nil {
		cfg.Archive = archive
	}
	ing, err := ingestor.New(cfg)
	if err != nil {
		log.Fatalf("create ingestor: %v", err)
	}

	src, err := ingestor.NewDirSource(args.Paths...)
	if err != nil {
		log.Fatalf("list input: %v", err)
	}
	outcomes, err := ing.IngestAll(ctx, src, args.Workers)
	if err != nil {
		log.Errorf("ingestion interrupted: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, o := range outcomes {
		l := line{Name: o.Name}
		if o.Err != nil {
			failed++
			l.Error = o.Err.Error()
		} else {
			l.Result = o.Result
		}
		if err := enc.Encode(l); err != nil {
			log.Fatalf("write output: %v", err)
		}
	}
	log.Infof("processed %d documents, %d failed", len(outcomes), failed)
	if failed > 0 || err != nil {
		os.Exit(1)
	}
}
