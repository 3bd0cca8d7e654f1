package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	backend "github.com/denysvitali/fiscal-ingest"
	"github.com/denysvitali/fiscal-ingest/pkg/cli"
	"github.com/denysvitali/fiscal-ingest/pkg/ingestor"
	"github.com/denysvitali/fiscal-ingest/pkg/metrics"
	"github.com/denysvitali/fiscal-ingest/pkg/server"
	"github.com/denysvitali/fiscal-ingest/pkg/validator"
)

var version = "dev"

var args struct {
	cli.LogArgs
	cli.StorageArgs
	cli.ArchiveArgs
	cli.EngineArgs

	ListenAddr        string `arg:"-L,--listen-addr,env:LISTEN_ADDR" default:"127.0.0.1:8085"`
	GrpcListenAddr    string `arg:"--grpc-listen-addr,env:GRPC_LISTEN_ADDR" help:"gRPC health service address; empty disables it"`
	GatewayListenAddr string `arg:"--gateway-listen-addr,env:GATEWAY_LISTEN_ADDR" default:"127.0.0.1:8086"`
}

var log = logrus.StandardLogger()

func main() {
	cli.LoadEnv(".")
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	args.LogArgs.Apply()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acc, err := args.EngineArgs.Accel()
	if err != nil {
		log.Fatalf("accelerator: %v", err)
	}
	store := args.StorageArgs.Repository(ctx)
	defer store.Close()
	archive := args.ArchiveArgs.OpenArchive(ctx)
	m := metrics.NewPrometheus()
	v := validator.New()

	cfg := ingestor.Config{
		Repository:  store,
		Metrics:     m,
		Accelerator: acc,
		Validator:   v,
	}
	bcfg := backend.Config{
		Store:       store,
		Validator:   v,
		Accelerator: acc,
		Metrics:     m.Handler(),
		Version:     version,
	}
	if archive != nil {
		cfg.Archive = archive
		bcfg.Archive = archive
	}
	ing, err := ingestor.New(cfg)
	if err != nil {
		log.Fatalf("create ingestor: %v", err)
	}
	bcfg.Ingestor = ing
	s, err := backend.New(bcfg)
	if err != nil {
		log.Fatalf("create backend: %v", err)
	}

	httpServer := &http.Server{
		Addr:              args.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("listening on %s", args.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if args.GrpcListenAddr != "" {
		g.Go(func() error {
			return server.New(ing).Listen(ctx, args.GrpcListenAddr, args.GatewayListenAddr)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
