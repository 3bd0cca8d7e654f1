// Package server exposes the gRPC health service of the ingestion engine and
// an HTTP gateway serving it as /healthz.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "fiscal.Ingestor"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	pinger     Pinger
	interval   time.Duration
	health     *health.Server
	grpcServer *grpc.Server
}

var (
	log = logrus.StandardLogger().WithField("package", "server")
)

type Option func(*Server)

// WithInterval sets how often the repository is pinged while listening.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		s.interval = d
	}
}

func New(pinger Pinger, opts ...Option) *Server {
	s := &Server{
		pinger:     pinger,
		interval:   15 * time.Second,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
	}
	for _, o := range opts {
		o(s)
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// Refresh pings the repository and publishes the result.
func (s *Server) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		log.Warnf("repository ping failed: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Gateway returns an HTTP handler answering /healthz through the gRPC server at target.
// The returned connection must be closed by the caller.
func Gateway(target string) (*runtime.ServeMux, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %v", target, err)
	}
	mux := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthpb.NewHealthClient(conn)))
	return mux, conn, nil
}

// Listen serves gRPC on grpcListenAddr and the gateway on httpListenAddr until ctx is done.
func (s *Server) Listen(ctx context.Context, grpcListenAddr string, httpListenAddr string) error {
	listener, err := net.Listen("tcp", grpcListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %v", err)
	}

	mux, conn, err := Gateway(listener.Addr().String())
	if err != nil {
		listener.Close()
		return err
	}
	defer conn.Close()
	httpServer := &http.Server{
		Addr:              httpListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Refresh(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("gRPC health listening on %s", listener.Addr())
		return s.Serve(listener)
	})
	g.Go(func() error {
		log.Infof("gateway listening on %s", httpListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
