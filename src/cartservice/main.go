package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/norun9/boutique-checkout/src/cartservice/cartstore"
	"github.com/norun9/boutique-checkout/src/cartservice/services"
	"github.com/norun9/boutique-checkout/src/internal/config"
	"github.com/norun9/boutique-checkout/src/internal/healthcheck"
	"github.com/norun9/boutique-checkout/src/internal/metrics"
	"github.com/norun9/boutique-checkout/src/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

const (
	serviceName = "cartservice"
	version     = "v1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Cart API backed by memory, Redis or Postgres",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.Bind(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	addFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg serviceConfig) error {
	log, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, version, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("error shutting down tracer provider")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_cas_conflicts_total",
		Help: "Compare-and-swap attempts that lost a race and were retried or abandoned.",
	}, []string{"backend"})
	reg.MustRegister(conflicts)

	opts := cfg.Store
	opts.Logger = log
	opts.OnConflict = func(backend string, _ int) { conflicts.WithLabelValues(backend).Inc() }

	store, err := cartstore.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create cart store: %w", err)
	}
	defer closeStore(store, log)
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize %s cart store: %w", opts.InferBackend(), err)
	}
	log.WithField("backend", opts.InferBackend()).Info("cart store ready")

	router := newRouter(store, reg, log)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("cartservice HTTP server listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCHealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCHealthPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC health port: %w", err)
		}
		grpcSrv = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		healthcheck.Register(grpcSrv, store.Ping)
		go func() {
			log.Infof("cartservice gRPC health server listening on %s", lis.Addr())
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, initiating graceful shutdown...")
	case err := <-errCh:
		log.WithError(err).Error("server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return httpSrv.Shutdown(shutdownCtx)
}

func newRouter(store cartstore.ICartStore, reg *prometheus.Registry, log logrus.FieldLogger) *mux.Router {
	m := metrics.NewServerMetrics(reg, serviceName)

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName), m.Middleware)
	services.NewCartServiceServer(store, log).RegisterRoutes(r)
	r.Handle("/healthz", services.NewHealthCheckService(store)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	return r
}

func closeStore(store cartstore.ICartStore, log logrus.FieldLogger) {
	switch s := store.(type) {
	case interface{ Close() error }:
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("error closing cart store")
		}
	case interface{ Close() }:
		s.Close()
	}
}
