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
	"github.com/norun9/boutique-checkout/src/checkoutservice/services"
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
	serviceName = "checkoutservice"
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
		Short:        "Places orders by orchestrating cart, catalog, currency, shipping, payment and email",
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

	var events services.OrderEvents = services.NoopOrderEvents{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaEvents := services.NewKafkaOrderEvents(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaEvents.Close(); err != nil {
				log.WithError(err).Warn("error closing kafka writer")
			}
		}()
		events = kafkaEvents
		log.WithFields(logrus.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("publishing order events to Kafka")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := services.NewCheckoutService(services.NewHTTPCollaborators(cfg.Endpoints, cfg.RequestTimeout), events, log)
	router := newRouter(svc, reg, log)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("endpoints", fmt.Sprintf("%+v", cfg.Endpoints)).Infof("checkoutservice listening on %s", httpSrv.Addr)
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
		healthcheck.Register(grpcSrv, nil)
		go func() {
			log.Infof("checkoutservice gRPC health server listening on %s", lis.Addr())
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

func newRouter(svc *services.CheckoutService, reg *prometheus.Registry, log logrus.FieldLogger) *mux.Router {
	m := metrics.NewServerMetrics(reg, serviceName)

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName), m.Middleware)
	services.NewCheckoutHandler(svc, services.NewOrdersCounter(reg), log).RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	return r
}
