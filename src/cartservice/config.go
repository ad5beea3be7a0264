package main

import (
	"fmt"

	"github.com/norun9/boutique-checkout/src/cartservice/cartstore"
	"github.com/norun9/boutique-checkout/src/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type serviceConfig struct {
	Port           int
	GRPCHealthPort int
	LogLevel       string
	OTLPEndpoint   string

	Store cartstore.Options
}

func addFlags(cmd *cobra.Command) {
	config.AddFileFlag(cmd)
	f := cmd.Flags()
	f.Int("port", 8080, "HTTP listen port")
	f.Int("grpc-health-port", 0, "gRPC health listen port (0 disables)")
	f.String("cart-backend", "", "memory, redis or postgres (inferred from redis-addr/database-url when empty)")
	f.String("redis-addr", "", "Redis host:port or redis:// URL")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cart-ttl", 0, "expiry of idle Redis carts (0 keeps them)")
	f.String("database-url", "", "Postgres connection string")
	f.Int("cas-max-attempts", 0, "compare-and-swap attempts per AddItem (0 retries until success)")
	f.Duration("cas-initial-backoff", cartstore.DefaultRetryPolicy().InitialBackoff, "wait after the first lost compare-and-swap")
	f.Duration("cas-max-backoff", cartstore.DefaultRetryPolicy().MaxBackoff, "upper bound of the compare-and-swap backoff")
	f.String("log-level", "info", "log level")
	f.String("otel-exporter-otlp-endpoint", "", "OTLP gRPC endpoint, \"stdout\" to print spans (empty disables export)")
}

func loadConfig(v *viper.Viper) (serviceConfig, error) {
	cfg := serviceConfig{
		Port:           v.GetInt("port"),
		GRPCHealthPort: v.GetInt("grpc-health-port"),
		LogLevel:       v.GetString("log-level"),
		OTLPEndpoint:   v.GetString("otel-exporter-otlp-endpoint"),
		Store: cartstore.Options{
			Backend:       v.GetString("cart-backend"),
			RedisAddr:     v.GetString("redis-addr"),
			RedisPassword: v.GetString("redis-password"),
			RedisDB:       v.GetInt("redis-db"),
			CartTTL:       v.GetDuration("cart-ttl"),
			DatabaseURL:   v.GetString("database-url"),
			Retry: cartstore.RetryPolicy{
				MaxAttempts:    v.GetInt("cas-max-attempts"),
				InitialBackoff: v.GetDuration("cas-initial-backoff"),
				MaxBackoff:     v.GetDuration("cas-max-backoff"),
			},
		},
	}

	if cfg.Port <= 0 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Store.Retry.MaxAttempts < 0 {
		return cfg, fmt.Errorf("cas-max-attempts must not be negative")
	}
	if cfg.Store.CartTTL < 0 || cfg.Store.Retry.InitialBackoff < 0 || cfg.Store.Retry.MaxBackoff < 0 {
		return cfg, fmt.Errorf("durations must not be negative")
	}
	switch cfg.Store.InferBackend() {
	case cartstore.BackendMemory, cartstore.BackendRedis, cartstore.BackendPostgres:
	default:
		return cfg, fmt.Errorf("unknown cart backend %q", cfg.Store.Backend)
	}
	return cfg, nil
}
