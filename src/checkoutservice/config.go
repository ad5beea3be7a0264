package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/norun9/boutique-checkout/src/checkoutservice/services"
	"github.com/norun9/boutique-checkout/src/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type serviceConfig struct {
	Port           int
	GRPCHealthPort int
	LogLevel       string
	OTLPEndpoint   string

	Endpoints      services.Endpoints
	RequestTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

func addFlags(cmd *cobra.Command) {
	config.AddFileFlag(cmd)
	f := cmd.Flags()
	f.Int("port", 5050, "HTTP listen port")
	f.Int("grpc-health-port", 0, "gRPC health listen port (0 disables)")
	f.String("cart-service-addr", "", "cart service address")
	f.String("product-catalog-service-addr", "", "product catalog service address")
	f.String("currency-service-addr", "", "currency service address")
	f.String("shipping-service-addr", "", "shipping service address")
	f.String("payment-service-addr", "", "payment service address")
	f.String("email-service-addr", "", "email service address")
	f.Duration("request-timeout", 5*time.Second, "timeout of each call to a collaborator")
	f.String("kafka-brokers", "", "comma separated Kafka brokers for order events (empty disables)")
	f.String("kafka-topic", "checkout.orders", "Kafka topic for order events")
	f.String("log-level", "info", "log level")
	f.String("otel-exporter-otlp-endpoint", "", "OTLP gRPC endpoint, \"stdout\" to print spans (empty disables export)")
}

func loadConfig(v *viper.Viper) (serviceConfig, error) {
	cfg := serviceConfig{
		Port:           v.GetInt("port"),
		GRPCHealthPort: v.GetInt("grpc-health-port"),
		LogLevel:       v.GetString("log-level"),
		OTLPEndpoint:   v.GetString("otel-exporter-otlp-endpoint"),
		Endpoints: services.Endpoints{
			Cart:           v.GetString("cart-service-addr"),
			ProductCatalog: v.GetString("product-catalog-service-addr"),
			Currency:       v.GetString("currency-service-addr"),
			Shipping:       v.GetString("shipping-service-addr"),
			Payment:        v.GetString("payment-service-addr"),
			Email:          v.GetString("email-service-addr"),
		},
		RequestTimeout: v.GetDuration("request-timeout"),
		KafkaBrokers:   config.SplitList(v.GetString("kafka-brokers")),
		KafkaTopic:     v.GetString("kafka-topic"),
	}

	var missing []string
	for _, req := range []struct{ env, val string }{
		{"CART_SERVICE_ADDR", cfg.Endpoints.Cart},
		{"PRODUCT_CATALOG_SERVICE_ADDR", cfg.Endpoints.ProductCatalog},
		{"CURRENCY_SERVICE_ADDR", cfg.Endpoints.Currency},
		{"SHIPPING_SERVICE_ADDR", cfg.Endpoints.Shipping},
		{"PAYMENT_SERVICE_ADDR", cfg.Endpoints.Payment},
		{"EMAIL_SERVICE_ADDR", cfg.Endpoints.Email},
	} {
		if strings.TrimSpace(req.val) == "" {
			missing = append(missing, req.env)
		}
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if cfg.Port <= 0 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("request-timeout must be positive")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return cfg, fmt.Errorf("kafka-topic is required when kafka-brokers is set")
	}
	return cfg, nil
}
