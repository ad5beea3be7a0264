package cartstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
)

// ICartStore is an interface for cart storage operations.
type ICartStore interface {
	Initialize(ctx context.Context) error

	AddItem(ctx context.Context, userID, productID string, quantity int32) error
	EmptyCart(ctx context.Context, userID string) error
	GetCart(ctx context.Context, userID string) (*hipstershop.Cart, error)

	Ping(ctx context.Context) bool
}

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var (
	// ErrTooManyConflicts is returned by AddItem when a bounded RetryPolicy
	// gives up on a contended cart.
	ErrTooManyConflicts = errors.New("cart update conflicted too many times")

	// ErrInvalidQuantity is returned by AddItem for a non-positive quantity or
	// one that would push the item's total past the int32 range.
	ErrInvalidQuantity = errors.New("invalid item quantity")

	errConflict = errors.New("cart was modified concurrently")
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// CartTTL expires idle Redis carts. Zero keeps them forever.
	CartTTL time.Duration

	DatabaseURL string

	Retry RetryPolicy
	// OnConflict, if set, is called whenever a compare-and-swap attempt
	// loses a race.
	OnConflict func(backend string, attempt int)

	Logger logrus.FieldLogger
}

// InferBackend picks a backend from the connection settings present when
// none was named explicitly. "pg" is accepted for postgres.
func (o Options) InferBackend() string {
	if o.Backend != "" {
		b := strings.ToLower(o.Backend)
		if b == "pg" {
			return BackendPostgres
		}
		return b
	}
	switch {
	case o.RedisAddr != "":
		return BackendRedis
	case o.DatabaseURL != "":
		return BackendPostgres
	}
	return BackendMemory
}

// New builds the backend described by opts. The returned store still needs
// Initialize before use.
func New(ctx context.Context, opts Options) (ICartStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	switch backend := opts.InferBackend(); backend {
	case BackendMemory:
		return NewLocalCartStore(opts.Logger), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the %s backend", backend)
		}
		return NewRedisCartStore(opts), nil
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the %s backend", backend)
		}
		return NewPostgresCartStore(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown cart backend %q", backend)
	}
}
