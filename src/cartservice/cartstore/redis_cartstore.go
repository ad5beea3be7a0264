package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
)

const redisInitAttempts = 30

// RedisCartStore is a cart store backed by Redis. Each cart is a JSON string
// under "cart:<userID>"; AddItem is an optimistic WATCH/MULTI/EXEC loop.
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	retry  RetryPolicy
	log    logrus.FieldLogger

	onConflict   func(backend string, attempt int)
	initAttempts int
	// beforeCommit runs between the read and the EXEC of AddItem.
	beforeCommit func(ctx context.Context, key string)
}

// NewRedisCartStore accepts a Redis address ("hostname:port" or a redis://
// URL) and returns a store instance.
func NewRedisCartStore(opts Options) *RedisCartStore {
	redisOpts, err := redis.ParseURL(opts.RedisAddr)
	if err != nil {
		// If not in "redis://..." format, use it as a simple Addr.
		redisOpts = &redis.Options{
			Addr:         opts.RedisAddr,
			Password:     opts.RedisPassword,
			DB:           opts.RedisDB,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(redisOpts)
	client.AddHook(redisotel.NewTracingHook())

	return newRedisCartStore(client, opts)
}

func newRedisCartStore(client *redis.Client, opts Options) *RedisCartStore {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisCartStore{
		client:       client,
		ttl:          opts.CartTTL,
		retry:        opts.Retry,
		log:          log,
		onConflict:   opts.OnConflict,
		initAttempts: redisInitAttempts,
	}
}

func cartKey(userID string) string {
	return "cart:" + userID
}

// Initialize waits for Redis to answer a ping, backing off exponentially.
func (r *RedisCartStore) Initialize(ctx context.Context) error {
	r.log.Info("RedisCartStore: initializing connection...")

	for i := 0; i < r.initAttempts; i++ {
		if r.Ping(ctx) {
			r.log.WithField("attempt", i+1).Info("RedisCartStore initialized successfully")
			return nil
		}

		// Wait with exponential backoff.
		backoff := time.Duration(1000*(1<<uint(min(i, 5)))) * time.Millisecond
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		r.log.WithField("attempt", i+1).Warnf("RedisCartStore: ping failed, waiting %v before next attempt", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed to connect to Redis after %d attempts", r.initAttempts)
}

// AddItem merges productID into the user's cart. The read and the write
// happen inside WATCH on the cart key, so a concurrent writer aborts the EXEC
// and the whole cycle is retried according to the retry policy.
func (r *RedisCartStore) AddItem(ctx context.Context, userID, productID string, quantity int32) error {
	log := r.log.WithFields(logrus.Fields{"user_id": userID, "product_id": productID, "quantity": quantity})
	log.Debug("RedisCartStore: AddItem")

	key := cartKey(userID)
	txf := func(tx *redis.Tx) error {
		cart, err := readCart(ctx, tx, key)
		if err != nil {
			return err
		}
		items, err := addOrIncrement(cart.Items, productID, quantity)
		if err != nil {
			return err
		}
		data, err := json.Marshal(&hipstershop.Cart{UserId: userID, Items: items})
		if err != nil {
			return fmt.Errorf("failed to encode cart: %w", err)
		}

		if r.beforeCommit != nil {
			r.beforeCommit(ctx, key)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	return r.retry.run(ctx, func(ctx context.Context) error {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			return errConflict
		}
		if err != nil {
			return fmt.Errorf("redis AddItem: %w", err)
		}
		return nil
	}, func(attempt int) {
		log.WithField("attempt", attempt).Debug("RedisCartStore: cart changed during AddItem, retrying")
		if r.onConflict != nil {
			r.onConflict(BackendRedis, attempt)
		}
	})
}

// EmptyCart deletes the user's cart.
func (r *RedisCartStore) EmptyCart(ctx context.Context, userID string) error {
	r.log.WithField("user_id", userID).Debug("RedisCartStore: EmptyCart")

	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}

// GetCart retrieves a cart from Redis, returning an empty one if it doesn't exist.
func (r *RedisCartStore) GetCart(ctx context.Context, userID string) (*hipstershop.Cart, error) {
	r.log.WithField("user_id", userID).Debug("RedisCartStore: GetCart")
	return readCart(ctx, r.client, cartKey(userID))
}

// Ping checks if Redis is alive.
func (r *RedisCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.WithError(err).Warn("RedisCartStore: Ping failed")
		return false
	}
	return true
}

// Close releases the client's connections.
func (r *RedisCartStore) Close() error {
	return r.client.Close()
}

func readCart(ctx context.Context, c redis.Cmdable, key string) (*hipstershop.Cart, error) {
	val, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptyCart(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET: %w", err)
	}
	var cart hipstershop.Cart
	if err := json.Unmarshal(val, &cart); err != nil {
		return nil, fmt.Errorf("failed to parse cart data: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []*hipstershop.CartItem{}
	}
	return &cart, nil
}
