package cartstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

// PostgresCartStore keeps one row per cart. Every write replaces the row's
// revision token, and a write only lands if the revision it read is still
// current.
type PostgresCartStore struct {
	pool  *pgxpool.Pool
	retry RetryPolicy
	log   logrus.FieldLogger

	onConflict func(backend string, attempt int)
	// beforeCommit runs between the read and the conditional write of AddItem.
	beforeCommit func(ctx context.Context, userID string)
}

// NewPostgresCartStore opens a connection pool for opts.DatabaseURL.
// No connection is attempted until Initialize.
func NewPostgresCartStore(ctx context.Context, opts Options) (*PostgresCartStore, error) {
	pool, err := pgxpool.New(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	return newPostgresCartStore(pool, opts), nil
}

func newPostgresCartStore(pool *pgxpool.Pool, opts Options) *PostgresCartStore {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PostgresCartStore{
		pool:       pool,
		retry:      opts.Retry,
		log:        log,
		onConflict: opts.OnConflict,
	}
}

// Initialize checks connectivity and creates the carts table if needed.
func (p *PostgresCartStore) Initialize(ctx context.Context) error {
	p.log.Info("PostgresCartStore: initializing connection...")

	if !p.Ping(ctx) {
		return errors.New("failed to connect to Postgres")
	}
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	p.log.Info("PostgresCartStore initialized successfully")
	return nil
}

// AddItem merges productID into the user's cart with an optimistic
// compare-and-swap on the revision column.
func (p *PostgresCartStore) AddItem(ctx context.Context, userID, productID string, quantity int32) error {
	log := p.log.WithFields(logrus.Fields{"user_id": userID, "product_id": productID, "quantity": quantity})
	log.Debug("PostgresCartStore: AddItem")

	return p.retry.run(ctx, func(ctx context.Context) error {
		return p.tryAddItem(ctx, userID, productID, quantity)
	}, func(attempt int) {
		log.WithField("attempt", attempt).Debug("PostgresCartStore: cart changed during AddItem, retrying")
		if p.onConflict != nil {
			p.onConflict(BackendPostgres, attempt)
		}
	})
}

func (p *PostgresCartStore) tryAddItem(ctx context.Context, userID, productID string, quantity int32) error {
	items, revision, err := p.load(ctx, userID)
	if err != nil {
		return err
	}

	merged, err := addOrIncrement(items, productID, quantity)
	if err != nil {
		return err
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}
	next := uuid.NewString()

	if p.beforeCommit != nil {
		p.beforeCommit(ctx, userID)
	}

	var query string
	var args []any
	if revision == "" {
		query = `INSERT INTO carts(user_id, items, revision) VALUES($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING`
		args = []any{userID, data, next}
	} else {
		query = `UPDATE carts SET items=$2, revision=$3, updated_at=now()
			WHERE user_id=$1 AND revision=$4`
		args = []any{userID, data, next, revision}
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errConflict
	}
	return nil
}

// load returns the stored items and their revision. A missing cart has no
// items and an empty revision.
func (p *PostgresCartStore) load(ctx context.Context, userID string) ([]*hipstershop.CartItem, string, error) {
	var raw []byte
	var revision string
	err := p.pool.QueryRow(ctx,
		`SELECT items, revision FROM carts WHERE user_id=$1`, userID,
	).Scan(&raw, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return []*hipstershop.CartItem{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read cart: %w", err)
	}

	items := []*hipstershop.CartItem{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, "", fmt.Errorf("failed to parse cart data: %w", err)
	}
	return items, revision, nil
}

// EmptyCart deletes the user's row.
func (p *PostgresCartStore) EmptyCart(ctx context.Context, userID string) error {
	p.log.WithField("user_id", userID).Debug("PostgresCartStore: EmptyCart")

	if _, err := p.pool.Exec(ctx, `DELETE FROM carts WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// GetCart returns the stored cart, or an empty one.
func (p *PostgresCartStore) GetCart(ctx context.Context, userID string) (*hipstershop.Cart, error) {
	p.log.WithField("user_id", userID).Debug("PostgresCartStore: GetCart")

	items, revision, err := p.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if revision == "" {
		return emptyCart(), nil
	}
	return &hipstershop.Cart{UserId: userID, Items: items}, nil
}

// Ping checks if Postgres is reachable.
func (p *PostgresCartStore) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		p.log.WithError(err).Warn("PostgresCartStore: Ping failed")
		return false
	}
	return true
}

// Close releases the pool.
func (p *PostgresCartStore) Close() {
	p.pool.Close()
}
