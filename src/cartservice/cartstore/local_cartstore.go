package cartstore

import (
	"context"
	"sync"

	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
)

// LocalCartStore is a simple in-memory cart storage.
// Requests are served on concurrent goroutines, so the map is guarded by a
// mutex and every read-merge-write happens under it.
type LocalCartStore struct {
	mu    sync.RWMutex
	store map[string]*hipstershop.Cart

	log logrus.FieldLogger
}

// NewLocalCartStore constructor
func NewLocalCartStore(log logrus.FieldLogger) *LocalCartStore {
	return &LocalCartStore{
		store: make(map[string]*hipstershop.Cart),
		log:   log,
	}
}

// Initialize does nothing in this implementation.
func (l *LocalCartStore) Initialize(ctx context.Context) error {
	l.log.Info("LocalCartStore initialized")
	return nil
}

// AddItem adds a product to the user's cart, creating the cart on first use.
func (l *LocalCartStore) AddItem(ctx context.Context, userID, productID string, quantity int32) error {
	l.log.WithFields(logrus.Fields{"user_id": userID, "product_id": productID, "quantity": quantity}).
		Debug("LocalCartStore: AddItem")
	l.mu.Lock()
	defer l.mu.Unlock()

	var items []*hipstershop.CartItem
	if cart, exists := l.store[userID]; exists {
		items = cart.Items
	}
	next, err := addOrIncrement(items, productID, quantity)
	if err != nil {
		return err
	}
	l.store[userID] = &hipstershop.Cart{UserId: userID, Items: next}
	return nil
}

// EmptyCart removes a user's cart. Removing a missing cart is not an error.
func (l *LocalCartStore) EmptyCart(ctx context.Context, userID string) error {
	l.log.WithField("user_id", userID).Debug("LocalCartStore: EmptyCart")
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.store, userID)
	return nil
}

// GetCart retrieves a copy of a user's cart.
func (l *LocalCartStore) GetCart(ctx context.Context, userID string) (*hipstershop.Cart, error) {
	l.log.WithField("user_id", userID).Debug("LocalCartStore: GetCart")
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cart, exists := l.store[userID]; exists {
		return cloneCart(cart), nil
	}
	// Return an empty cart if it doesn't exist.
	return emptyCart(), nil
}

// Ping is a health check that always returns true.
func (l *LocalCartStore) Ping(ctx context.Context) bool {
	return true
}
