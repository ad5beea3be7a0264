package cartstore

import (
	"context"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func sortItems() cmp.Option {
	return cmpopts.SortSlices(func(a, b *hipstershop.CartItem) bool { return a.ProductId < b.ProductId })
}

// testStoreContract checks the behaviour every ICartStore must share.
func testStoreContract(t *testing.T, store ICartStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing cart is empty", func(t *testing.T) {
		cart, err := store.GetCart(ctx, gofakeit.UUID())
		require.NoError(t, err)
		require.NotNil(t, cart.Items)
		assert.Empty(t, cart.Items)
	})

	t.Run("same product is merged", func(t *testing.T) {
		userID := gofakeit.UUID()
		require.NoError(t, store.AddItem(ctx, userID, "X", 2))
		require.NoError(t, store.AddItem(ctx, userID, "X", 2))

		cart, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, cart.UserId)
		assert.Equal(t, []*hipstershop.CartItem{{ProductId: "X", Quantity: 4}}, cart.Items)
	})

	t.Run("distinct products are appended", func(t *testing.T) {
		userID := gofakeit.UUID()
		require.NoError(t, store.AddItem(ctx, userID, "A", 1))
		require.NoError(t, store.AddItem(ctx, userID, "B", 3))
		require.NoError(t, store.AddItem(ctx, userID, "A", 5))

		cart, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		want := []*hipstershop.CartItem{{ProductId: "A", Quantity: 6}, {ProductId: "B", Quantity: 3}}
		if diff := cmp.Diff(want, cart.Items, sortItems()); diff != "" {
			t.Errorf("items mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("quantity overflow is rejected", func(t *testing.T) {
		userID := gofakeit.UUID()
		require.NoError(t, store.AddItem(ctx, userID, "X", math.MaxInt32))
		err := store.AddItem(ctx, userID, "X", 2)
		require.ErrorIs(t, err, ErrInvalidQuantity)

		cart, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []*hipstershop.CartItem{{ProductId: "X", Quantity: math.MaxInt32}}, cart.Items)
	})

	t.Run("empty cart is idempotent", func(t *testing.T) {
		userID := gofakeit.UUID()
		require.NoError(t, store.AddItem(ctx, userID, "X", 1))
		require.NoError(t, store.EmptyCart(ctx, userID))
		require.NoError(t, store.EmptyCart(ctx, userID))
		require.NoError(t, store.EmptyCart(ctx, gofakeit.UUID()))

		cart, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
	})

	t.Run("returned cart is a copy", func(t *testing.T) {
		userID := gofakeit.UUID()
		require.NoError(t, store.AddItem(ctx, userID, "X", 1))

		cart, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		cart.Items[0].Quantity = 100
		cart.Items = append(cart.Items, &hipstershop.CartItem{ProductId: "Z", Quantity: 1})

		again, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []*hipstershop.CartItem{{ProductId: "X", Quantity: 1}}, again.Items)
	})

	t.Run("concurrent adds are not lost", func(t *testing.T) {
		const n = 25
		userID := gofakeit.UUID()

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.AddItem(ctx, userID, "X", 1)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		cart, err := store.GetCart(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []*hipstershop.CartItem{{ProductId: "X", Quantity: n}}, cart.Items)
	})

	t.Run("ping", func(t *testing.T) {
		assert.True(t, store.Ping(ctx))
	})
}
