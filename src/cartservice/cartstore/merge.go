package cartstore

import (
	"fmt"
	"math"

	"github.com/norun9/boutique-checkout/src/hipstershop"
)

// addOrIncrement returns items with quantity added to the entry for
// productID, appending a new entry if there is none. items is not modified.
// The merged quantity must stay within int32.
func addOrIncrement(items []*hipstershop.CartItem, productID string, quantity int32) ([]*hipstershop.CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	next := make([]*hipstershop.CartItem, 0, len(items)+1)
	found := false
	for _, item := range items {
		cp := *item
		if cp.ProductId == productID {
			if cp.Quantity > math.MaxInt32-quantity {
				return nil, fmt.Errorf("%w: %d more of #%q on top of %d", ErrInvalidQuantity, quantity, productID, cp.Quantity)
			}
			cp.Quantity += quantity
			found = true
		}
		next = append(next, &cp)
	}
	if !found {
		next = append(next, &hipstershop.CartItem{
			ProductId: productID,
			Quantity:  quantity,
		})
	}
	return next, nil
}

// cloneCart deep-copies c so callers can never mutate stored state.
func cloneCart(c *hipstershop.Cart) *hipstershop.Cart {
	out := &hipstershop.Cart{UserId: c.UserId, Items: make([]*hipstershop.CartItem, 0, len(c.Items))}
	for _, item := range c.Items {
		cp := *item
		out.Items = append(out.Items, &cp)
	}
	return out
}

func emptyCart() *hipstershop.Cart {
	return &hipstershop.Cart{Items: []*hipstershop.CartItem{}}
}
