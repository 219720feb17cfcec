package models

import "time"

// CartItem is a priced line supplied by the cart store. Cars are
// single-quantity, so Quantity is normally 1, but the checkout core
// does not assume that.
type CartItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	UnitAmount int    `json:"unit_amount"` // cents
	Quantity   int    `json:"quantity"`
}

type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TotalCents sums the cart lines. Display-only; orders recompute their
// own total from the snapshot.
func (c *Cart) TotalCents() int {
	total := 0
	for _, it := range c.Items {
		total += it.UnitAmount * it.Quantity
	}
	return total
}
