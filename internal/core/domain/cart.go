package domain

import "time"

type CartItem struct {
	ProductID string  `bson:"product_id" json:"productId"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	Price     float64 `bson:"price" json:"price"` // price snapshot taken at add-time
}

// Cart holds at most one line item per product. Total is derived and must be
// recomputed before every persistence.
type Cart struct {
	UserID    string     `bson:"_id" json:"userId"`
	Items     []CartItem `bson:"items" json:"items"`
	Total     float64    `bson:"total" json:"total"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

func NewCart(userID string) *Cart {
	now := time.Now()
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		Total:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RecomputeTotal sums price x quantity over all items.
func (c *Cart) RecomputeTotal() {
	total := 0.0
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	c.Total = total
}

// MergeItem increments the quantity of an existing line item, keeping its
// price snapshot, or appends a new one.
func (c *Cart) MergeItem(productID string, quantity int, price float64) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return
		}
	}
	c.Items = append(c.Items, CartItem{
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	})
}

// SetQuantity replaces the quantity of an existing line item. It reports
// whether the product was present.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return true
		}
	}
	return false
}

// RemoveItem filters the line item out. It reports whether the product was
// present.
func (c *Cart) RemoveItem(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the cart after a successful checkout.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Total = 0
}
