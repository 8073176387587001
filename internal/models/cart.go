package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrProductNotInCart = errors.New("product is not in cart")
)

const (
	CartOpAdd  = "add"
	CartOpEdit = "edit"
)

// QuantityError reports a cart change rejected for the named product.
type QuantityError struct {
	Op        string
	Product   string
	Requested int
	Available int
}

func (e *QuantityError) Error() string {
	prefix := fmt.Sprintf("cannot add product '%s' to cart", e.Product)
	if e.Op == CartOpEdit {
		prefix = fmt.Sprintf("cannot change product '%s' in cart", e.Product)
	}

	if e.Requested <= 0 {
		return prefix + ": quantity must be positive"
	}
	return prefix + ": not enough units available"
}

func (e *QuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

// Cart holds the quantities a customer intends to buy, keyed by product id.
type Cart struct {
	Customer Customer
	// Revision identifies the stored version the cart was loaded from or last
	// saved as. It is uuid.Nil for a cart that was never stored.
	Revision uuid.UUID
	lines    map[uuid.UUID]CartLine
}

func NewCart(customer Customer) *Cart {
	return &Cart{
		Customer: customer,
		lines:    make(map[uuid.UUID]CartLine),
	}
}

// Add stores quantity for product, replacing any previous quantity.
func (c *Cart) Add(product Product, quantity int) error {
	if err := validateQuantity(CartOpAdd, product, quantity); err != nil {
		return err
	}
	c.put(product, quantity)
	return nil
}

// Edit changes the quantity of a product that is already in the cart.
func (c *Cart) Edit(product Product, quantity int) error {
	if _, ok := c.lines[product.Id]; !ok {
		return fmt.Errorf("%w: %s", ErrProductNotInCart, product.Name)
	}
	if err := validateQuantity(CartOpEdit, product, quantity); err != nil {
		return err
	}
	c.put(product, quantity)
	return nil
}

func (c *Cart) Remove(productId uuid.UUID) bool {
	if _, ok := c.lines[productId]; !ok {
		return false
	}
	delete(c.lines, productId)
	return true
}

// Products returns a copy of the cart contents.
func (c *Cart) Products() map[uuid.UUID]CartLine {
	out := make(map[uuid.UUID]CartLine, len(c.lines))
	for id, line := range c.lines {
		out[id] = line
	}
	return out
}

// Lines returns the cart contents ordered by product name, then id.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Product.Name != out[j].Product.Name {
			return out[i].Product.Name < out[j].Product.Name
		}
		return out[i].Product.Id.String() < out[j].Product.Id.String()
	})
	return out
}

func (c *Cart) Quantity(productId uuid.UUID) int {
	return c.lines[productId].Quantity
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Clear() {
	c.lines = make(map[uuid.UUID]CartLine)
}

// Restore puts a stored line back without validation. Storage backends use it
// to rebuild carts; Buy re-validates every line.
func (c *Cart) Restore(line CartLine) {
	c.put(line.Product, line.Quantity)
}

func (c *Cart) put(product Product, quantity int) {
	if c.lines == nil {
		c.lines = make(map[uuid.UUID]CartLine)
	}
	c.lines[product.Id] = CartLine{Product: product, Quantity: quantity}
}

func validateQuantity(op string, product Product, quantity int) error {
	if quantity <= 0 || product.Count < quantity {
		return &QuantityError{
			Op:        op,
			Product:   product.Name,
			Requested: quantity,
			Available: product.Count,
		}
	}
	return nil
}

type cartJSON struct {
	Customer Customer   `json:"customer"`
	Revision uuid.UUID  `json:"revision"`
	Items    []CartLine `json:"items"`
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(cartJSON{
		Customer: c.Customer,
		Revision: c.Revision,
		Items:    c.Lines(),
	})
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var v cartJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.Customer = v.Customer
	c.Revision = v.Revision
	c.Clear()
	for _, line := range v.Items {
		c.Restore(line)
	}
	return nil
}
