package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	Id    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Count int       `json:"count" db:"count"`
}

func NewProduct(name string, count int) Product {
	return Product{
		Id:    uuid.New(),
		Name:  name,
		Count: count,
	}
}

func (p *Product) AddCount(n int) {
	p.Count += n
}

func (p *Product) SubtractCount(n int) {
	p.Count -= n
}

type Customer struct {
	Id    int64  `json:"id" db:"customer_id"`
	Phone string `json:"phone,omitempty" db:"phone"`
}

type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type PurchaseItem struct {
	ProductId uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
}

type PurchaseEvent struct {
	CustomerId  int64          `json:"customer_id"`
	Items       []PurchaseItem `json:"items"`
	PurchasedAt time.Time      `json:"purchased_at"`
}
