package port

import (
	"context"

	"shopping/internal/models"

	"github.com/google/uuid"
)

// ProductStore holds the authoritative inventory.
type ProductStore interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByName(ctx context.Context, name string) (models.Product, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error)
	Save(ctx context.Context, product models.Product) error
}

// CartStore keeps one cart per customer.
type CartStore interface {
	GetCart(ctx context.Context, customerId int64) (*models.Cart, bool, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
	DeleteCart(ctx context.Context, customerId int64) error
}

// Tx is the view of the storage inside a transaction. Writes made through it
// become visible only when the transaction commits.
type Tx interface {
	ProductStore
	CartStore
}

type Storage interface {
	ProductStore
	CartStore

	// InTx runs fn in a transaction, committing if fn returns nil and rolling
	// back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
