package mocks

import (
	"context"

	"shopping/internal/models"
	"shopping/internal/port"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Storage mocks port.Storage. InTx passes the mock itself as the transaction.
type Storage struct {
	mock.Mock
}

func (m *Storage) GetAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *Storage) GetByName(ctx context.Context, name string) (models.Product, bool, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(models.Product), args.Bool(1), args.Error(2)
}

func (m *Storage) GetByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Product), args.Bool(1), args.Error(2)
}

func (m *Storage) Save(ctx context.Context, product models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *Storage) GetCart(ctx context.Context, customerId int64) (*models.Cart, bool, error) {
	args := m.Called(ctx, customerId)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Bool(1), args.Error(2)
}

func (m *Storage) SaveCart(ctx context.Context, cart *models.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *Storage) DeleteCart(ctx context.Context, customerId int64) error {
	args := m.Called(ctx, customerId)
	return args.Error(0)
}

func (m *Storage) InTx(ctx context.Context, fn func(tx port.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

func (m *Storage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Storage) Close() error {
	args := m.Called()
	return args.Error(0)
}

type Publisher struct {
	mock.Mock
}

func (m *Publisher) Publish(ctx context.Context, event models.PurchaseEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type Recorder struct {
	mock.Mock
}

func (m *Recorder) ObservePurchase(outcome string, units int) {
	m.Called(outcome, units)
}
