package mocks

import (
	"context"

	"shopping/internal/models"

	"github.com/stretchr/testify/mock"
)

type Service struct {
	mock.Mock
}

func (m *Service) GetCart(ctx context.Context, customer models.Customer) (*models.Cart, error) {
	args := m.Called(ctx, customer)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *Service) AddToCart(ctx context.Context, customer models.Customer, productName string, quantity int) (*models.Cart, error) {
	args := m.Called(ctx, customer, productName, quantity)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *Service) EditCart(ctx context.Context, customer models.Customer, productName string, quantity int) (*models.Cart, error) {
	args := m.Called(ctx, customer, productName, quantity)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *Service) RemoveFromCart(ctx context.Context, customer models.Customer, productName string) (*models.Cart, error) {
	args := m.Called(ctx, customer, productName)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *Service) Checkout(ctx context.Context, customer models.Customer) (bool, error) {
	args := m.Called(ctx, customer)
	return args.Bool(0), args.Error(1)
}

func (m *Service) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

func (m *Service) GetProductByName(ctx context.Context, name string) (models.Product, bool, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(models.Product), args.Bool(1), args.Error(2)
}

func (m *Service) CreateProduct(ctx context.Context, name string, count int) (models.Product, error) {
	args := m.Called(ctx, name, count)
	return args.Get(0).(models.Product), args.Error(1)
}

func (m *Service) Restock(ctx context.Context, name string, count int) (models.Product, error) {
	args := m.Called(ctx, name, count)
	return args.Get(0).(models.Product), args.Error(1)
}
