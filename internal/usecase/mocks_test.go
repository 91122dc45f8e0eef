package usecase

import (
	"context"
	"errors"
	"time"

	"product-catalog-client/internal/domain"

	"github.com/stretchr/testify/mock"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) List(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = append(products, arg0.([]domain.Product)...)
	}
	return products, args.Error(1)
}

func (m *MockGateway) ListPage(ctx context.Context, opts domain.ListOptions) (domain.Page, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(domain.Page), args.Error(1)
}

func (m *MockGateway) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	p := *args.Get(0).(*domain.Product)
	return &p, args.Error(1)
}

func (m *MockGateway) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	args := m.Called(ctx, category)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = append(products, arg0.([]domain.Product)...)
	}
	return products, args.Error(1)
}

func (m *MockGateway) ListCategories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockGateway) Create(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockGateway) Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockGateway) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func product(id int64, title string, price float64) domain.Product {
	return domain.Product{
		ID:          id,
		Title:       title,
		Price:       price,
		Currency:    "USD",
		Category:    "electronics",
		Image:       "https://img.example.com/p.png",
		Description: "in stock",
	}
}

func ids(products []domain.Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

var errNetwork = &domain.TransportError{Op: "list", Err: errors.New("connection refused")}
