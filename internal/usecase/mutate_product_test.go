package usecase

import (
	"context"
	"testing"

	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validInput() domain.ProductInput {
	return domain.ProductInput{
		Title:    "  Desk   Lamp ",
		Price:    29.999,
		Image:    "https://img.example.com/lamp.png",
		Category: "Electronics",
	}
}

func setupMutate(gw *MockGateway) (*MutateProduct, *GetProducts, *GetProductByID, *store.FallbackStore) {
	clock := domain.NewManualClock(epoch)
	fallback := store.NewFallbackStore(store.NewMemoryStore(), clock, 0, nil)
	products := NewGetProducts(gw, fallback, clock, 0, nil)
	byID := NewGetProductByID(gw, fallback, clock, 0, nil)
	return NewMutateProduct(gw, domain.NewRules(nil), products, byID, nil), products, byID, fallback
}

func TestMutateProduct_CreateNormalizesAndInvalidatesCollection(t *testing.T) {
	gw := new(MockGateway)
	uc, products, _, _ := setupMutate(gw)
	ctx := context.Background()

	gw.On("List", mock.Anything).Return([]domain.Product{product(1, "Wireless Mouse", 50)}, nil).Twice()
	_, err := products.Execute(ctx)
	require.NoError(t, err)

	gw.On("Create", mock.Anything, mock.MatchedBy(func(in domain.ProductInput) bool {
		return in.Title == "Desk Lamp" && in.Price == 30 && in.Category == "electronics"
	})).Return(product(21, "Desk Lamp", 30), nil).Once()

	created, err := uc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, int64(21), created.ID)

	_, err = products.Execute(ctx)
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestMutateProduct_CreateRejectsInvalidInput(t *testing.T) {
	gw := new(MockGateway)
	uc, _, _, _ := setupMutate(gw)

	in := validInput()
	in.Title = "12345"
	_, err := uc.Create(context.Background(), in)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
	gw.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMutateProduct_UpdateInvalidatesListAndItem(t *testing.T) {
	gw := new(MockGateway)
	uc, products, byID, fallback := setupMutate(gw)
	ctx := context.Background()
	p3 := product(3, "Silver Ring", 60)

	gw.On("List", mock.Anything).Return([]domain.Product{p3}, nil).Twice()
	gw.On("GetByID", mock.Anything, int64(3)).Return(&p3, nil).Twice()
	_, _ = products.Execute(ctx)
	_, _ = byID.Execute(ctx, 3)

	gw.On("Update", mock.Anything, int64(3), mock.AnythingOfType("domain.ProductInput")).
		Return(product(3, "Desk Lamp", 30), nil).Once()
	_, err := uc.Update(ctx, 3, validInput())
	require.NoError(t, err)

	_, ok := fallback.LoadProduct(ctx, 3)
	assert.False(t, ok)

	_, _ = products.Execute(ctx)
	_, _ = byID.Execute(ctx, 3)
	gw.AssertNumberOfCalls(t, "List", 2)
	gw.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestMutateProduct_FailedUpdateKeepsCache(t *testing.T) {
	gw := new(MockGateway)
	uc, products, _, _ := setupMutate(gw)
	ctx := context.Background()

	gw.On("List", mock.Anything).Return([]domain.Product{product(3, "Silver Ring", 60)}, nil).Once()
	_, _ = products.Execute(ctx)

	gw.On("Update", mock.Anything, int64(3), mock.Anything).
		Return(domain.Product{}, &domain.ServerError{Op: "update", Status: 502}).Once()
	_, err := uc.Update(ctx, 3, validInput())
	var se *domain.ServerError
	require.ErrorAs(t, err, &se)

	_, _ = products.Execute(ctx)
	gw.AssertNumberOfCalls(t, "List", 1)

	_, err = uc.Update(ctx, 0, validInput())
	assert.True(t, domain.IsValidation(err))
}

func TestMutateProduct_Delete(t *testing.T) {
	gw := new(MockGateway)
	uc, products, _, _ := setupMutate(gw)
	ctx := context.Background()

	gw.On("List", mock.Anything).Return([]domain.Product{product(3, "Silver Ring", 60)}, nil).Twice()
	_, _ = products.Execute(ctx)

	gw.On("Delete", mock.Anything, int64(404)).Return(false, nil).Once()
	deleted, err := uc.Delete(ctx, 404)
	require.NoError(t, err)
	assert.False(t, deleted)
	_, _ = products.Execute(ctx)
	gw.AssertNumberOfCalls(t, "List", 1)

	gw.On("Delete", mock.Anything, int64(3)).Return(true, nil).Once()
	deleted, err = uc.Delete(ctx, 3)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, _ = products.Execute(ctx)
	gw.AssertNumberOfCalls(t, "List", 2)
}
