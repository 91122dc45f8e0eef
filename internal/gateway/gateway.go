// Package gateway talks to the remote catalog API.
package gateway

import (
	"context"

	"product-catalog-client/internal/domain"
)

// Gateway is the set of remote catalog operations the client consumes.
//
// GetByID returns (nil, nil) when the product does not exist and Delete
// returns (false, nil) in the same case; "not found" is not a failure here.
// All other failures are *domain.TransportError, *domain.ServerError or
// *domain.RemoteError.
type Gateway interface {
	List(ctx context.Context) ([]domain.Product, error)
	ListPage(ctx context.Context, opts domain.ListOptions) (domain.Page, error)
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, in domain.ProductInput) (domain.Product, error)
	Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
