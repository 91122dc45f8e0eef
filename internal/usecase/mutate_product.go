package usecase

import (
	"context"
	"io"
	"log"

	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/gateway"
)

// MutateProduct creates, updates and deletes products. A successful write evicts
// every cached read it may have made stale; nothing is patched in place.
type MutateProduct struct {
	gateway  gateway.Gateway
	rules    *domain.Rules
	products *GetProducts
	byID     *GetProductByID
	logger   *log.Logger
}

func NewMutateProduct(gw gateway.Gateway, rules *domain.Rules, products *GetProducts, byID *GetProductByID, logger *log.Logger) *MutateProduct {
	if rules == nil {
		rules = domain.NewRules(nil)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &MutateProduct{gateway: gw, rules: rules, products: products, byID: byID, logger: logger}
}

func (uc *MutateProduct) Create(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	in, err := uc.rules.NormalizeInput(in)
	if err != nil {
		return domain.Product{}, err
	}
	p, err := uc.gateway.Create(ctx, in)
	if err != nil {
		uc.logger.Printf("ERROR: MutateProduct: create %q failed: %v", in.Title, err)
		return domain.Product{}, err
	}
	if uc.products != nil {
		uc.products.InvalidateCache()
	}
	uc.logger.Printf("INFO: MutateProduct: created product %d", p.ID)
	return p, nil
}

func (uc *MutateProduct) Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	if err := validateID(id); err != nil {
		return domain.Product{}, err
	}
	in, err := uc.rules.NormalizeInput(in)
	if err != nil {
		return domain.Product{}, err
	}
	p, err := uc.gateway.Update(ctx, id, in)
	if err != nil {
		uc.logger.Printf("ERROR: MutateProduct: update of product %d failed: %v", id, err)
		return domain.Product{}, err
	}
	uc.evict(ctx, id)
	uc.logger.Printf("INFO: MutateProduct: updated product %d", id)
	return p, nil
}

// Delete reports false when the product did not exist.
func (uc *MutateProduct) Delete(ctx context.Context, id int64) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	deleted, err := uc.gateway.Delete(ctx, id)
	if err != nil {
		uc.logger.Printf("ERROR: MutateProduct: delete of product %d failed: %v", id, err)
		return false, err
	}
	if deleted {
		uc.evict(ctx, id)
		uc.logger.Printf("INFO: MutateProduct: deleted product %d", id)
	}
	return deleted, nil
}

func (uc *MutateProduct) evict(ctx context.Context, id int64) {
	if uc.products != nil {
		uc.products.InvalidateCache()
	}
	if uc.byID != nil {
		uc.byID.InvalidateCache(ctx, id)
	}
}
