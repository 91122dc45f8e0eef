package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strconv"
	"time"

	"product-catalog-client/internal/cache"
	"product-catalog-client/internal/domain"
)

// Default TTLs of the request cache.
const (
	DefaultListTTL       = 5 * time.Minute
	DefaultItemTTL       = 10 * time.Minute
	DefaultCategoriesTTL = time.Hour
)

const (
	opList           = "list"
	opListPage       = "listPage"
	opListByCategory = "listByCategory"
	opGetByID        = "getById"
	opListCategories = "listCategories"
)

// requestKey identifies a cached read by operation and parameters.
type requestKey struct {
	op     string
	params string
}

// collection reports whether the key describes a read over the product collection.
func (k requestKey) collection() bool {
	switch k.op {
	case opList, opListPage, opListByCategory:
		return true
	}
	return false
}

// TTLs configures how long each kind of read stays cached.
type TTLs struct {
	List       time.Duration
	Item       time.Duration
	Categories time.Duration
}

// DefaultTTLs returns the stock TTL set.
func DefaultTTLs() TTLs {
	return TTLs{List: DefaultListTTL, Item: DefaultItemTTL, Categories: DefaultCategoriesTTL}
}

// CachedGateway keeps successful reads of the wrapped Gateway for a while.
// Writes never patch cached entries: a successful mutation evicts the keys it
// may have made stale, so the next read goes to the network again.
type CachedGateway struct {
	next   Gateway
	cache  *cache.EntityCache[requestKey, any]
	ttls   TTLs
	logger *log.Logger
}

var _ Gateway = (*CachedGateway)(nil)

// NewCachedGateway wraps next. Zero TTL fields take their defaults.
func NewCachedGateway(next Gateway, clock domain.Clock, ttls TTLs, logger *log.Logger) *CachedGateway {
	def := DefaultTTLs()
	if ttls.List <= 0 {
		ttls.List = def.List
	}
	if ttls.Item <= 0 {
		ttls.Item = def.Item
	}
	if ttls.Categories <= 0 {
		ttls.Categories = def.Categories
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &CachedGateway{
		next:   next,
		cache:  cache.New[requestKey, any](clock),
		ttls:   ttls,
		logger: logger,
	}
}

func (g *CachedGateway) List(ctx context.Context) ([]domain.Product, error) {
	return cachedProducts(g, requestKey{op: opList}, g.ttls.List, func() ([]domain.Product, error) {
		return g.next.List(ctx)
	})
}

func (g *CachedGateway) ListPage(ctx context.Context, opts domain.ListOptions) (domain.Page, error) {
	opts = opts.Clamped()
	key := requestKey{op: opListPage, params: fmt.Sprintf("limit=%d&skip=%d", opts.Limit, opts.Offset)}
	if v, ok := g.cache.Get(key); ok {
		page := v.(domain.Page)
		page.Products = slices.Clone(page.Products)
		return page, nil
	}
	page, err := g.next.ListPage(ctx, opts)
	if err != nil {
		return domain.Page{}, err
	}
	stored := page
	stored.Products = slices.Clone(page.Products)
	g.cache.Set(key, stored, g.ttls.List)
	return page, nil
}

func (g *CachedGateway) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := itemKey(id)
	if v, ok := g.cache.Get(key); ok {
		p := v.(domain.Product)
		return &p, nil
	}
	p, err := g.next.GetByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	g.cache.Set(key, *p, g.ttls.Item)
	return p, nil
}

func (g *CachedGateway) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	normalized := domain.NormalizeCategory(category)
	if normalized == "" {
		return g.List(ctx)
	}
	key := requestKey{op: opListByCategory, params: normalized}
	return cachedProducts(g, key, g.ttls.List, func() ([]domain.Product, error) {
		return g.next.ListByCategory(ctx, normalized)
	})
}

func (g *CachedGateway) ListCategories(ctx context.Context) ([]string, error) {
	key := requestKey{op: opListCategories}
	if v, ok := g.cache.Get(key); ok {
		return slices.Clone(v.([]string)), nil
	}
	categories, err := g.next.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	g.cache.Set(key, slices.Clone(categories), g.ttls.Categories)
	return categories, nil
}

func (g *CachedGateway) Create(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	p, err := g.next.Create(ctx, in)
	if err != nil {
		return domain.Product{}, err
	}
	g.InvalidateCollection()
	return p, nil
}

func (g *CachedGateway) Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	p, err := g.next.Update(ctx, id, in)
	if err != nil {
		return domain.Product{}, err
	}
	g.invalidateProduct(id)
	return p, nil
}

func (g *CachedGateway) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := g.next.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	g.invalidateProduct(id)
	return true, nil
}

// InvalidateAll drops every cached read.
func (g *CachedGateway) InvalidateAll() {
	g.cache.InvalidateAll()
}

// InvalidateCollection drops list, page and category list reads.
func (g *CachedGateway) InvalidateCollection() {
	g.cache.InvalidateFunc(requestKey.collection)
}

// InvalidateItem drops the cached read of one product.
func (g *CachedGateway) InvalidateItem(id int64) {
	g.cache.Invalidate(itemKey(id))
}

func (g *CachedGateway) invalidateProduct(id int64) {
	g.InvalidateItem(id)
	g.InvalidateCollection()
	g.logger.Printf("INFO: gateway cache: invalidated product %d and collection reads", id)
}

func itemKey(id int64) requestKey {
	return requestKey{op: opGetByID, params: strconv.FormatInt(id, 10)}
}

// cachedProducts serves a product slice from the cache or fetches and stores it.
// Callers always get their own copy so in-place sorting cannot leak into the cache.
func cachedProducts(g *CachedGateway, key requestKey, ttl time.Duration, fetch func() ([]domain.Product, error)) ([]domain.Product, error) {
	if v, ok := g.cache.Get(key); ok {
		return slices.Clone(v.([]domain.Product)), nil
	}
	products, err := fetch()
	if err != nil {
		return nil, err
	}
	g.cache.Set(key, slices.Clone(products), ttl)
	return products, nil
}
