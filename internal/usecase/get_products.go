// Package usecase orchestrates catalog reads and writes over the in-process
// cache, the remote gateway and the persistent fallback store.
package usecase

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"product-catalog-client/internal/cache"
	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/gateway"
	"product-catalog-client/internal/store"
)

// ProductsCacheKey is the cache key of the whole collection.
const ProductsCacheKey = "products_cache"

// DefaultProductsTTL is how long a fetched collection is shared with later callers.
const DefaultProductsTTL = 5 * time.Minute

// DefaultPageSize applies when a paginated read asks for no particular size.
const DefaultPageSize = 10

// Source tells where a resolved result came from.
type Source int

const (
	SourceNetwork Source = iota
	SourceFallback
	SourceEmpty
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceFallback:
		return "fallback"
	default:
		return "empty"
	}
}

// ProductsResult is the outcome of a collection fetch. Err holds the fetch
// failure when Source is not SourceNetwork; it is informational only.
type ProductsResult struct {
	Products []domain.Product
	Source   Source
	Err      error
}

// CacheStats describes the cached collection.
type CacheStats struct {
	IsCached   bool
	Age        time.Duration
	ValidUntil time.Time
}

// cacheInvalidator is implemented by gateways with their own read cache.
type cacheInvalidator interface {
	InvalidateCollection()
	InvalidateItem(id int64)
	InvalidateAll()
}

// GetProducts fetches the product collection. Concurrent callers share one
// fetch per cache key and a failed fetch degrades to the fallback store.
type GetProducts struct {
	gateway  gateway.Gateway
	fallback *store.FallbackStore
	clock    domain.Clock
	ttl      time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	results  *cache.EntityCache[string, ProductsResult]
	inflight map[string]*cache.Future[ProductsResult]
}

// NewGetProducts creates the collection use case. Zero ttl means DefaultProductsTTL
// and a nil fallback keeps the fallback in memory.
func NewGetProducts(gw gateway.Gateway, fallback *store.FallbackStore, clock domain.Clock, ttl time.Duration, logger *log.Logger) *GetProducts {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultProductsTTL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if fallback == nil {
		fallback = store.NewFallbackStore(store.NewMemoryStore(), clock, 0, logger)
	}
	return &GetProducts{
		gateway:  gw,
		fallback: fallback,
		clock:    clock,
		ttl:      ttl,
		logger:   logger,
		results:  cache.New[string, ProductsResult](clock),
		inflight: make(map[string]*cache.Future[ProductsResult]),
	}
}

// Execute returns the relevance-sorted collection. It never fails because of the
// network; the only error is ctx ending before the shared fetch resolves.
func (uc *GetProducts) Execute(ctx context.Context) ([]domain.Product, error) {
	res, err := uc.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return res.Products, nil
}

// Fetch is Execute with the result's provenance.
func (uc *GetProducts) Fetch(ctx context.Context) (ProductsResult, error) {
	res, err := uc.shared(ctx).Wait(ctx)
	if err != nil {
		return ProductsResult{}, err
	}
	res.Products = slices.Clone(res.Products)
	return res, nil
}

// ExecuteWithRefresh drops the cached and persisted collection before fetching.
func (uc *GetProducts) ExecuteWithRefresh(ctx context.Context) ([]domain.Product, error) {
	uc.invalidate(ctx)
	return uc.Execute(ctx)
}

// FetchWithRefresh is ExecuteWithRefresh with the result's provenance.
func (uc *GetProducts) FetchWithRefresh(ctx context.Context) (ProductsResult, error) {
	uc.invalidate(ctx)
	return uc.Fetch(ctx)
}

// ExecuteByCategory reads one category, bypassing the collection cache.
// A blank category reads the whole collection. Failures yield an empty list.
func (uc *GetProducts) ExecuteByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	if domain.NormalizeCategory(category) == "" {
		return uc.Execute(ctx)
	}
	products, err := uc.gateway.ListByCategory(ctx, category)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uc.logger.Printf("ERROR: GetProducts: category %q fetch failed: %v", category, err)
		return []domain.Product{}, nil
	}
	SortByRelevance(products)
	return products, nil
}

// ExecuteWithPagination reads one page; page numbers start at 1.
// Failures yield an empty page.
func (uc *GetProducts) ExecuteWithPagination(ctx context.Context, page, pageSize int) (domain.Page, error) {
	page = max(page, 1)
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	size := domain.ListOptions{Limit: pageSize}.Clamped().Limit
	opts := domain.ListOptions{Limit: size, Offset: (page - 1) * size}

	result, err := uc.gateway.ListPage(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Page{}, ctx.Err()
		}
		uc.logger.Printf("ERROR: GetProducts: page %d fetch failed: %v", page, err)
		return domain.Page{Products: []domain.Product{}, Page: page}, nil
	}
	SortByRelevance(result.Products)
	result.Page = page
	result.TotalPages = (result.Total + opts.Limit - 1) / opts.Limit
	return result, nil
}

// CacheStats reports whether a collection is cached and how old it is.
func (uc *GetProducts) CacheStats() CacheStats {
	storedAt, ok := uc.results.StoredAt(ProductsCacheKey)
	if !ok {
		return CacheStats{}
	}
	return CacheStats{
		IsCached:   true,
		Age:        uc.clock.Now().Sub(storedAt),
		ValidUntil: storedAt.Add(uc.ttl),
	}
}

// InvalidateCache drops the cached collection. A fetch already in flight still
// answers its waiters but is not cached. The persisted copy stays as a fallback.
func (uc *GetProducts) InvalidateCache() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.results.Invalidate(ProductsCacheKey)
	delete(uc.inflight, ProductsCacheKey)
}

func (uc *GetProducts) invalidate(ctx context.Context) {
	uc.InvalidateCache()
	if inv, ok := uc.gateway.(cacheInvalidator); ok {
		inv.InvalidateCollection()
	}
	uc.fallback.ClearProducts(ctx)
}

// shared returns a future for the collection: already resolved on a cache hit,
// the in-flight fetch when there is one, otherwise a new fetch. The fetch is
// detached from ctx so callers leaving early do not cancel it for the others.
func (uc *GetProducts) shared(ctx context.Context) *cache.Future[ProductsResult] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if res, ok := uc.results.Get(ProductsCacheKey); ok {
		f := cache.NewFuture[ProductsResult]()
		f.Resolve(res, nil)
		return f
	}
	if f, ok := uc.inflight[ProductsCacheKey]; ok {
		return f
	}
	f := cache.NewFuture[ProductsResult]()
	uc.inflight[ProductsCacheKey] = f
	go uc.fetch(context.WithoutCancel(ctx), f)
	return f
}

func (uc *GetProducts) fetch(ctx context.Context, f *cache.Future[ProductsResult]) {
	products, err := uc.gateway.List(ctx)
	if err != nil {
		uc.logger.Printf("ERROR: GetProducts: fetch failed, using fallback: %v", err)
		uc.settle(f, nil)
		f.Resolve(uc.degraded(ctx, err), nil)
		return
	}

	uc.fallback.SaveProducts(ctx, products)
	SortByRelevance(products)
	res := ProductsResult{Products: products, Source: SourceNetwork}
	uc.settle(f, &res)
	f.Resolve(res, nil)
}

func (uc *GetProducts) degraded(ctx context.Context, cause error) ProductsResult {
	if products, ok := uc.fallback.LoadProducts(ctx); ok {
		uc.logger.Printf("WARN: GetProducts: serving %d products from fallback store", len(products))
		SortByRelevance(products)
		return ProductsResult{Products: products, Source: SourceFallback, Err: cause}
	}
	return ProductsResult{Products: []domain.Product{}, Source: SourceEmpty, Err: cause}
}

// settle retires f as the in-flight fetch and caches res for a full TTL. A nil
// res caches nothing so the next caller retries the network. Nothing happens
// when f was invalidated while in flight.
func (uc *GetProducts) settle(f *cache.Future[ProductsResult], res *ProductsResult) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.inflight[ProductsCacheKey] != f {
		return
	}
	delete(uc.inflight, ProductsCacheKey)
	if res != nil {
		uc.results.Set(ProductsCacheKey, *res, uc.ttl)
	}
}
