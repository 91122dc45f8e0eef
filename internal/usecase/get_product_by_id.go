package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"product-catalog-client/internal/cache"
	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/gateway"
	"product-catalog-client/internal/retry"
	"product-catalog-client/internal/store"
)

// DefaultProductTTL is how long a fetched product is shared with later callers.
const DefaultProductTTL = 10 * time.Minute

const (
	truncatedTitleLength = 50
	truncatedTitleSuffix = "..."
)

// ProductResult is the outcome of a single-product fetch. A nil Product with
// SourceNetwork means the catalog confirmed the product does not exist.
type ProductResult struct {
	Product *domain.Product
	Source  Source
	Err     error
}

// ProductMetadata is presentation data derived from a product.
type ProductMetadata struct {
	Slug           string    `json:"slug"`
	IsExpensive    bool      `json:"isExpensive"`
	TruncatedTitle string    `json:"truncatedTitle"`
	FormattedPrice string    `json:"formattedPrice"`
	RetrievedAt    time.Time `json:"retrievedAt"`
	CacheHit       bool      `json:"cacheHit"`
}

// EnrichedProduct pairs a product with its metadata.
type EnrichedProduct struct {
	Product  domain.Product  `json:"product"`
	Metadata ProductMetadata `json:"metadata"`
}

// ProductCacheStats summarizes the per-id cache.
type ProductCacheStats struct {
	TotalCached int
	Valid       int
	Oldest      time.Duration
	Newest      time.Duration
}

// GetProductByID fetches single products with one shared fetch per id.
type GetProductByID struct {
	gateway  gateway.Gateway
	fallback *store.FallbackStore
	clock    domain.Clock
	ttl      time.Duration
	logger   *log.Logger

	backoff retry.Backoff

	mu       sync.Mutex
	results  *cache.EntityCache[int64, ProductResult]
	inflight map[int64]*cache.Future[ProductResult]
}

// NewGetProductByID creates the single-product use case. Zero ttl means DefaultProductTTL
// and a nil fallback keeps the fallback in memory.
func NewGetProductByID(gw gateway.Gateway, fallback *store.FallbackStore, clock domain.Clock, ttl time.Duration, logger *log.Logger) *GetProductByID {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultProductTTL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if fallback == nil {
		fallback = store.NewFallbackStore(store.NewMemoryStore(), clock, 0, logger)
	}
	return &GetProductByID{
		gateway:  gw,
		fallback: fallback,
		clock:    clock,
		ttl:      ttl,
		logger:   logger,
		backoff:  retry.Immediate(),
		results:  cache.New[int64, ProductResult](clock),
		inflight: make(map[int64]*cache.Future[ProductResult]),
	}
}

// SetRetryBackoff changes the wait between ExecuteWithRetry attempts. A nil
// backoff resubmits immediately.
func (uc *GetProductByID) SetRetryBackoff(b retry.Backoff) {
	if b == nil {
		b = retry.Immediate()
	}
	uc.backoff = b
}

// Execute returns the product or nil when it does not exist or cannot be
// fetched and no fresh fallback copy exists. An invalid id fails with a
// *domain.ValidationError before any cache or network access.
func (uc *GetProductByID) Execute(ctx context.Context, id int64) (*domain.Product, error) {
	res, err := uc.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.Product, nil
}

// Fetch is Execute with the result's provenance.
func (uc *GetProductByID) Fetch(ctx context.Context, id int64) (ProductResult, error) {
	if err := validateID(id); err != nil {
		return ProductResult{}, err
	}
	res, err := uc.shared(ctx, id).Wait(ctx)
	if err != nil {
		return ProductResult{}, err
	}
	if res.Product != nil {
		p := *res.Product
		res.Product = &p
	}
	return res, nil
}

// ExecuteRequired is Execute that reports a missing product as *domain.NotFoundError.
func (uc *GetProductByID) ExecuteRequired(ctx context.Context, id int64) (domain.Product, error) {
	p, err := uc.Execute(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if p == nil {
		return domain.Product{}, &domain.NotFoundError{Resource: "product", ID: id}
	}
	return *p, nil
}

// ExecuteWithRetry resubmits a failed fetch up to maxRetries extra times,
// waiting per the retry backoff. Once they are used up it returns the fallback
// product the last attempt served, or the last fetch error when there was none.
func (uc *GetProductByID) ExecuteWithRetry(ctx context.Context, id int64, maxRetries int) (*domain.Product, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	attempt := 0
	var last ProductResult
	cfg := retry.Config{
		MaxAttempts: max(maxRetries, 0) + 1,
		Backoff:     uc.backoff,
		ShouldRetry: func(err error) bool {
			return !domain.IsValidation(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	}
	p, err := retry.DoWithResult(ctx, cfg, func() (*domain.Product, error) {
		attempt++
		res, err := uc.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		last = res
		if res.Err != nil {
			uc.logger.Printf("WARN: GetProductByID: attempt %d for product %d failed: %v", attempt, id, res.Err)
			return nil, res.Err
		}
		return res.Product, nil
	})
	if err != nil && ctx.Err() == nil && last.Source == SourceFallback && last.Product != nil {
		uc.logger.Printf("WARN: GetProductByID: retries for product %d exhausted, serving fallback copy", id)
		return last.Product, nil
	}
	return p, err
}

// Exists reports whether the product can be read. Invalid ids and failures read as false.
func (uc *GetProductByID) Exists(ctx context.Context, id int64) bool {
	if !domain.IsValidID(id) {
		return false
	}
	p, err := uc.Execute(ctx, id)
	if err != nil {
		uc.logger.Printf("ERROR: GetProductByID: exists check for product %d failed: %v", id, err)
		return false
	}
	return p != nil
}

// ExecuteEnriched returns the product with presentation metadata, or nil when absent.
func (uc *GetProductByID) ExecuteEnriched(ctx context.Context, id int64) (*EnrichedProduct, error) {
	hit := uc.isCacheHit(id)
	p, err := uc.Execute(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return &EnrichedProduct{
		Product: *p,
		Metadata: ProductMetadata{
			Slug:           p.Slug(),
			IsExpensive:    p.IsExpensive(),
			TruncatedTitle: p.TruncatedTitle(truncatedTitleLength, truncatedTitleSuffix),
			FormattedPrice: p.FormattedPrice(),
			RetrievedAt:    uc.clock.Now(),
			CacheHit:       hit,
		},
	}, nil
}

// InvalidateCache drops one product from memory, the gateway cache and the fallback store.
func (uc *GetProductByID) InvalidateCache(ctx context.Context, id int64) {
	uc.mu.Lock()
	uc.results.Invalidate(id)
	delete(uc.inflight, id)
	uc.mu.Unlock()

	if inv, ok := uc.gateway.(cacheInvalidator); ok {
		inv.InvalidateItem(id)
	}
	uc.fallback.RemoveProduct(ctx, id)
}

// InvalidateAllCache drops every product from memory, the gateway cache and the fallback store.
func (uc *GetProductByID) InvalidateAllCache(ctx context.Context) {
	uc.mu.Lock()
	uc.results.InvalidateAll()
	clear(uc.inflight)
	uc.mu.Unlock()

	if inv, ok := uc.gateway.(cacheInvalidator); ok {
		inv.InvalidateAll()
	}
	uc.fallback.RemoveAllProducts(ctx)
}

// CacheStats summarizes the per-id cache.
func (uc *GetProductByID) CacheStats() ProductCacheStats {
	s := uc.results.Stats()
	return ProductCacheStats{TotalCached: s.Entries, Valid: s.Valid, Oldest: s.Oldest, Newest: s.Newest}
}

func (uc *GetProductByID) isCacheHit(id int64) bool {
	_, ok := uc.results.Get(id)
	return ok
}

func (uc *GetProductByID) shared(ctx context.Context, id int64) *cache.Future[ProductResult] {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if res, ok := uc.results.Get(id); ok {
		f := cache.NewFuture[ProductResult]()
		f.Resolve(res, nil)
		return f
	}
	if f, ok := uc.inflight[id]; ok {
		return f
	}
	f := cache.NewFuture[ProductResult]()
	uc.inflight[id] = f
	go uc.fetch(context.WithoutCancel(ctx), id, f)
	return f
}

func (uc *GetProductByID) fetch(ctx context.Context, id int64, f *cache.Future[ProductResult]) {
	p, err := uc.gateway.GetByID(ctx, id)
	if err != nil {
		uc.logger.Printf("ERROR: GetProductByID: fetch of product %d failed, using fallback: %v", id, err)
		uc.settle(id, f, nil)
		f.Resolve(uc.degraded(ctx, id, err), nil)
		return
	}

	if p != nil {
		uc.checkProduct(*p)
	}
	uc.fallback.SaveProduct(ctx, id, p)
	res := ProductResult{Product: p, Source: SourceNetwork}
	uc.settle(id, f, &res)
	f.Resolve(res, nil)
}

func (uc *GetProductByID) degraded(ctx context.Context, id int64, cause error) ProductResult {
	if p, ok := uc.fallback.LoadProduct(ctx, id); ok {
		uc.logger.Printf("WARN: GetProductByID: serving product %d from fallback store", id)
		return ProductResult{Product: p, Source: SourceFallback, Err: cause}
	}
	return ProductResult{Source: SourceEmpty, Err: cause}
}

// settle retires f as the in-flight fetch for id and caches res for a full TTL.
// A nil res caches nothing.
func (uc *GetProductByID) settle(id int64, f *cache.Future[ProductResult], res *ProductResult) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.inflight[id] != f {
		return
	}
	delete(uc.inflight, id)
	if res != nil {
		uc.results.Set(id, *res, uc.ttl)
	}
}

// checkProduct logs data quality problems. They never reject the product.
func (uc *GetProductByID) checkProduct(p domain.Product) {
	if strings.TrimSpace(p.Title) == "" {
		uc.logger.Printf("WARN: GetProductByID: product %d has an empty title", p.ID)
	}
	if !p.HasValidImage() {
		uc.logger.Printf("WARN: GetProductByID: product %d has an invalid image URL %q", p.ID, p.Image)
	}
	if p.Price <= 0 {
		uc.logger.Printf("WARN: GetProductByID: product %d has a non-positive price %v", p.ID, p.Price)
	}
}

func validateID(id int64) error {
	if !domain.IsValidID(id) {
		return &domain.ValidationError{Field: "id", Message: fmt.Sprintf("%d is not a positive integer", id)}
	}
	return nil
}
