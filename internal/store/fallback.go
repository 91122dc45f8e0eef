package store

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strconv"
	"time"

	"product-catalog-client/internal/domain"
)

// Keys of the persisted layout.
const (
	ProductsKey      = "products_cache"
	ProductKeyPrefix = "product_"
	FavoritesKey     = "favorites"
	CartKey          = "cart"
)

// DefaultMaxAge is the freshness ceiling for fallback reads.
const DefaultMaxAge = time.Hour

// ProductKey returns the key of a single persisted product.
func ProductKey(id int64) string {
	return ProductKeyPrefix + strconv.FormatInt(id, 10)
}

type productsRecord struct {
	Products  []domain.Product `json:"products"`
	Timestamp int64            `json:"timestamp"`
}

type productRecord struct {
	Product   *domain.Product `json:"product"`
	Timestamp int64           `json:"timestamp"`
}

// FallbackStore reads and writes the typed layout on top of a KeyValueStore.
// It is best effort: write failures are logged and dropped, read failures read
// as absent. Timestamps are Unix milliseconds.
type FallbackStore struct {
	kv     KeyValueStore
	clock  domain.Clock
	maxAge time.Duration
	logger *log.Logger
}

// NewFallbackStore wraps kv. Zero maxAge means DefaultMaxAge.
func NewFallbackStore(kv KeyValueStore, clock domain.Clock, maxAge time.Duration, logger *log.Logger) *FallbackStore {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &FallbackStore{kv: kv, clock: clock, maxAge: maxAge, logger: logger}
}

// SaveProducts stores the collection snapshot.
func (f *FallbackStore) SaveProducts(ctx context.Context, products []domain.Product) {
	if products == nil {
		products = []domain.Product{}
	}
	f.put(ctx, ProductsKey, productsRecord{Products: products, Timestamp: f.nowMillis()})
}

// LoadProducts returns the collection snapshot if it is younger than the ceiling.
func (f *FallbackStore) LoadProducts(ctx context.Context) ([]domain.Product, bool) {
	var rec productsRecord
	if !f.get(ctx, ProductsKey, &rec) || !f.fresh(rec.Timestamp) {
		return nil, false
	}
	if rec.Products == nil {
		rec.Products = []domain.Product{}
	}
	return rec.Products, true
}

// ClearProducts drops the collection snapshot.
func (f *FallbackStore) ClearProducts(ctx context.Context) {
	f.remove(ctx, ProductsKey)
}

// SaveProduct stores one product; nil records a confirmed absence.
func (f *FallbackStore) SaveProduct(ctx context.Context, id int64, product *domain.Product) {
	f.put(ctx, ProductKey(id), productRecord{Product: product, Timestamp: f.nowMillis()})
}

// LoadProduct returns the stored product if it is fresh and not a recorded absence.
func (f *FallbackStore) LoadProduct(ctx context.Context, id int64) (*domain.Product, bool) {
	var rec productRecord
	if !f.get(ctx, ProductKey(id), &rec) || !f.fresh(rec.Timestamp) || rec.Product == nil {
		return nil, false
	}
	return rec.Product, true
}

// RemoveProduct drops one stored product.
func (f *FallbackStore) RemoveProduct(ctx context.Context, id int64) {
	f.remove(ctx, ProductKey(id))
}

// RemoveAllProducts drops every single-product entry.
func (f *FallbackStore) RemoveAllProducts(ctx context.Context) {
	if err := f.kv.RemovePrefix(ctx, ProductKeyPrefix); err != nil {
		f.logger.Printf("WARN: fallback: failed to clear %q entries: %v", ProductKeyPrefix, err)
	}
}

// SaveFavorites stores the favorite ids.
func (f *FallbackStore) SaveFavorites(ctx context.Context, ids []int64) {
	f.putIDs(ctx, FavoritesKey, ids)
}

// LoadFavorites returns the stored favorite ids, empty when absent.
func (f *FallbackStore) LoadFavorites(ctx context.Context) []int64 {
	return f.getIDs(ctx, FavoritesKey)
}

// SaveCart stores the cart ids.
func (f *FallbackStore) SaveCart(ctx context.Context, ids []int64) {
	f.putIDs(ctx, CartKey, ids)
}

// LoadCart returns the stored cart ids, empty when absent.
func (f *FallbackStore) LoadCart(ctx context.Context) []int64 {
	return f.getIDs(ctx, CartKey)
}

func (f *FallbackStore) putIDs(ctx context.Context, key string, ids []int64) {
	if ids == nil {
		ids = []int64{}
	}
	f.put(ctx, key, ids)
}

func (f *FallbackStore) getIDs(ctx context.Context, key string) []int64 {
	var ids []int64
	if !f.get(ctx, key, &ids) || ids == nil {
		return []int64{}
	}
	return ids
}

func (f *FallbackStore) put(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		f.logger.Printf("WARN: fallback: failed to encode %q: %v", key, err)
		return
	}
	if err := f.kv.Set(ctx, key, data); err != nil {
		f.logger.Printf("WARN: fallback: failed to save %q: %v", key, err)
	}
}

func (f *FallbackStore) get(ctx context.Context, key string, dst any) bool {
	data, ok, err := f.kv.Get(ctx, key)
	if err != nil {
		f.logger.Printf("WARN: fallback: failed to read %q: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		f.logger.Printf("WARN: fallback: discarding unreadable %q: %v", key, err)
		return false
	}
	return true
}

func (f *FallbackStore) remove(ctx context.Context, key string) {
	if err := f.kv.Remove(ctx, key); err != nil {
		f.logger.Printf("WARN: fallback: failed to remove %q: %v", key, err)
	}
}

func (f *FallbackStore) nowMillis() int64 {
	return f.clock.Now().UnixMilli()
}

func (f *FallbackStore) fresh(timestamp int64) bool {
	age := f.clock.Now().Sub(time.UnixMilli(timestamp))
	return age < f.maxAge
}
