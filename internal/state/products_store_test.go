package state

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/store"
	"product-catalog-client/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeProducts struct {
	mu          sync.Mutex
	calls       int
	invalidated int
	result      usecase.ProductsResult
	err         error
}

func (f *fakeProducts) Fetch(ctx context.Context) (usecase.ProductsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return usecase.ProductsResult{}, f.err
	}
	res := f.result
	res.Products = append([]domain.Product(nil), f.result.Products...)
	return res, nil
}

func (f *fakeProducts) InvalidateCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

type fakeProduct struct {
	calls    int
	products map[int64]domain.Product
	err      error
}

func (f *fakeProduct) Execute(ctx context.Context, id int64) (*domain.Product, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func item(id int64, title, category string, price float64) domain.Product {
	return domain.Product{ID: id, Title: title, Category: category, Price: price, Image: "https://img.example.com/p.png"}
}

func seed() []domain.Product {
	return []domain.Product{
		item(1, "Wireless Mouse", "electronics", 25),
		item(2, "Silver Ring", "jewelery", 150),
		item(3, "Denim Jacket", "men's clothing", 55.5),
		item(4, "Gift Card", "electronics", 0),
	}
}

type fixture struct {
	store    *ProductStore
	products *fakeProducts
	product  *fakeProduct
	persist  *store.FallbackStore
	clock    *domain.ManualClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := domain.NewManualClock(epoch)
	products := &fakeProducts{result: usecase.ProductsResult{Products: seed(), Source: usecase.SourceNetwork}}
	product := &fakeProduct{products: map[int64]domain.Product{9: item(9, "Desk Lamp", "electronics", 30)}}
	persist := store.NewFallbackStore(store.NewMemoryStore(), clock, 0, nil)
	s := New(products, product, persist, Options{Clock: clock})
	return fixture{store: s, products: products, product: product, persist: persist, clock: clock}
}

func ids(products []domain.Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestProductStore_InitialState(t *testing.T) {
	f := newFixture(t)
	snap := f.store.Snapshot()

	assert.Empty(t, snap.Products)
	assert.NotNil(t, snap.Favorites)
	assert.NotNil(t, snap.Cart)
	assert.Nil(t, snap.SelectedProduct)
	assert.Nil(t, snap.LastFetch)
	assert.Equal(t, domain.DefaultFilters(), snap.Filters)
	assert.Equal(t, Pagination{CurrentPage: 1, PageSize: DefaultPageSize, HasMore: true}, snap.Pagination)
	assert.False(t, f.store.HasProducts())
	assert.Equal(t, domain.PriceRange{}, f.store.PriceRange())
}

func TestProductStore_LoadProductsSkipsWithinRefreshInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.LoadProducts(ctx, false))
	assert.Equal(t, 4, f.store.TotalProducts())
	assert.False(t, f.store.IsLoading())

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, f.store.LoadProducts(ctx, false))
	assert.Equal(t, 1, f.products.calls)

	require.NoError(t, f.store.LoadProducts(ctx, true))
	assert.Equal(t, 2, f.products.calls)
	assert.Equal(t, 1, f.products.invalidated, "a forced load drops the shared cache first")

	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.store.LoadProducts(ctx, false))
	assert.Equal(t, 3, f.products.calls)
}

func TestProductStore_LoadProductsFailureSetsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.products.result = usecase.ProductsResult{
		Products: []domain.Product{},
		Source:   usecase.SourceEmpty,
		Err:      &domain.ServerError{Op: "list", Status: 503},
	}

	require.NoError(t, f.store.LoadProducts(ctx, false))
	assert.Equal(t, "Server error. Try again later.", f.store.Error())
	assert.False(t, f.store.HasProducts())
	assert.Nil(t, f.store.Snapshot().LastFetch)

	f.store.ClearError()
	assert.Empty(t, f.store.Error())

	f.products.result = usecase.ProductsResult{Products: seed()[:1], Source: usecase.SourceFallback, Err: &domain.ServerError{Op: "list", Status: 503}}
	require.NoError(t, f.store.LoadProducts(ctx, false))
	assert.Empty(t, f.store.Error(), "stale data is shown without an error")
	assert.Equal(t, 1, f.store.TotalProducts())
	assert.Nil(t, f.store.Snapshot().LastFetch, "degraded loads are retried on the next call")
}

func TestProductStore_LoadProductsContextError(t *testing.T) {
	f := newFixture(t)
	f.products.err = context.Canceled

	err := f.store.LoadProducts(context.Background(), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.store.IsLoading())
	assert.NotEmpty(t, f.store.Error())
}

func TestProductStore_DerivedViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))

	assert.Equal(t, []string{"electronics", "jewelery", "men's clothing"}, f.store.Categories())
	assert.Equal(t, domain.PriceRange{Min: 25, Max: 150}, f.store.PriceRange())

	category := "Electronics"
	f.store.UpdateFilters(domain.FilterPatch{Category: &category})
	assert.Equal(t, []int64{1, 4}, ids(f.store.FilteredProducts()))

	sortBy, order := domain.SortPrice, domain.SortDesc
	f.store.UpdateFilters(domain.FilterPatch{ClearCategory: true, SortBy: &sortBy, SortOrder: &order})
	assert.Equal(t, []int64{2, 3, 1, 4}, ids(f.store.FilteredProducts()))

	f.store.ClearFilters()
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(f.store.FilteredProducts()))
}

func TestProductStore_ViewsAreMemoized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))

	first := f.store.FilteredProducts()
	first[0].Title = "mutated by caller"
	assert.Equal(t, "Wireless Mouse", f.store.FilteredProducts()[0].Title)

	v := f.store.versions
	f.store.AddToCart(ctx, 1)
	assert.Equal(t, v.products, f.store.versions.products)
	assert.Equal(t, v.filters, f.store.versions.filters)
	assert.Equal(t, v.cart+1, f.store.versions.cart)
}

func TestProductStore_FavoritesRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))
	f.store.AddToFavorites(ctx, 2)
	before := f.store.Snapshot().Favorites

	f.store.ToggleFavorite(ctx, 7)
	assert.True(t, f.store.IsFavorite(7))
	assert.Equal(t, []int64{2, 7}, f.persist.LoadFavorites(ctx))

	f.store.ToggleFavorite(ctx, 7)
	assert.Equal(t, before, f.store.Snapshot().Favorites)
	assert.Equal(t, before, f.persist.LoadFavorites(ctx))
}

func TestProductStore_FavoritesToleratesUnknownIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))

	f.store.AddToFavorites(ctx, 99)
	f.store.AddToFavorites(ctx, 3)
	f.store.AddToFavorites(ctx, 3)
	assert.Equal(t, []int64{3}, ids(f.store.FavoriteProducts()))
	assert.Equal(t, []int64{99, 3}, f.store.Snapshot().Favorites)

	f.store.RemoveFromFavorites(ctx, 99)
	assert.False(t, f.store.IsFavorite(99))
	assert.Equal(t, []int64{3}, f.persist.LoadFavorites(ctx))
}

func TestProductStore_Cart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))

	f.store.AddToCart(ctx, 1)
	f.store.AddToCart(ctx, 3)
	f.store.AddToCart(ctx, 42)
	assert.Equal(t, []int64{1, 3}, ids(f.store.CartProducts()))
	assert.InDelta(t, 80.5, f.store.CartTotal(), 1e-9)
	assert.True(t, f.store.InCart(42))
	assert.Equal(t, []int64{1, 3, 42}, f.persist.LoadCart(ctx))

	f.store.RemoveFromCart(ctx, 1)
	assert.InDelta(t, 55.5, f.store.CartTotal(), 1e-9)

	f.store.ClearCart(ctx)
	assert.Zero(t, f.store.CartTotal())
	assert.Empty(t, f.persist.LoadCart(ctx))
}

func TestProductStore_Hydrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.persist.SaveFavorites(ctx, []int64{4, 2, 4})
	f.persist.SaveCart(ctx, []int64{1})

	f.store.Hydrate(ctx)
	snap := f.store.Snapshot()
	assert.Equal(t, []int64{4, 2}, snap.Favorites)
	assert.Equal(t, []int64{1}, snap.Cart)
}

func TestProductStore_Selection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))

	unknown := item(77, "Ghost", "electronics", 10)
	assert.False(t, f.store.SelectProduct(&unknown))
	assert.Nil(t, f.store.Snapshot().SelectedProduct)

	known := item(2, "stale title", "jewelery", 1)
	assert.True(t, f.store.SelectProduct(&known))
	assert.Equal(t, "Silver Ring", f.store.Snapshot().SelectedProduct.Title, "selection points at the loaded product")

	f.products.result = usecase.ProductsResult{Products: seed()[:1], Source: usecase.SourceNetwork}
	require.NoError(t, f.store.LoadProducts(ctx, true))
	assert.Nil(t, f.store.Snapshot().SelectedProduct, "selection is dropped when the product leaves the list")

	assert.True(t, f.store.SelectProduct(nil))
}

func TestProductStore_LoadProductByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))

	require.NoError(t, f.store.LoadProductByID(ctx, 2))
	assert.Equal(t, int64(2), f.store.Snapshot().SelectedProduct.ID)
	assert.Zero(t, f.product.calls, "loaded products are selected without a fetch")

	require.NoError(t, f.store.LoadProductByID(ctx, 9))
	snap := f.store.Snapshot()
	assert.Equal(t, int64(9), snap.SelectedProduct.ID)
	assert.Equal(t, []int64{1, 2, 3, 4, 9}, ids(snap.Products))

	require.NoError(t, f.store.LoadProductByID(ctx, 50))
	assert.Equal(t, "Resource not found.", f.store.Error())

	f.product.err = &domain.ValidationError{Field: "id", Message: "bad"}
	err := f.store.LoadProductByID(ctx, -1)
	assert.True(t, domain.IsValidation(err))
	assert.False(t, f.store.IsLoading())
}

func TestProductStore_Subscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var got []Snapshot
	unsubscribe := f.store.Subscribe(func(s Snapshot) { got = append(got, s) })

	f.store.AddToCart(ctx, 1)
	f.store.AddToCart(ctx, 1)
	require.Len(t, got, 1, "no-op actions do not notify")
	assert.Equal(t, []int64{1}, got[0].Cart)

	require.NoError(t, f.store.LoadProducts(ctx, false))
	require.Len(t, got, 3, "loading start and completion both notify")
	assert.True(t, got[1].Loading.IsLoading)
	assert.False(t, got[2].Loading.IsLoading)
	assert.Greater(t, got[2].Version, got[1].Version)

	unsubscribe()
	unsubscribe()
	f.store.ClearCart(ctx)
	assert.Len(t, got, 3)
}

func TestProductStore_Reset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.LoadProducts(ctx, false))
	f.store.AddToFavorites(ctx, 1)
	f.store.AddToCart(ctx, 2)
	term := "ring"
	f.store.UpdateFilters(domain.FilterPatch{SearchTerm: &term})

	f.store.Reset(ctx)
	snap := f.store.Snapshot()
	assert.Empty(t, snap.Products)
	assert.Empty(t, snap.Favorites)
	assert.Empty(t, snap.Cart)
	assert.Equal(t, domain.DefaultFilters(), snap.Filters)
	assert.Nil(t, snap.LastFetch)
	assert.Empty(t, f.persist.LoadFavorites(ctx))
	assert.Empty(t, f.persist.LoadCart(ctx))

	require.NoError(t, f.store.LoadProducts(ctx, false))
	assert.Equal(t, 2, f.products.calls, "reset forgets the last fetch time")
}

func TestProductStore_LoadProductsDropsDuplicateIDs(t *testing.T) {
	f := newFixture(t)
	dup := item(2, "Silver Ring Copy", "jewelery", 999)
	f.products.result.Products = append(seed(), dup, item(1, "Wireless Mouse Copy", "electronics", 1))

	require.NoError(t, f.store.LoadProducts(context.Background(), false))
	snap := f.store.Snapshot()
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(snap.Products))
	assert.Equal(t, "Silver Ring", snap.Products[1].Title, "the first occurrence wins")
	assert.Equal(t, 4, snap.Pagination.TotalItems)
	assert.Equal(t, domain.PriceRange{Min: 25, Max: 150}, f.store.PriceRange())
}

type slowPersistence struct {
	mu        sync.Mutex
	entered   chan struct{}
	release   chan struct{}
	favorites [][]int64
}

func (p *slowPersistence) SaveFavorites(_ context.Context, ids []int64) {
	p.entered <- struct{}{}
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.favorites = append(p.favorites, ids)
}

func (p *slowPersistence) LoadFavorites(context.Context) []int64 { return nil }
func (p *slowPersistence) SaveCart(context.Context, []int64) {}
func (p *slowPersistence) LoadCart(context.Context) []int64 { return nil }

func (p *slowPersistence) saved() [][]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.favorites)
}

func TestProductStore_SlowPersistenceDoesNotBlockReads(t *testing.T) {
	persist := &slowPersistence{entered: make(chan struct{}, 4), release: make(chan struct{})}
	s := New(&fakeProducts{}, &fakeProduct{}, persist, Options{Clock: domain.NewManualClock(epoch)})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.AddToFavorites(ctx, 1)
	}()
	<-persist.entered

	read := make(chan []int64, 1)
	go func() { read <- s.Snapshot().Favorites }()
	select {
	case got := <-read:
		assert.Equal(t, []int64{1}, got)
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked behind a fallback write")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.AddToFavorites(ctx, 2)
	}()
	require.Eventually(t, func() bool { return s.IsFavorite(2) }, time.Second, time.Millisecond)

	close(persist.release)
	wg.Wait()

	saved := persist.saved()
	require.NotEmpty(t, saved)
	assert.Equal(t, []int64{1}, saved[0])
	assert.Equal(t, []int64{1, 2}, saved[len(saved)-1], "the last write holds the latest favorites")
}
