// Package state holds the session's canonical product state and the views
// derived from it.
package state

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/filter"
	"product-catalog-client/internal/usecase"
)

// DefaultRefreshInterval is how long a loaded collection is kept before
// LoadProducts fetches again.
const DefaultRefreshInterval = 5 * time.Minute

// DefaultPageSize is the initial pagination page size.
const DefaultPageSize = 20

// ProductsLoader fetches the collection.
type ProductsLoader interface {
	Fetch(ctx context.Context) (usecase.ProductsResult, error)
	InvalidateCache()
}

// ProductLoader fetches one product; nil means it does not exist.
type ProductLoader interface {
	Execute(ctx context.Context, id int64) (*domain.Product, error)
}

// Persistence keeps favorites and cart across sessions.
type Persistence interface {
	SaveFavorites(ctx context.Context, ids []int64)
	LoadFavorites(ctx context.Context) []int64
	SaveCart(ctx context.Context, ids []int64)
	LoadCart(ctx context.Context) []int64
}

type LoadingState struct {
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
}

type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	PageSize      int  `json:"pageSize"`
	TotalItems    int  `json:"totalItems"`
	HasMore       bool `json:"hasMore"`
	IsLoadingMore bool `json:"isLoadingMore"`
}

// State is the canonical session state. Favorites and cart may hold ids that
// are not in Products.
type State struct {
	Products        []domain.Product   `json:"products"`
	SelectedProduct *domain.Product    `json:"selectedProduct"`
	Loading         LoadingState       `json:"loadingState"`
	Pagination      Pagination         `json:"pagination"`
	Filters         domain.FilterState `json:"filters"`
	LastFetch       *time.Time         `json:"lastFetch"`
	Favorites       []int64            `json:"favorites"`
	Cart            []int64            `json:"cart"`
}

// Snapshot is a copy of the state at Version. Versions only grow.
type Snapshot struct {
	Version uint64 `json:"version"`
	State
}

// Options tunes a ProductStore. Zero values take defaults.
type Options struct {
	Clock           domain.Clock
	Logger          *log.Logger
	RefreshInterval time.Duration
	PageSize        int
}

type changed uint8

const (
	changedProducts changed = 1 << iota
	changedFilters
	changedFavorites
	changedCart
	changedOther
)

// versions counts changes per input so views recompute only when their inputs move.
type versions struct {
	all       uint64
	products  uint64
	filters   uint64
	favorites uint64
	cart      uint64
}

type memo[K comparable, V any] struct {
	key   K
	ok    bool
	value V
}

func (m *memo[K, V]) get(key K, compute func() V) V {
	if !m.ok || m.key != key {
		m.value = compute()
		m.key = key
		m.ok = true
	}
	return m.value
}

type pair [2]uint64

type views struct {
	filtered   memo[pair, []domain.Product]
	categories memo[uint64, []string]
	priceRange memo[uint64, domain.PriceRange]
	favorites  memo[pair, []domain.Product]
	cart       memo[pair, []domain.Product]
	cartTotal  memo[pair, float64]
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// ProductStore owns the session state. It changes only through its action
// methods, persists favorites and cart on every change to them and notifies
// subscribers after each change.
type ProductStore struct {
	products ProductsLoader
	product  ProductLoader
	persist  Persistence
	clock    domain.Clock
	logger   *log.Logger
	refresh  time.Duration
	pageSize int

	mu       sync.Mutex
	state    State
	versions versions
	views    views
	subs     []subscriber
	nextSub  int

	// persistMu serializes backend writes; mu is never held while waiting for it.
	persistMu      sync.Mutex
	savedFavorites uint64
	savedCart      uint64
}

// New creates a store with empty defaults. Call Hydrate to restore favorites and cart.
func New(products ProductsLoader, product ProductLoader, persist Persistence, opts Options) *ProductStore {
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	s := &ProductStore{
		products: products,
		product:  product,
		persist:  persist,
		clock:    opts.Clock,
		logger:   opts.Logger,
		refresh:  opts.RefreshInterval,
		pageSize: opts.PageSize,
	}
	s.state = s.initialState()
	return s
}

func (s *ProductStore) initialState() State {
	return State{
		Products:   []domain.Product{},
		Pagination: Pagination{CurrentPage: 1, PageSize: s.pageSize, HasMore: true},
		Filters:    domain.DefaultFilters(),
		Favorites:  []int64{},
		Cart:       []int64{},
	}
}

// Hydrate restores favorites and cart from persistence.
func (s *ProductStore) Hydrate(ctx context.Context) {
	favorites := uniqueIDs(s.persist.LoadFavorites(ctx))
	cart := uniqueIDs(s.persist.LoadCart(ctx))
	s.update(ctx, func(st *State) changed {
		st.Favorites = favorites
		st.Cart = cart
		return changedFavorites | changedCart
	}, false)
	s.logger.Printf("INFO: ProductStore: hydrated %d favorites and %d cart items", len(favorites), len(cart))
}

// LoadProducts fetches the collection unless the last successful load is
// younger than the refresh interval and force is false. Fetch failures end
// up in the loading state's error; the returned error is only ctx's.
func (s *ProductStore) LoadProducts(ctx context.Context, force bool) error {
	skip := false
	s.update(ctx, func(st *State) changed {
		if !force && st.LastFetch != nil && s.clock.Now().Sub(*st.LastFetch) < s.refresh {
			skip = true
			return 0
		}
		st.Loading = LoadingState{IsLoading: true}
		return changedOther
	}, false)
	if skip {
		return nil
	}

	if force {
		s.products.InvalidateCache()
	}
	res, err := s.products.Fetch(ctx)
	if err != nil {
		s.fail(ctx, err)
		return err
	}

	s.update(ctx, func(st *State) changed {
		if res.Source == usecase.SourceEmpty && res.Err != nil {
			st.Loading = LoadingState{Error: domain.UserMessage(res.Err)}
			return changedOther
		}
		st.Products = uniqueProducts(res.Products)
		st.Loading = LoadingState{}
		st.Pagination.TotalItems = len(st.Products)
		st.Pagination.HasMore = false
		if res.Source == usecase.SourceNetwork {
			now := s.clock.Now()
			st.LastFetch = &now
		}
		if st.SelectedProduct != nil {
			st.SelectedProduct = findProduct(st.Products, st.SelectedProduct.ID)
		}
		return changedProducts | changedOther
	}, false)
	if res.Err != nil {
		s.logger.Printf("WARN: ProductStore: products loaded from %s after fetch error: %v", res.Source, res.Err)
	}
	return nil
}

// uniqueProducts keeps the first product for every id.
func uniqueProducts(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	seen := make(map[int64]struct{}, len(products))
	for _, p := range products {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// LoadProductByID selects the product, fetching it when it is not loaded yet.
// A missing product is reported through the loading state's error.
func (s *ProductStore) LoadProductByID(ctx context.Context, id int64) error {
	found := false
	s.update(ctx, func(st *State) changed {
		if p := findProduct(st.Products, id); p != nil {
			found = true
			st.SelectedProduct = p
			return changedOther
		}
		st.Loading = LoadingState{IsLoading: true}
		return changedOther
	}, false)
	if found {
		return nil
	}

	p, err := s.product.Execute(ctx, id)
	if err != nil {
		s.fail(ctx, err)
		return err
	}
	s.update(ctx, func(st *State) changed {
		if p == nil {
			st.Loading = LoadingState{Error: domain.UserMessage(&domain.NotFoundError{Resource: "product", ID: id})}
			return changedOther
		}
		st.Loading = LoadingState{}
		if findProduct(st.Products, id) == nil {
			st.Products = append(slices.Clone(st.Products), *p)
		}
		st.SelectedProduct = findProduct(st.Products, id)
		return changedProducts | changedOther
	}, false)
	return nil
}

// SelectProduct selects p, or clears the selection when p is nil. Products that
// are not loaded are ignored and false is returned.
func (s *ProductStore) SelectProduct(p *domain.Product) bool {
	ok := true
	s.update(context.Background(), func(st *State) changed {
		if p == nil {
			if st.SelectedProduct == nil {
				return 0
			}
			st.SelectedProduct = nil
			return changedOther
		}
		selected := findProduct(st.Products, p.ID)
		if selected == nil {
			ok = false
			return 0
		}
		st.SelectedProduct = selected
		return changedOther
	}, false)
	return ok
}

// UpdateFilters merges patch into the current filters.
func (s *ProductStore) UpdateFilters(patch domain.FilterPatch) {
	s.update(context.Background(), func(st *State) changed {
		st.Filters = patch.Apply(st.Filters)
		return changedFilters
	}, false)
}

// ClearFilters restores the default filters.
func (s *ProductStore) ClearFilters() {
	s.update(context.Background(), func(st *State) changed {
		st.Filters = domain.DefaultFilters()
		return changedFilters
	}, false)
}

// ToggleFavorite adds or removes id from favorites.
func (s *ProductStore) ToggleFavorite(ctx context.Context, id int64) {
	s.update(ctx, func(st *State) changed {
		if slices.Contains(st.Favorites, id) {
			st.Favorites = without(st.Favorites, id)
		} else {
			st.Favorites = append(slices.Clone(st.Favorites), id)
		}
		return changedFavorites
	}, true)
}

func (s *ProductStore) AddToFavorites(ctx context.Context, id int64) {
	s.update(ctx, func(st *State) changed {
		if slices.Contains(st.Favorites, id) {
			return 0
		}
		st.Favorites = append(slices.Clone(st.Favorites), id)
		return changedFavorites
	}, true)
}

func (s *ProductStore) RemoveFromFavorites(ctx context.Context, id int64) {
	s.update(ctx, func(st *State) changed {
		if !slices.Contains(st.Favorites, id) {
			return 0
		}
		st.Favorites = without(st.Favorites, id)
		return changedFavorites
	}, true)
}

func (s *ProductStore) AddToCart(ctx context.Context, id int64) {
	s.update(ctx, func(st *State) changed {
		if slices.Contains(st.Cart, id) {
			return 0
		}
		st.Cart = append(slices.Clone(st.Cart), id)
		return changedCart
	}, true)
}

func (s *ProductStore) RemoveFromCart(ctx context.Context, id int64) {
	s.update(ctx, func(st *State) changed {
		if !slices.Contains(st.Cart, id) {
			return 0
		}
		st.Cart = without(st.Cart, id)
		return changedCart
	}, true)
}

func (s *ProductStore) ClearCart(ctx context.Context) {
	s.update(ctx, func(st *State) changed {
		st.Cart = []int64{}
		return changedCart
	}, true)
}

// ClearError drops the loading error.
func (s *ProductStore) ClearError() {
	s.update(context.Background(), func(st *State) changed {
		if st.Loading.Error == "" {
			return 0
		}
		st.Loading.Error = ""
		return changedOther
	}, false)
}

// Reset restores the initial state and persists the emptied favorites and cart.
func (s *ProductStore) Reset(ctx context.Context) {
	s.update(ctx, func(st *State) changed {
		*st = s.initialState()
		return changedProducts | changedFilters | changedFavorites | changedCart | changedOther
	}, true)
}

// FilteredProducts is the product list after the current filters.
func (s *ProductStore) FilteredProducts() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.views.filtered.get(pair{s.versions.products, s.versions.filters}, func() []domain.Product {
		return filter.Apply(s.state.Products, s.state.Filters)
	})
	return slices.Clone(out)
}

// Categories lists the distinct product categories in order.
func (s *ProductStore) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.views.categories.get(s.versions.products, func() []string {
		categories := make([]string, 0)
		for _, p := range s.state.Products {
			if p.Category != "" {
				categories = append(categories, p.Category)
			}
		}
		slices.Sort(categories)
		return slices.Compact(categories)
	})
	return slices.Clone(out)
}

// PriceRange spans the positive prices of the loaded products; zero when there are none.
func (s *ProductStore) PriceRange() domain.PriceRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views.priceRange.get(s.versions.products, func() domain.PriceRange {
		var r domain.PriceRange
		first := true
		for _, p := range s.state.Products {
			if p.Price <= 0 {
				continue
			}
			if first {
				r = domain.PriceRange{Min: p.Price, Max: p.Price}
				first = false
				continue
			}
			r.Min = min(r.Min, p.Price)
			r.Max = max(r.Max, p.Price)
		}
		return r
	})
}

// FavoriteProducts are the loaded products marked as favorite.
func (s *ProductStore) FavoriteProducts() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favoriteProductsLocked())
}

// CartProducts are the loaded products in the cart.
func (s *ProductStore) CartProducts() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cartProductsLocked())
}

// CartTotal sums the prices of CartProducts.
func (s *ProductStore) CartTotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views.cartTotal.get(pair{s.versions.products, s.versions.cart}, func() float64 {
		return domain.SumPrices(s.cartProductsLocked())
	})
}

func (s *ProductStore) favoriteProductsLocked() []domain.Product {
	return s.views.favorites.get(pair{s.versions.products, s.versions.favorites}, func() []domain.Product {
		return selectIDs(s.state.Products, s.state.Favorites)
	})
}

func (s *ProductStore) cartProductsLocked() []domain.Product {
	return s.views.cart.get(pair{s.versions.products, s.versions.cart}, func() []domain.Product {
		return selectIDs(s.state.Products, s.state.Cart)
	})
}

func (s *ProductStore) IsFavorite(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.state.Favorites, id)
}

func (s *ProductStore) InCart(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.state.Cart, id)
}

func (s *ProductStore) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Loading.IsLoading
}

// Error is the user-facing message of the last failed load, empty when none.
func (s *ProductStore) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Loading.Error
}

func (s *ProductStore) HasProducts() bool {
	return s.TotalProducts() > 0
}

func (s *ProductStore) TotalProducts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Products)
}

// Snapshot copies the current state.
func (s *ProductStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change and returns
// a function that removes it. fn runs on the goroutine that made the change;
// with concurrent writers snapshots may arrive out of order, so compare Version.
func (s *ProductStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
		})
	}
}

// update applies fn under the lock. When fn reports a change, versions are
// bumped, favorites and cart are written through if persist is set, and
// subscribers are notified.
func (s *ProductStore) update(ctx context.Context, fn func(*State) changed, persist bool) {
	s.mu.Lock()
	c := fn(&s.state)
	if c == 0 {
		s.mu.Unlock()
		return
	}
	s.bumpLocked(c)
	snap := s.snapshotLocked()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	if persist {
		s.flush(ctx, c)
	}
	for _, sub := range subs {
		sub.fn(snap)
	}
}

// flush writes the current favorites and cart named by c. It always writes the
// latest lists and skips a list whose version was already written, so the
// backend never moves back to an older list.
func (s *ProductStore) flush(ctx context.Context, c changed) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	favorites, favoritesVersion := slices.Clone(s.state.Favorites), s.versions.favorites
	cart, cartVersion := slices.Clone(s.state.Cart), s.versions.cart
	s.mu.Unlock()

	if c&changedFavorites != 0 && favoritesVersion > s.savedFavorites {
		s.persist.SaveFavorites(ctx, favorites)
		s.savedFavorites = favoritesVersion
	}
	if c&changedCart != 0 && cartVersion > s.savedCart {
		s.persist.SaveCart(ctx, cart)
		s.savedCart = cartVersion
	}
}

func (s *ProductStore) bumpLocked(c changed) {
	s.versions.all++
	if c&changedProducts != 0 {
		s.versions.products++
	}
	if c&changedFilters != 0 {
		s.versions.filters++
	}
	if c&changedFavorites != 0 {
		s.versions.favorites++
	}
	if c&changedCart != 0 {
		s.versions.cart++
	}
}

func (s *ProductStore) snapshotLocked() Snapshot {
	st := s.state
	st.Products = slices.Clone(st.Products)
	st.Favorites = slices.Clone(st.Favorites)
	st.Cart = slices.Clone(st.Cart)
	if st.SelectedProduct != nil {
		p := *st.SelectedProduct
		st.SelectedProduct = &p
	}
	if st.Filters.Category != nil {
		c := *st.Filters.Category
		st.Filters.Category = &c
	}
	if st.Filters.MinPrice != nil {
		v := *st.Filters.MinPrice
		st.Filters.MinPrice = &v
	}
	if st.Filters.MaxPrice != nil {
		v := *st.Filters.MaxPrice
		st.Filters.MaxPrice = &v
	}
	if st.LastFetch != nil {
		t := *st.LastFetch
		st.LastFetch = &t
	}
	return Snapshot{Version: s.versions.all, State: st}
}

func (s *ProductStore) fail(ctx context.Context, err error) {
	s.logger.Printf("ERROR: ProductStore: load failed: %v", err)
	s.update(ctx, func(st *State) changed {
		st.Loading = LoadingState{Error: domain.UserMessage(err)}
		return changedOther
	}, false)
}

func findProduct(products []domain.Product, id int64) *domain.Product {
	i := slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == id })
	if i < 0 {
		return nil
	}
	p := products[i]
	return &p
}

// selectIDs keeps the products whose id is in ids, in product order.
func selectIDs(products []domain.Product, ids []int64) []domain.Product {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]domain.Product, 0, len(ids))
	for _, p := range products {
		if _, ok := set[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

func without(ids []int64, id int64) []int64 {
	return slices.DeleteFunc(slices.Clone(ids), func(v int64) bool { return v == id })
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
