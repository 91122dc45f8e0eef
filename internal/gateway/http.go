package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"product-catalog-client/internal/domain"
)

const requestIDHeader = "X-Request-Id"

// errEmptyBody marks a 2xx response without a JSON document. The catalog API
// answers unknown product ids that way instead of with a 404.
var errEmptyBody = errors.New("gateway: empty response body")

// HTTPGateway implements Gateway over the catalog's REST API.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	rules   *domain.Rules
	logger  *log.Logger
}

// NewHTTPGateway creates a gateway for baseURL. A nil client gets one with timeout
// (zero timeout means requests are bounded only by their context).
func NewHTTPGateway(baseURL string, client *http.Client, timeout time.Duration, rules *domain.Rules, logger *log.Logger) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if rules == nil {
		rules = domain.NewRules(nil)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		rules:   rules,
		logger:  logger,
	}
}

func (g *HTTPGateway) List(ctx context.Context) ([]domain.Product, error) {
	var dtos []productDTO
	if err := g.do(ctx, "list", http.MethodGet, "/products", nil, nil, &dtos); err != nil {
		return nil, err
	}
	return fromDTOList(g.rules, g.logger, dtos), nil
}

// ListPage reads one page. The API does not report a total, so Total is the
// page length and HasMore is a guess based on a full page.
func (g *HTTPGateway) ListPage(ctx context.Context, opts domain.ListOptions) (domain.Page, error) {
	opts = opts.Clamped()
	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.Limit))
	query.Set("skip", strconv.Itoa(opts.Offset))

	var dtos []productDTO
	if err := g.do(ctx, "listPage", http.MethodGet, "/products", query, nil, &dtos); err != nil {
		return domain.Page{}, err
	}
	products := fromDTOList(g.rules, g.logger, dtos)
	return domain.Page{
		Products: products,
		Total:    len(products),
		HasMore:  len(products) == opts.Limit,
	}, nil
}

func (g *HTTPGateway) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if !domain.IsValidID(id) {
		return nil, &domain.ValidationError{Field: "id", Message: fmt.Sprintf("%d is not a positive integer", id)}
	}
	var dto productDTO
	err := g.do(ctx, "getById", http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, nil, &dto)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, errEmptyBody) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := fromDTO(g.rules, dto)
	if err != nil {
		g.logger.Printf("WARN: gateway: product %d payload is invalid: %v", id, err)
		return nil, nil
	}
	return &p, nil
}

// ListByCategory reads one category. A blank category reads the whole list.
func (g *HTTPGateway) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	normalized := domain.NormalizeCategory(category)
	if normalized == "" {
		return g.List(ctx)
	}
	var dtos []productDTO
	if err := g.do(ctx, "listByCategory", http.MethodGet, "/products/category/"+url.PathEscape(normalized), nil, nil, &dtos); err != nil {
		return nil, err
	}
	return fromDTOList(g.rules, g.logger, dtos), nil
}

func (g *HTTPGateway) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := g.do(ctx, "listCategories", http.MethodGet, "/products/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

func (g *HTTPGateway) Create(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	var dto productDTO
	if err := g.do(ctx, "create", http.MethodPost, "/products", nil, toBody(in), &dto); err != nil {
		return domain.Product{}, err
	}
	p, err := fromDTO(g.rules, dto)
	if err != nil {
		return domain.Product{}, fmt.Errorf("gateway: create returned an invalid product: %w", err)
	}
	return p, nil
}

func (g *HTTPGateway) Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	if !domain.IsValidID(id) {
		return domain.Product{}, &domain.ValidationError{Field: "id", Message: fmt.Sprintf("%d is not a positive integer", id)}
	}
	var dto productDTO
	err := g.do(ctx, "update", http.MethodPut, "/products/"+strconv.FormatInt(id, 10), nil, toBody(in), &dto)
	if err != nil {
		return domain.Product{}, err
	}
	if dto.ID == 0 {
		dto.ID = id
	}
	p, err := fromDTO(g.rules, dto)
	if err != nil {
		return domain.Product{}, fmt.Errorf("gateway: update returned an invalid product: %w", err)
	}
	return p, nil
}

func (g *HTTPGateway) Delete(ctx context.Context, id int64) (bool, error) {
	if !domain.IsValidID(id) {
		return false, &domain.ValidationError{Field: "id", Message: fmt.Sprintf("%d is not a positive integer", id)}
	}
	err := g.do(ctx, "delete", http.MethodDelete, "/products/"+strconv.FormatInt(id, 10), nil, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// do performs one request and decodes a JSON response into out when out is non-nil.
func (g *HTTPGateway) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	endpoint := g.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: %s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("gateway: %s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Printf("ERROR: gateway: %s %s failed (request %s): %v", method, endpoint, requestID, err)
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	g.logger.Printf("INFO: gateway: %s %s -> %d in %s (request %s)", method, endpoint, resp.StatusCode, time.Since(start).Round(time.Millisecond), requestID)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &domain.NotFoundError{Resource: "resource", ID: path}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &domain.ServerError{Op: op, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.RemoteError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("gateway: %s: failed to decode response: %w", op, err)
	}
	return nil
}
