// Package remote is the typed client for the supply portal's HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/curamed/medisync/internal/store"
)

// ErrUnauthorized is returned on a 401 response. The portal web client
// redirects to login on this; the daemon surfaces it as a failed cycle and
// an auth.required event instead.
var ErrUnauthorized = errors.New("remote: unauthorized")

// APIError is a non-2xx response from the portal.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: server returned %d: %s", e.Status, e.Body)
}

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource backed by a fixed string.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Client issues requests against the portal API. All methods return an
// error for any network failure, timeout, or non-2xx status.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient creates a client with a fixed per-request timeout.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Health probes the portal's liveness endpoint. Any error means the portal
// is unreachable, regardless of link-level connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// CreateOrder posts a new order; the response carries the server-assigned id.
func (c *Client) CreateOrder(ctx context.Context, o *store.Order) (*store.Order, error) {
	var created store.Order
	if err := c.do(ctx, http.MethodPost, "/orders", o, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateOrder puts the full order record.
func (c *Client) UpdateOrder(ctx context.Context, o *store.Order) (*store.Order, error) {
	var updated store.Order
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d", o.ID), o, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteOrder removes an order server-side.
func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/orders/%d", id), nil, nil)
}

// CreateCustomer posts a new customer.
func (c *Client) CreateCustomer(ctx context.Context, cu *store.Customer) (*store.Customer, error) {
	var created store.Customer
	if err := c.do(ctx, http.MethodPost, "/customers", cu, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCustomer puts the full customer record.
func (c *Client) UpdateCustomer(ctx context.Context, cu *store.Customer) (*store.Customer, error) {
	var updated store.Customer
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/customers/%d", cu.ID), cu, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteCustomer removes a customer server-side.
func (c *Client) DeleteCustomer(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/customers/%d", id), nil, nil)
}

// CreateProduct posts a new product.
func (c *Client) CreateProduct(ctx context.Context, p *store.Product) (*store.Product, error) {
	var created store.Product
	if err := c.do(ctx, http.MethodPost, "/products", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct puts the full product record.
func (c *Client) UpdateProduct(ctx context.Context, p *store.Product) (*store.Product, error) {
	var updated store.Product
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d", p.ID), p, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct removes a product server-side.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil, nil)
}

// CreateNotification posts a new notification.
func (c *Client) CreateNotification(ctx context.Context, n *store.Notification) (*store.Notification, error) {
	var created store.Notification
	if err := c.do(ctx, http.MethodPost, "/notifications", n, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateNotification puts the full notification record (read receipts).
func (c *Client) UpdateNotification(ctx context.Context, n *store.Notification) (*store.Notification, error) {
	var updated store.Notification
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d", n.ID), n, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteNotification removes a notification server-side.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil, nil)
}

// CreateDistributor posts a new distributor.
func (c *Client) CreateDistributor(ctx context.Context, d *store.Distributor) (*store.Distributor, error) {
	var created store.Distributor
	if err := c.do(ctx, http.MethodPost, "/distributors", d, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateDistributor puts the full distributor record.
func (c *Client) UpdateDistributor(ctx context.Context, d *store.Distributor) (*store.Distributor, error) {
	var updated store.Distributor
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/distributors/%d", d.ID), d, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteDistributor removes a distributor server-side.
func (c *Client) DeleteDistributor(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/distributors/%d", id), nil, nil)
}

// DownloadChanges fetches all server-side changes newer than since. A nil
// since means "everything" and is used on the first-ever sync.
func (c *Client) DownloadChanges(ctx context.Context, since *time.Time) (*store.ChangeSet, error) {
	path := "/sync/download"
	if since != nil {
		path += "?lastSync=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var cs store.ChangeSet
	if err := c.do(ctx, http.MethodGet, path, nil, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
