// Package client is a typed HTTP client for the food ordering API.
package client

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
	"sync"
	"time"

	"github.com/google/uuid"

	"food-ordering-api/apperr"
	"food-ordering-api/identity"
	"food-ordering-api/models"
	"food-ordering-api/orders"
)

const (
	DefaultTimeout = 30 * time.Second
	defaultRetries = 2
	defaultBackoff = 500 * time.Millisecond
)

// APIError is an error reply from the server.
type APIError struct {
	StatusCode int
	Kind       apperr.Kind
	Message    string
	Details    []apperr.FieldError
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.StatusCode, e.Kind, e.Message)
	for _, d := range e.Details {
		msg += fmt.Sprintf("; %s: %s", d.Field, d.Message)
	}
	return msg
}

// IsKind reports whether err is an *APIError of kind k.
func IsKind(err error, k apperr.Kind) bool {
	var e *APIError
	return errors.As(err, &e) && e.Kind == k
}

type Client struct {
	baseURL string
	http    *http.Client
	retries int
	backoff time.Duration
	sleep   func(context.Context, time.Duration) error

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets how many times an idempotent request is retried and the
// backoff step; the n-th retry waits n×step.
func WithRetry(retries int, step time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.backoff = step
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the API rooted at baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:5000"
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: DefaultTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type call struct {
	method    string
	path      string
	query     url.Values
	body      any
	headers   map[string]string
	retryable bool
}

// do sends the call and decodes a 2xx reply into out. Retryable calls are
// repeated on transport errors and 5xx replies.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	attempts := 1
	if cl.retryable {
		attempts += c.retries
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return err
			}
		}
		err := c.once(ctx, cl, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) once(ctx context.Context, cl call, payload []byte, out any) error {
	u := c.baseURL + "/" + strings.TrimLeft(cl.path, "/")
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", cl.method, cl.path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body apperr.Response
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Kind = body.Kind
		apiErr.Message = body.Error
		apiErr.Details = body.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

type authReply struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var res authReply
	err := c.do(ctx, call{
		method: http.MethodPost, path: "/api/auth/login", retryable: true,
		body: identity.LoginInput{Email: email, Password: password},
	}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return res.User, nil
}

// Register creates an account and keeps the returned token. It is not retried:
// a lost reply followed by a retry would report a duplicate email.
func (c *Client) Register(ctx context.Context, in identity.RegisterInput) (*models.User, error) {
	var res authReply
	if err := c.do(ctx, call{method: http.MethodPost, path: "/api/auth/register", body: in}, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return res.User, nil
}

func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/auth/me", retryable: true}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

type RestaurantQuery struct {
	Cuisine string
	Search  string
	Page    int
	Limit   int
}

type RestaurantPage struct {
	Restaurants []models.Restaurant `json:"restaurants"`
	Total       int64               `json:"total"`
	TotalPages  int                 `json:"totalPages"`
	CurrentPage int                 `json:"currentPage"`
}

func (c *Client) ListRestaurants(ctx context.Context, q RestaurantQuery) (*RestaurantPage, error) {
	v := url.Values{}
	if q.Cuisine != "" {
		v.Set("cuisine", q.Cuisine)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Page > 0 {
		v.Set("page", fmt.Sprint(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprint(q.Limit))
	}
	var page RestaurantPage
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/restaurants", query: v, retryable: true}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Menu returns the available items of a restaurant.
func (c *Client) Menu(ctx context.Context, restaurantID string) ([]models.MenuItem, error) {
	var items []models.MenuItem
	path := "/api/menus/restaurant/" + url.PathEscape(restaurantID)
	if err := c.do(ctx, call{method: http.MethodGet, path: path, retryable: true}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateOrder places an order. The request always carries an idempotency key,
// generated when in has none, so retrying it cannot order twice.
func (c *Client) CreateOrder(ctx context.Context, in orders.CreateOrderInput) (*models.Order, error) {
	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	var o models.Order
	err := c.do(ctx, call{
		method: http.MethodPost, path: "/api/orders", body: in, retryable: true,
		headers: map[string]string{"Idempotency-Key": key},
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) MyOrders(ctx context.Context) ([]models.Order, error) {
	var list []models.Order
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/orders/user", retryable: true}, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/orders/" + url.PathEscape(id), retryable: true}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateOrderStatus is sent exactly once.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, to models.OrderStatus, note string) (*models.Order, error) {
	var o models.Order
	err := c.do(ctx, call{
		method: http.MethodPut, path: "/api/orders/" + url.PathEscape(id) + "/status",
		body: map[string]string{"status": string(to), "note": note},
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
