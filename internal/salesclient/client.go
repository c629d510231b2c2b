// Package salesclient is the caller side of the sales API: a typed HTTP
// client, the editable sale draft and a controller that drives status
// transitions and keeps a refetched list of sales.
package salesclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ganacsi/ganacsi/internal/sales"
	"github.com/ganacsi/ganacsi/internal/shared"
)

// DefaultTimeout bounds every request unless overridden.
const DefaultTimeout = 30 * time.Second

// ErrNoToken is returned by a Session that holds no token.
var ErrNoToken = errors.New("salesclient: not signed in")

// TokenSource supplies the bearer token attached to each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns t.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// Session holds the token of the signed-in user.
type Session struct {
	mu    sync.RWMutex
	token string
}

// Set stores the token issued at login.
func (s *Session) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear signs the session out.
func (s *Session) Clear() {
	s.Set("")
}

// Token implements TokenSource.
func (s *Session) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// RequestError is a non-2xx response.
type RequestError struct {
	Status  int
	Message string
	Errors  json.RawMessage
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

// Validation decodes field errors carried by a 400 response.
func (e *RequestError) Validation() (sales.ValidationErrors, bool) {
	if e.Status != http.StatusBadRequest || len(e.Errors) == 0 {
		return nil, false
	}
	var out sales.ValidationErrors
	if err := json.Unmarshal(e.Errors, &out); err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

// NetworkError is a transport failure; no response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "an error occurred" }
func (e *NetworkError) Unwrap() error { return e.Err }

// Record is a sale as returned by the API together with the actions its
// status offers.
type Record struct {
	sales.Sale
	Actions []sales.Action `json:"actions"`
}

// Offers reports whether the server listed action for this record.
func (r Record) Offers(action sales.Action) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// ListOptions narrows List.
type ListOptions struct {
	Status     sales.Status
	CustomerID int64
	Page       int
	PerPage    int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	if o.CustomerID > 0 {
		q.Set("customer_id", strconv.FormatInt(o.CustomerID, 10))
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Client calls the sales endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient constructs a client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	Sales      []Record          `json:"sales"`
	Pagination shared.Pagination `json:"pagination"`
}

// List fetches one page of sales.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Record, shared.Pagination, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/api/sales"+opts.query(), nil, nil, &out); err != nil {
		return nil, shared.Pagination{}, err
	}
	return out.Sales, out.Pagination, nil
}

// Get fetches one sale.
func (c *Client) Get(ctx context.Context, id int64) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodGet, salePath(id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create submits a new sale. A non-empty idempotency key makes retries of
// the same submission return the sale created first.
func (c *Client) Create(ctx context.Context, payload sales.Payload, idempotencyKey string) (*Record, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{sales.IdempotencyHeader: []string{idempotencyKey}}
	}
	var out Record
	if err := c.do(ctx, http.MethodPost, "/api/sales", payload, header, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces a draft sale.
func (c *Client) Update(ctx context.Context, id int64, payload sales.Payload) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPut, salePath(id, ""), payload, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a sale.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, salePath(id, ""), nil, nil, nil)
}

// Confirm requests the confirm transition.
func (c *Client) Confirm(ctx context.Context, id int64) (*Record, error) {
	return c.transition(ctx, id, "confirm", nil)
}

// Cancel requests the cancel transition.
func (c *Client) Cancel(ctx context.Context, id int64) (*Record, error) {
	return c.transition(ctx, id, "cancel", nil)
}

type deliverBody struct {
	DeliveryDate string `json:"delivery_date,omitempty"`
}

// Deliver requests the deliver transition. A nil date lets the server use
// the current time.
func (c *Client) Deliver(ctx context.Context, id int64, date *time.Time) (*Record, error) {
	body := deliverBody{}
	if date != nil {
		body.DeliveryDate = date.Format(time.RFC3339)
	}
	return c.transition(ctx, id, "deliver", body)
}

func (c *Client) transition(ctx context.Context, id int64, action string, body any) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPatch, salePath(id, action), body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func salePath(id int64, action string) string {
	p := "/api/sales/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return &RequestError{Status: resp.StatusCode, Message: body.Message, Errors: body.Errors}
}
