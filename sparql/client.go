// Package sparql provides a SPARQL 1.1 protocol client for the graph store.
//
// Every request is sent with the sudo header so the service can read and
// write across tenant partitions the end caller has no access to. The store
// offers no cross-call transaction isolation; atomicity ends at a single
// query or update.
package sparql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Store is the read/write interface the engine components depend on.
// Query returns zero bindings for an empty result; errors are reserved for
// connectivity and store failures.
type Store interface {
	Query(ctx context.Context, query string) (*Results, error)
	Update(ctx context.Context, update string) error
}

const sudoHeader = "mu-auth-sudo"

// defaultRequestTimeout bounds a single query or update. Callers that
// detach cancellation on a mutation path still cannot hang on the store.
const defaultRequestTimeout = 30 * time.Second

// Client talks to a SPARQL endpoint over HTTP with elevated privileges.
type Client struct {
	queryEndpoint  string
	updateEndpoint string
	httpClient     *http.Client
	requestTimeout time.Duration
}

var _ Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestTimeout overrides the per-request deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// NewClient creates a store client for the given query and update endpoints.
func NewClient(queryEndpoint, updateEndpoint string, options ...Option) *Client {
	c := &Client{
		queryEndpoint:  queryEndpoint,
		updateEndpoint: updateEndpoint,
		httpClient:     http.DefaultClient,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Query executes a SELECT query and parses the JSON results.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	body, err := c.post(ctx, c.queryEndpoint, url.Values{"query": {query}})
	if err != nil {
		return nil, err
	}

	var results Results
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, errors.Wrap(err, "[Client.Query] decoding results")
	}
	return &results, nil
}

// Update executes an INSERT DATA or DELETE WHERE statement set.
func (c *Client) Update(ctx context.Context, update string) error {
	_, err := c.post(ctx, c.updateEndpoint, url.Values{"update": {update}})
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.post] building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set(sudoHeader, "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.post] store unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.post] reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("[Client.post] store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
