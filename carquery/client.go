package carquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/carcatalog/horosafe"
	"github.com/hazyhaar/carcatalog/kit"
)

// Client calls a Proxy served by another process over HTTP. It has the
// same Details signature as Proxy, so either can back the enrichment
// store.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the proxy at baseURL (scheme and host,
// optionally a path prefix). A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if err := horosafe.ValidateBaseURL(baseURL); err != nil {
		return nil, fmt.Errorf("carquery: client: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}, nil
}

// Details requests /proxy/details/{make}/{model}/{year}. A 400 answer
// wraps ErrBadRequest, any other non-2xx answer wraps ErrUpstream.
func (c *Client) Details(ctx context.Context, mk, model, year string) (*Detail, error) {
	target := c.baseURL + "/proxy/details/" +
		url.PathEscape(mk) + "/" + url.PathEscape(model) + "/" + url.PathEscape(year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("carquery: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := kit.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		if resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s", ErrBadRequest, e.Error)
		}
		return nil, fmt.Errorf("%w: proxy http %d: %s", ErrUpstream, resp.StatusCode, e.Error)
	}

	var d Detail
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("%w: json decode: %v", ErrUpstream, err)
	}
	if d.Trims == nil {
		d.Trims = []Trim{}
	}
	return &d, nil
}
