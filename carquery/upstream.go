// Package carquery is the boundary to the CarQuery vehicle-data API.
//
// The upstream schema is inconsistent: ids arrive as strings, numbers may
// be JSON numbers, numeric strings or null, and zero means "unknown". This
// package fetches the raw trims, normalizes them into a stable Detail and
// serves the result over HTTP.
package carquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/carcatalog/horosafe"
	"github.com/hazyhaar/carcatalog/observability"
)

// DefaultBaseURL is the public CarQuery endpoint.
const DefaultBaseURL = "https://www.carqueryapi.com/api/0.3/"

// defaultUserAgent is sent because CarQuery rejects unknown agents.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// UpstreamConfig describes how to reach CarQuery.
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	// MinInterval is the minimum spacing between upstream requests.
	MinInterval time.Duration `yaml:"min_interval"`
	MaxBytes    int64         `yaml:"max_bytes"`
}

func (c *UpstreamConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
}

// Upstream calls the CarQuery getTrims command.
type Upstream struct {
	client  *http.Client
	cfg     UpstreamConfig
	limiter *rate.Limiter
	metrics observability.Recorder
}

// UpstreamOption configures an Upstream.
type UpstreamOption func(*Upstream)

// WithMetrics records request latency by outcome and rate-limit waits.
func WithMetrics(r observability.Recorder) UpstreamOption {
	return func(u *Upstream) { u.metrics = r }
}

// NewUpstream creates an Upstream. A nil client gets one with cfg.Timeout.
func NewUpstream(cfg UpstreamConfig, client *http.Client, opts ...UpstreamOption) *Upstream {
	cfg.defaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	u := &Upstream{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *Upstream) observe(name string, start time.Time, outcome string) {
	if u.metrics == nil {
		return
	}
	var labels map[string]string
	if outcome != "" {
		labels = map[string]string{"outcome": outcome}
	}
	u.metrics.Record(observability.Timing(name, start, labels))
}

// rawTrim mirrors one element of the upstream "Trims" array.
type rawTrim struct {
	ModelID          text   `json:"model_id"`
	MakeDisplay      text   `json:"model_make_display"`
	Name             text   `json:"model_name"`
	Trim             text   `json:"model_trim"`
	Body             text   `json:"model_body"`
	EngineName       text   `json:"model_engine_name"`
	TransmissionName text   `json:"model_transmission_name"`
	DriveName        text   `json:"model_drive_name"`
	FuelName         text   `json:"model_fuel_name"`
	Doors            number `json:"model_doors"`
	Seats            number `json:"model_seats"`
	PriceMSRP        number `json:"model_price_msrp"`
	PriceInvoice     number `json:"model_price_invoice"`
	MPGCity          number `json:"model_mpg_city"`
	MPGHwy           number `json:"model_mpg_hwy"`
	MPGCombined      number `json:"model_mpg_comb"`
}

type trimsResponse struct {
	Trims []rawTrim `json:"Trims"`
}

// fetchTrims returns every trim for (make, model, year) in upstream order.
func (u *Upstream) fetchTrims(ctx context.Context, mk, model string, year int) ([]rawTrim, error) {
	waitStart := time.Now()
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("carquery: rate limit: %w", err)
	}
	u.observe(observability.MetricRateLimitWaitMs, waitStart, "")

	q := url.Values{}
	q.Set("cmd", "getTrims")
	q.Set("make", mk)
	q.Set("model", model)
	q.Set("year", strconv.Itoa(year))
	target := u.cfg.BaseURL
	if strings.Contains(target, "?") {
		target += "&" + q.Encode()
	} else {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("carquery: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", u.cfg.UserAgent)

	start := time.Now()
	outcome := "transport_error"
	defer func() { u.observe(observability.MetricUpstreamRequestMs, start, outcome) }()

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carquery: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "http_error"
		return nil, fmt.Errorf("carquery: http %d", resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, u.cfg.MaxBytes)
	if err != nil {
		outcome = "read_error"
		return nil, fmt.Errorf("carquery: read body: %w", err)
	}

	var out trimsResponse
	if err := json.Unmarshal(unwrapJSONP(body), &out); err != nil {
		outcome = "decode_error"
		return nil, fmt.Errorf("carquery: json decode: %w", err)
	}
	outcome = "ok"
	return out.Trims, nil
}

// unwrapJSONP strips a "callback(...);" wrapper when present.
func unwrapJSONP(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] == '{' || body[0] == '[' {
		return body
	}
	open := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if open < 0 || end <= open {
		return body
	}
	return bytes.TrimSpace(body[open+1 : end])
}

// text decodes a JSON string, number or null into a string.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("carquery: expected string, got %s", data)
	}
	*t = text(n.String())
	return nil
}

// number decodes a JSON number, numeric string, "" or null into a float.
// Anything that is not a number reads as 0, which upstream uses for
// "unknown" anyway.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			*n = 0
			return nil
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("carquery: expected number, got %s", data)
	}
	*n = number(f)
	return nil
}
