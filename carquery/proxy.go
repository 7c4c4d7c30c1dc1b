package carquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/carcatalog/kit"
)

// Messages returned on the HTTP surface.
const (
	msgMissingParams = "Missing required parameters: make, model, year"
	msgInvalidYear   = "Invalid year: must be an integer"
	msgUpstream      = "Failed to fetch car details from CarQuery API"
)

// Proxy turns (make, model, year) into a normalized Detail. It holds no
// per-request state and is safe for concurrent use.
type Proxy struct {
	upstream *Upstream
	logger   *slog.Logger
}

// NewProxy creates a Proxy over upstream.
func NewProxy(upstream *Upstream, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{upstream: upstream, logger: logger}
}

// Details fetches and normalizes the trims for one vehicle. Missing or
// non-numeric input fails with ErrBadRequest before any upstream call;
// every upstream problem is reported as ErrUpstream.
func (p *Proxy) Details(ctx context.Context, mk, model, year string) (*Detail, error) {
	if mk == "" || model == "" || year == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, msgMissingParams)
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, msgInvalidYear)
	}

	trims, err := p.upstream.fetchTrims(ctx, mk, model, y)
	if err != nil {
		p.logger.Warn("carquery: upstream failed",
			"make", mk, "model", model, "year", y,
			"request_id", kit.GetRequestID(ctx), "error", err)
		return nil, ErrUpstream
	}

	p.logger.Debug("carquery: trims fetched",
		"make", mk, "model", model, "year", y, "trims", len(trims))
	return normalize(mk, model, y, trims), nil
}

// Routes mounts the proxy endpoint on r.
//
//	GET /proxy/details/{make}/{model}/{year}
//
// The tail is matched as a wildcard and split on "/", so a missing segment
// yields 400 rather than a routing 404.
func (p *Proxy) Routes(r chi.Router) {
	r.Get("/proxy/details/*", p.handleDetails)
}

func (p *Proxy) handleDetails(w http.ResponseWriter, r *http.Request) {
	parts := splitTail(chi.URLParam(r, "*"))
	var mk, model, year string
	if len(parts) > 0 {
		mk = parts[0]
	}
	if len(parts) > 1 {
		model = parts[1]
	}
	if len(parts) > 2 {
		year = parts[2]
	}

	d, err := p.Details(r.Context(), mk, model, year)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, d)
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrBadRequest.Error()+": "))
	default:
		writeError(w, http.StatusInternalServerError, msgUpstream)
	}
}

// splitTail splits a wildcard path on "/" and unescapes each segment.
func splitTail(tail string) []string {
	if tail == "" {
		return nil
	}
	parts := strings.Split(tail, "/")
	for i, s := range parts {
		if u, err := url.PathUnescape(s); err == nil {
			parts[i] = u
		}
	}
	return parts
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
