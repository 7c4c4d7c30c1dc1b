package carcatalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/carcatalog/enrich"
	"github.com/hazyhaar/carcatalog/filters"
	"github.com/hazyhaar/carcatalog/observability"
	"github.com/hazyhaar/carcatalog/shield"
)

// Routes returns the HTTP handler:
//
//	GET /healthz
//	GET /proxy/details/{make}/{model}/{year}   (in-process proxy only)
//	GET /api/cars?search=&make=&yearFrom=&yearTo=
//	GET /api/cars/makes
//	GET /api/cars/{ref}                         (id or slug)
//	GET /api/cars/{id}/details
//	GET /api/metrics?name=&since=&limit=        (SQLite cache only)
//	    /mcp                                    (MCP streamable HTTP)
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.logger, s.newID) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"vehicles": s.catalog.Len(),
			"cached":   s.store.Len(),
		})
	})

	if s.proxy != nil {
		s.proxy.Routes(r)
	}

	r.Route("/api/cars", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/makes", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.catalog.Makes())
		})
		r.Get("/{ref}", s.handleVehicle)
		r.Get("/{ref}/details", s.handleDetails)
	})

	if s.metrics != nil {
		r.Get("/api/metrics", s.handleMetrics)
	}

	mcpSrv := s.NewMCPServer()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

	return r
}

type listResponse struct {
	Query string        `json:"query"`
	Count int           `json:"count"`
	Cars  []VehicleView `json:"cars"`
}

// handleList restores the filters from the request query the same way a
// browser view does, and answers with the canonical (sparse) query in
// Content-Location.
func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	loc, err := filters.NewURLLocation(r.URL.RequestURI())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}
	ctrl := filters.NewController(loc, shield.GetLogger(r.Context()))
	ctrl.Mount()
	st := ctrl.State()

	// Mount only writes when a filter was restored; junk keys or
	// unparsable values still need the canonical query.
	if loc.Query().Encode() != st.Query().Encode() {
		ctrl.SyncToURL()
	}

	if loc.Writes() > 0 {
		w.Header().Set("Content-Location", loc.String())
	}
	cars := s.Search(st)
	writeJSON(w, http.StatusOK, listResponse{
		Query: st.Query().Encode(),
		Count: len(cars),
		Cars:  cars,
	})
}

func (s *Service) handleVehicle(w http.ResponseWriter, r *http.Request) {
	v, ok := s.Lookup(chi.URLParam(r, "ref"))
	if !ok {
		writeError(w, http.StatusNotFound, "Car not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(v))
}

func (s *Service) handleDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id: must be an integer")
		return
	}
	view, err := s.Details(r.Context(), id)
	if errors.Is(err, enrich.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Car not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit: must be a non-negative integer")
			return
		}
		limit = n
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since: must be a duration like 1h")
			return
		}
		since = time.Now().Add(-d)
	}

	points, err := s.metrics.Query(r.Context(), q.Get("name"), since, limit)
	if err != nil {
		shield.GetLogger(r.Context()).Error("carcatalog: metrics query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if points == nil {
		points = []*observability.Metric{}
	}
	writeJSON(w, http.StatusOK, points)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
