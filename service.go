// Package carcatalog is the car catalog service: the local vehicle
// dataset with URL-driven filters, and per-vehicle enrichment from the
// CarQuery API behind a persistent cache.
//
//	catalog ─┐
//	         ├─> enrich.Store ─> carquery.Proxy ─> CarQuery
//	kvstore ─┘        │                │
//	                  └── observability ┘  (metrics_timeseries, same db)
//
// Usage:
//
//	svc, err := carcatalog.New(cfg, logger)
//	defer svc.Close()
//	http.ListenAndServe(cfg.Addr, svc.Routes())
//	svc.RegisterMCP(mcpServer)
package carcatalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hazyhaar/carcatalog/carquery"
	"github.com/hazyhaar/carcatalog/catalog"
	"github.com/hazyhaar/carcatalog/enrich"
	"github.com/hazyhaar/carcatalog/filters"
	"github.com/hazyhaar/carcatalog/horosafe"
	"github.com/hazyhaar/carcatalog/idgen"
	"github.com/hazyhaar/carcatalog/kvstore"
	"github.com/hazyhaar/carcatalog/observability"
)

// Service wires the catalog, the proxy and the enrichment store.
type Service struct {
	config  *Config
	logger  *slog.Logger
	catalog *catalog.Repository
	proxy   *carquery.Proxy               // nil when ProxyURL is set
	store   *enrich.Store
	db      *kvstore.SQLite               // nil for MemoryDB
	metrics *observability.MetricsManager // nil for MemoryDB
	newID   idgen.Generator
}

// New loads the dataset, opens the cache database and restores the
// enrichment cache.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := loadCatalog(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}

	var kv enrich.KV
	var db *kvstore.SQLite
	var metrics *observability.MetricsManager
	if cfg.DBPath == MemoryDB {
		kv = &kvstore.Memory{}
	} else {
		db, err = kvstore.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		kv = db
		metrics, err = openMetrics(db, cfg.MetricsRetentionDays, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	var storeOpts []enrich.Option
	var upstreamOpts []carquery.UpstreamOption
	if metrics != nil {
		storeOpts = append(storeOpts, enrich.WithMetrics(metrics))
		upstreamOpts = append(upstreamOpts, carquery.WithMetrics(metrics))
	}

	fail := func(err error) (*Service, error) {
		if metrics != nil {
			metrics.Close()
		}
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	var fetcher enrich.Fetcher
	var proxy *carquery.Proxy
	if cfg.ProxyURL != "" {
		var hc *http.Client
		if cfg.Upstream.Timeout > 0 {
			hc = &http.Client{Timeout: cfg.Upstream.Timeout}
		}
		client, err := carquery.NewClient(cfg.ProxyURL, hc)
		if err != nil {
			return fail(err)
		}
		fetcher = client
	} else {
		if cfg.Upstream.BaseURL != "" {
			if err := horosafe.ValidateBaseURL(cfg.Upstream.BaseURL); err != nil {
				return fail(fmt.Errorf("carcatalog: upstream: %w", err))
			}
		}
		proxy = carquery.NewProxy(carquery.NewUpstream(cfg.Upstream, nil, upstreamOpts...), logger)
		fetcher = proxy
	}

	storeOpts = append(storeOpts, enrich.WithLogger(logger), enrich.WithStorageKey(cfg.StorageKey))
	store, err := enrich.New(context.Background(), repo, fetcher, kv, storeOpts...)
	if err != nil {
		return fail(err)
	}

	logger.Info("carcatalog: ready",
		"vehicles", repo.Len(), "cached", store.Len(),
		"db", cfg.DBPath, "remote_proxy", cfg.ProxyURL != "")

	return &Service{
		config:  cfg,
		logger:  logger,
		catalog: repo,
		proxy:   proxy,
		store:   store,
		db:      db,
		metrics: metrics,
		newID:   idgen.Default,
	}, nil
}

func openMetrics(db *kvstore.SQLite, retentionDays int, logger *slog.Logger) (*observability.MetricsManager, error) {
	if err := observability.Init(db.DB); err != nil {
		return nil, fmt.Errorf("carcatalog: metrics schema: %w", err)
	}
	mm := observability.NewMetricsManager(db.DB, observability.WithLogger(logger))
	n, err := mm.Cleanup(context.Background(), retentionDays)
	if err != nil {
		logger.Warn("carcatalog: metrics cleanup", "error", err)
	} else if n > 0 {
		logger.Info("carcatalog: metrics cleanup", "deleted", n)
	}
	return mm, nil
}

func loadCatalog(path string) (*catalog.Repository, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// Close flushes pending metrics and closes the cache database.
func (s *Service) Close() error {
	if s.metrics != nil {
		s.metrics.Close()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Catalog returns the vehicle dataset.
func (s *Service) Catalog() *catalog.Repository {
	return s.catalog
}

// Store returns the enrichment cache.
func (s *Service) Store() *enrich.Store {
	return s.store
}

// VehicleView is a vehicle with its slug.
type VehicleView struct {
	catalog.Vehicle
	Slug string `json:"slug"`
}

func viewOf(v catalog.Vehicle) VehicleView {
	return VehicleView{Vehicle: v, Slug: v.Slug()}
}

// Search returns the vehicles matching st, in dataset order.
func (s *Service) Search(st filters.State) []VehicleView {
	found := s.catalog.List()
	if !st.IsZero() {
		found = s.catalog.Filter(st)
	}
	out := make([]VehicleView, len(found))
	for i, v := range found {
		out[i] = viewOf(v)
	}
	return out
}

// Lookup resolves a numeric id or a slug.
func (s *Service) Lookup(ref string) (catalog.Vehicle, bool) {
	if id, err := strconv.Atoi(ref); err == nil {
		return s.catalog.Get(id)
	}
	return s.catalog.GetBySlug(ref)
}

// DetailsView is the enrichment state of one vehicle after a fetch.
// At most one of Details, Empty and Error is set.
type DetailsView struct {
	Vehicle VehicleView          `json:"vehicle"`
	Details *carquery.Enrichment `json:"details,omitempty"`
	Empty   bool                 `json:"empty"`
	Error   string               `json:"error,omitempty"`
}

// DetailsByRef is Details for a numeric id or a slug.
func (s *Service) DetailsByRef(ctx context.Context, ref string) (*DetailsView, error) {
	v, ok := s.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %q", enrich.ErrNotFound, ref)
	}
	return s.Details(ctx, v.ID)
}

// Details fetches (or reuses) the enrichment for id. Only an unknown id
// is an error; fetch failures are reported in the view.
func (s *Service) Details(ctx context.Context, id int) (*DetailsView, error) {
	v, ok := s.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", enrich.ErrNotFound, id)
	}
	rec, _ := s.store.FetchDetails(ctx, id)
	return &DetailsView{
		Vehicle: viewOf(v),
		Details: rec,
		Empty:   s.store.IsEmpty(id),
		Error:   s.store.Error(id),
	}, nil
}
