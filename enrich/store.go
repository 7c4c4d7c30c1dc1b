// Package enrich caches per-vehicle enrichment fetched through the CarQuery
// proxy.
//
// Each vehicle id moves through uncached -> loading -> cached | empty |
// errored. Cached entries are served without touching the network until
// Reset; empty and errored ids are retried on the next FetchDetails. Only
// the cached entries are persisted.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/carcatalog/carquery"
	"github.com/hazyhaar/carcatalog/catalog"
	"github.com/hazyhaar/carcatalog/kit"
	"github.com/hazyhaar/carcatalog/observability"
)

// StorageKey is the KV key the cache is persisted under.
const StorageKey = "car-catalog-api-data"

var (
	// ErrNotFound is recorded when the id is not in the catalog.
	ErrNotFound = errors.New("enrich: vehicle not found")

	// ErrPersistenceCorrupt is returned by Decode for an unreadable blob.
	// New logs it and starts with an empty cache.
	ErrPersistenceCorrupt = errors.New("enrich: persisted cache is corrupt")
)

// Repository resolves vehicle ids.
type Repository interface {
	Get(id int) (catalog.Vehicle, bool)
}

// Fetcher returns the normalized detail for one vehicle. Both
// carquery.Proxy and carquery.Client satisfy it.
type Fetcher interface {
	Details(ctx context.Context, mk, model, year string) (*carquery.Detail, error)
}

// KV is the persistence medium.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStorageKey overrides StorageKey.
func WithStorageKey(key string) Option { return func(s *Store) { s.key = key } }

// WithMetrics records the duration and outcome of every network fetch.
func WithMetrics(r observability.Recorder) Option { return func(s *Store) { s.metrics = r } }

// Store is the enrichment cache. It is safe for concurrent use; concurrent
// fetches of one id share a single upstream call. Records handed out are
// copies, so callers may modify them.
type Store struct {
	repo    Repository
	fetcher Fetcher
	kv      KV
	logger  *slog.Logger
	key     string
	metrics observability.Recorder

	// An id is in at most one of cache and empty.
	mu      sync.RWMutex
	cache   map[int]*carquery.Enrichment
	errs    map[int]string
	empty   map[int]struct{}
	loading map[int]struct{}

	flight singleflight.Group

	// persistMu orders snapshot writes so an older one never lands last.
	persistMu sync.Mutex
}

// New creates a Store and loads the persisted cache from kv. A nil kv
// disables persistence. A corrupt blob is logged and ignored; a failing
// kv read is returned.
func New(ctx context.Context, repo Repository, fetcher Fetcher, kv KV, opts ...Option) (*Store, error) {
	s := &Store{
		repo:    repo,
		fetcher: fetcher,
		kv:      kv,
		logger:  slog.Default(),
		key:     StorageKey,
		cache:   make(map[int]*carquery.Enrichment),
		errs:    make(map[int]string),
		empty:   make(map[int]struct{}),
		loading: make(map[int]struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	if kv == nil {
		return s, nil
	}
	blob, ok, err := kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("enrich: load cache: %w", err)
	}
	if !ok {
		return s, nil
	}
	cache, err := Decode(blob)
	if err != nil {
		s.logger.Warn("enrich: discarding persisted cache", "key", s.key, "error", err)
		return s, nil
	}
	for id, rec := range cache {
		if !hasData(rec) {
			delete(cache, id)
			s.logger.Warn("enrich: dropping persisted entry without data", "id", id)
		}
	}
	s.cache = cache
	s.logger.Info("enrich: cache restored", "entries", len(cache))
	return s, nil
}

// FetchDetails returns the enrichment for id, fetching it on first use.
//
// It returns (rec, nil) when id is cached, (nil, nil) when upstream had
// nothing useful (IsEmpty reports true) and (nil, err) on failure. A
// failure is also recorded and readable through Error; it never affects
// other ids.
func (s *Store) FetchDetails(ctx context.Context, id int) (*carquery.Enrichment, error) {
	if rec, ok := s.Details(id); ok {
		return rec, nil
	}

	// A shared fetch is not tied to any one caller: a response that
	// arrives after the caller gave up is still cached.
	detached := context.WithoutCancel(ctx)
	v, err, shared := s.flight.Do(strconv.Itoa(id), func() (any, error) {
		return s.fetch(detached, id)
	})
	if shared {
		s.logger.Debug("enrich: joined in-flight fetch", "id", id)
	}
	rec, _ := v.(*carquery.Enrichment)
	return rec.Clone(), err
}

func (s *Store) fetch(ctx context.Context, id int) (*carquery.Enrichment, error) {
	s.mu.Lock()
	if rec, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return rec, nil
	}
	s.loading[id] = struct{}{}
	delete(s.errs, id)
	delete(s.empty, id)
	s.mu.Unlock()

	start := time.Now()
	outcome := "error"
	defer func() {
		s.mu.Lock()
		delete(s.loading, id)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.Record(observability.Timing(observability.MetricFetchMs, start,
				map[string]string{"outcome": outcome}))
		}
	}()

	v, ok := s.repo.Get(id)
	if !ok {
		outcome = "not_found"
		err := fmt.Errorf("%w: id %d", ErrNotFound, id)
		s.fail(ctx, id, err)
		return nil, err
	}

	detail, err := s.fetcher.Details(ctx, v.Make, v.Model, strconv.Itoa(v.Year))
	if err != nil {
		s.fail(ctx, id, err)
		return nil, err
	}

	rec := detail.Enrichment
	if rec.Trims == nil {
		rec.Trims = []carquery.Trim{}
	}

	if !hasData(&rec) {
		outcome = "empty"
		s.mu.Lock()
		s.empty[id] = struct{}{}
		s.mu.Unlock()
		s.logger.Info("enrich: no data upstream", "id", id,
			"make", v.Make, "model", v.Model, "year", v.Year)
		return nil, nil
	}

	outcome = "cached"
	s.mu.Lock()
	s.cache[id] = &rec
	s.mu.Unlock()
	s.logger.Info("enrich: cached", "id", id, "trims", len(rec.Trims))

	s.persist(ctx)
	return &rec, nil
}

func (s *Store) fail(ctx context.Context, id int, err error) {
	s.mu.Lock()
	s.errs[id] = message(err)
	s.mu.Unlock()
	s.logger.Warn("enrich: fetch failed", "id", id,
		"request_id", kit.GetRequestID(ctx), "error", err)
}

// message turns a fetch error into the text shown next to the vehicle.
func message(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "Car not found"
	case errors.Is(err, carquery.ErrUpstream):
		return "Failed to fetch car details from CarQuery API"
	case errors.Is(err, carquery.ErrBadRequest):
		return "Car details request was incomplete"
	default:
		return "Failed to fetch car details"
	}
}

// hasData reports whether rec carries at least one meaningful field.
func hasData(rec *carquery.Enrichment) bool {
	if nonEmpty(rec.Engine) || nonEmpty(rec.Transmission) || nonEmpty(rec.Drive) {
		return true
	}
	if nonZero(rec.Doors) || nonZero(rec.Seats) {
		return true
	}
	if fe := rec.FuelEconomy; fe != nil && (nonZero(fe.City) || nonZero(fe.Highway) || nonZero(fe.Combined)) {
		return true
	}
	if p := rec.Price; p != nil && (nonZero(p.MSRP) || nonZero(p.Invoice)) {
		return true
	}
	return len(rec.Trims) > 0
}

func nonEmpty(s *string) bool { return s != nil && *s != "" }

func nonZero[T int | float64](v *T) bool { return v != nil && *v != 0 }

// persist writes the whole cache under the storage key. Failures are
// logged; the in-memory cache stays authoritative.
func (s *Store) persist(ctx context.Context) {
	if s.kv == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	blob, err := Encode(s.cache)
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("enrich: encode cache", "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, blob); err != nil {
		s.logger.Error("enrich: persist cache", "key", s.key, "error", err)
	}
}

// Details returns a copy of the cached enrichment for id without fetching.
func (s *Store) Details(id int) (*carquery.Enrichment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cache[id]
	return rec.Clone(), ok
}

// Error returns the message recorded by the last failed fetch of id, or "".
func (s *Store) Error(id int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errs[id]
}

// IsEmpty reports whether the last fetch of id found no useful data.
func (s *Store) IsEmpty(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.empty[id]
	return ok
}

// IsLoading reports whether a fetch of id is in flight.
func (s *Store) IsLoading(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loading[id]
	return ok
}

// Loading reports whether any fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loading) > 0
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Reset drops every cached entry and per-id marker and persists the empty
// cache. In-flight fetches still complete and may repopulate their id.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.cache = make(map[int]*carquery.Enrichment)
	s.errs = make(map[int]string)
	s.empty = make(map[int]struct{})
	s.mu.Unlock()

	s.logger.Info("enrich: cache reset")
	s.persist(ctx)
}
