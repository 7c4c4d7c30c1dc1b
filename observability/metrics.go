// Package observability records timing datapoints for the enrichment path
// in SQLite: how long the store's fetches take and how they end, and how
// long upstream requests and rate-limit waits last.
//
// Record never blocks on the database. Datapoints are buffered and written
// in batches by a background goroutine; when the buffer is full, new
// datapoints are dropped.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric names.
const (
	// MetricFetchMs is one enrich.Store fetch; label "outcome" is one of
	// cached, empty, error, not_found.
	MetricFetchMs = "enrich_fetch_ms"
	// MetricUpstreamRequestMs is one CarQuery HTTP request; label
	// "outcome" is one of ok, transport_error, http_error, read_error,
	// decode_error.
	MetricUpstreamRequestMs = "carquery_upstream_request_ms"
	// MetricRateLimitWaitMs is the time spent waiting for the upstream
	// rate limiter before a request.
	MetricRateLimitWaitMs = "carquery_ratelimit_wait_ms"
)

// UnitMilliseconds is the unit of every timing metric.
const UnitMilliseconds = "milliseconds"

// Metric is a single datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit"`
}

// Recorder accepts datapoints.
type Recorder interface {
	Record(m *Metric)
}

// Timing builds a millisecond datapoint for an operation that began at
// start and ends now.
func Timing(name string, start time.Time, labels map[string]string) *Metric {
	now := time.Now()
	return &Metric{
		Name:      name,
		Timestamp: now,
		Value:     float64(now.Sub(start).Microseconds()) / 1000,
		Labels:    labels,
		Unit:      UnitMilliseconds,
	}
}

// MetricsOption configures a MetricsManager.
type MetricsOption func(*MetricsManager)

// WithBufferSize sets how many datapoints trigger an early flush.
// Default: 100. Up to ten times this many are held before dropping.
func WithBufferSize(n int) MetricsOption {
	return func(mm *MetricsManager) {
		if n > 0 {
			mm.bufferSize = n
		}
	}
}

// WithFlushInterval sets the periodic flush interval. Default: 5s.
func WithFlushInterval(d time.Duration) MetricsOption {
	return func(mm *MetricsManager) {
		if d > 0 {
			mm.flushInterval = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) MetricsOption {
	return func(mm *MetricsManager) {
		if l != nil {
			mm.logger = l
		}
	}
}

// MetricsManager is a Recorder that persists datapoints to
// metrics_timeseries. Call Init on the database first.
type MetricsManager struct {
	db            *sql.DB
	logger        *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []*Metric
	dropped int

	flushMu sync.Mutex // one batch written at a time, in order
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	closing sync.Once
}

// NewMetricsManager starts a manager writing to db.
func NewMetricsManager(db *sql.DB, opts ...MetricsOption) *MetricsManager {
	mm := &MetricsManager{
		db:            db,
		logger:        slog.Default(),
		bufferSize:    100,
		flushInterval: 5 * time.Second,
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(mm)
	}
	go mm.flushLoop()
	return mm
}

// Record queues m for persistence.
func (mm *MetricsManager) Record(m *Metric) {
	mm.mu.Lock()
	if len(mm.buffer) >= 10*mm.bufferSize {
		mm.dropped++
		mm.mu.Unlock()
		return
	}
	mm.buffer = append(mm.buffer, m)
	full := len(mm.buffer) >= mm.bufferSize
	mm.mu.Unlock()

	if full {
		select {
		case mm.kick <- struct{}{}:
		default:
		}
	}
}

// Flush writes every buffered datapoint in one transaction.
func (mm *MetricsManager) Flush(ctx context.Context) error {
	mm.flushMu.Lock()
	defer mm.flushMu.Unlock()

	mm.mu.Lock()
	batch := mm.buffer
	dropped := mm.dropped
	mm.buffer = nil
	mm.dropped = 0
	mm.mu.Unlock()

	if dropped > 0 {
		mm.logger.Warn("observability: buffer full, datapoints dropped", "dropped", dropped)
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("observability: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("observability: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		var labels sql.NullString
		if len(m.Labels) > 0 {
			b, err := json.Marshal(m.Labels)
			if err != nil {
				return fmt.Errorf("observability: labels %s: %w", m.Name, err)
			}
			labels = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.UnixMilli(), m.Value, labels, m.Unit); err != nil {
			return fmt.Errorf("observability: insert %s: %w", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("observability: commit: %w", err)
	}
	return nil
}

// Query returns the newest datapoints first, after flushing pending ones.
// An empty name matches every metric; limit <= 0 means no limit.
func (mm *MetricsManager) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	if err := mm.Flush(ctx); err != nil {
		return nil, err
	}

	q := `SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE timestamp >= ?`
	args := []any{since.UnixMilli()}
	if name != "" {
		q += ` AND metric_name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY timestamp DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			m      Metric
			ts     int64
			labels sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
			return nil, fmt.Errorf("observability: scan: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts)
		if labels.Valid {
			_ = json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than retentionDays and returns how
// many were removed. retentionDays <= 0 keeps everything.
func (mm *MetricsManager) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	threshold := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := mm.db.ExecContext(ctx, `DELETE FROM metrics_timeseries WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the background goroutine after a final flush.
func (mm *MetricsManager) Close() error {
	mm.closing.Do(func() { close(mm.stop) })
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.flush()
			return
		case <-ticker.C:
			mm.flush()
		case <-mm.kick:
			mm.flush()
		}
	}
}

func (mm *MetricsManager) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mm.Flush(ctx); err != nil {
		mm.logger.Error("observability: flush", "error", err)
	}
}
