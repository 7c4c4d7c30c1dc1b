package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/carcatalog"
	"github.com/hazyhaar/carcatalog/carquery"
	"github.com/hazyhaar/carcatalog/enrich"
)

func TestRun_DetailsByIDOrSlug(t *testing.T) {
	// WHAT: -details accepts an id or a slug; an unknown ref fails with ErrNotFound.
	// WHY: Slugs are what users copy from URLs.
	var calls atomic.Int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"Trims":[]}`))
	}))
	defer up.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := func() *carcatalog.Config {
		return &carcatalog.Config{DBPath: carcatalog.MemoryDB, Upstream: carquery.UpstreamConfig{BaseURL: up.URL}}
	}

	for _, ref := range []string{"3", "honda-civic-2018"} {
		if err := run(context.Background(), logger, cfg(), ref, "", false); err != nil {
			t.Errorf("%s: %v", ref, err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("upstream calls: got %d, want 2", n)
	}

	err := run(context.Background(), logger, cfg(), "nope-nope-1999", "", false)
	if !errors.Is(err, enrich.ErrNotFound) {
		t.Errorf("unknown slug: got %v, want ErrNotFound", err)
	}
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	t.Setenv("CARQUERY_URL", "http://127.0.0.1:9/api/")
	cfg, err := resolveConfig("", ":9090", carcatalog.MemoryDB, "", "http://edge:8080")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBPath != carcatalog.MemoryDB || cfg.ProxyURL != "http://edge:8080" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Upstream.BaseURL != "http://127.0.0.1:9/api/" {
		t.Errorf("CARQUERY_URL not applied: %q", cfg.Upstream.BaseURL)
	}
}
