// Command carcatalog serves the car catalog API and the CarQuery proxy.
//
// Usage:
//
//	carcatalog -config carcatalog.yaml            # run with config file
//	carcatalog -addr :8080 -db carcatalog.db      # run with defaults
//	carcatalog -details 3                         # fetch one vehicle and exit
//	carcatalog -details honda-civic-2018          # same, by slug
//	carcatalog -search "toyota"                   # list matches and exit
//	carcatalog -mcp                               # MCP over stdio
//
// CARQUERY_URL overrides the upstream base URL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/carcatalog"
	"github.com/hazyhaar/carcatalog/filters"
)

func main() {
	configPath := flag.String("config", "", "path to carcatalog.yaml config file")
	addr := flag.String("addr", "", "listen address (default :8080)")
	dbPath := flag.String("db", "", "path to SQLite cache database, or :memory:")
	dataset := flag.String("dataset", "", "path to a vehicles JSON file (default: embedded)")
	proxyURL := flag.String("proxy-url", "", "base URL of a remote carcatalog proxy")
	detailsRef := flag.String("details", "", "fetch enrichment for a vehicle id or slug and exit")
	search := flag.String("search", "", "search the catalog and exit")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(*configPath, *addr, *dbPath, *dataset, *proxyURL)
	if err != nil {
		logger.Error("carcatalog: config", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, logger, cfg, *detailsRef, *search, *serveMCP); err != nil {
		logger.Error("carcatalog: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *carcatalog.Config, detailsRef, search string, serveMCP bool) error {
	svc, err := carcatalog.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// One-shot: details.
	if detailsRef != "" {
		view, err := svc.DetailsByRef(ctx, detailsRef)
		if err != nil {
			return fmt.Errorf("details: %w", err)
		}
		return printJSON(view)
	}

	// One-shot: search.
	if search != "" {
		return printJSON(svc.Search(filters.State{Search: search}))
	}

	if serveMCP {
		logger.Info("carcatalog: serving MCP on stdio")
		return svc.NewMCPServer().Run(ctx, &mcp.StdioTransport{})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("carcatalog: listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("carcatalog: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func resolveConfig(configPath, addr, dbPath, dataset, proxyURL string) (*carcatalog.Config, error) {
	cfg := &carcatalog.Config{}
	if configPath != "" {
		loaded, err := carcatalog.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags override the file.
	if addr != "" {
		cfg.Addr = addr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if dataset != "" {
		cfg.DatasetPath = dataset
	}
	if proxyURL != "" {
		cfg.ProxyURL = proxyURL
	}
	if u := os.Getenv("CARQUERY_URL"); u != "" {
		cfg.Upstream.BaseURL = u
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
