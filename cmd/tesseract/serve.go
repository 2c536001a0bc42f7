package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/cache"
	"github.com/tesseract-olap/tesseract/internal/config"
	"github.com/tesseract-olap/tesseract/internal/geoservice"
	"github.com/tesseract-olap/tesseract/internal/logiclayer"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/schemaio"
	"github.com/tesseract-olap/tesseract/internal/server"

	_ "github.com/tesseract-olap/tesseract/internal/backend/clickhouse"
	_ "github.com/tesseract-olap/tesseract/internal/backend/mysql"
	_ "github.com/tesseract-olap/tesseract/internal/backend/postgres"
	_ "github.com/tesseract-olap/tesseract/internal/sqlgen/clickhouse"
	_ "github.com/tesseract-olap/tesseract/internal/sqlgen/mysql"
	_ "github.com/tesseract-olap/tesseract/internal/sqlgen/postgres"
)

func newServeCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tesseract HTTP server",
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootCommand) error {
	cfg := root.cfg
	logger := root.logger

	sch, err := loadSchema(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	store := schema.NewStore(sch)

	backends, err := connectBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defaultBackend, err := pickDefault(cfg, backends)
	if err != nil {
		return err
	}

	memberCache, err := cache.Build(ctx, defaultBackend, sch)
	if err != nil {
		return fmt.Errorf("building members cache: %w", err)
	}
	cacheStore := cache.NewStore(memberCache)

	logicLayerCfg, err := logiclayer.LoadConfig(cfg.LogicLayerPath)
	if err != nil {
		return fmt.Errorf("loading logic layer config: %w", err)
	}

	var geo *geoservice.Client
	if cfg.GeoserviceURL != "" {
		timeout := time.Duration(cfg.GeoserviceTimeoutS) * time.Second
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		geo = geoservice.New(cfg.GeoserviceURL, timeout)
	}

	reload := func(ctx context.Context) (*schema.Schema, *cache.Cache, error) {
		newSch, err := loadSchema(cfg.SchemaPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reloading schema: %w", err)
		}
		newCache, err := cache.Build(ctx, defaultBackend, newSch)
		if err != nil {
			return nil, nil, fmt.Errorf("rebuilding members cache: %w", err)
		}
		return newSch, newCache, nil
	}

	srv := &server.Server{
		Schema:     store,
		Cache:      cacheStore,
		Backend:    defaultBackend,
		Logger:     logger,
		Geo:        geo,
		LogicLayer: logicLayerCfg,
		Reload:     reload,
	}
	router := server.NewRouter(srv)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	logger.InfoContext(ctx, "starting server", "address", addr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- httpServer.ListenAndServe() }()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCtx.Done():
		logger.InfoContext(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		for _, b := range backends {
			_ = b.Close()
		}
	}
	return nil
}

func loadSchema(path string) (*schema.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(path, ".xml") {
		return schemaio.LoadXML(f)
	}
	return schemaio.LoadJSON(f)
}

func connectBackends(ctx context.Context, cfg *config.Config) (map[string]backend.Backend, error) {
	configs, err := cfg.BackendConfigs()
	if err != nil {
		return nil, err
	}
	out := make(map[string]backend.Backend, len(configs))
	for name, c := range configs {
		b, err := backend.New(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("connecting backend %q: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func pickDefault(cfg *config.Config, backends map[string]backend.Backend) (backend.Backend, error) {
	if cfg.DefaultSource != "" {
		b, ok := backends[cfg.DefaultSource]
		if !ok {
			return nil, fmt.Errorf("default_source %q not found among configured sources", cfg.DefaultSource)
		}
		return b, nil
	}
	if len(backends) == 1 {
		for _, b := range backends {
			return b, nil
		}
	}
	return nil, fmt.Errorf("default_source must be set when more than one source is configured")
}
