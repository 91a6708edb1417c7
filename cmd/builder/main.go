package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/config"
	"github.com/vyvo/modelpack/pkg/queue"
	"github.com/vyvo/modelpack/pkg/registry"
	"github.com/vyvo/modelpack/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadService()
	if err != nil {
		log.Fatalf("builder config: %v", err)
	}

	shutdownTracer := telemetry.InitTracer(context.Background(), "modelpack-builder", cfg.Telemetry, os.Stdout)
	defer func() { _ = shutdownTracer(context.Background()) }()

	root, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		log.Fatalf("workspace root: %v", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		log.Fatalf("workspace root: %v", err)
	}

	pipeline, err := cfg.PipelineOptions()
	if err != nil {
		log.Fatalf("builder pipeline config: %v", err)
	}

	srv := &server{
		root:     root,
		memStore: builder.NewMemStore(),
		pipeline: pipeline,
		notifier: registry.NewNotifier(cfg.RegistryURL, cfg.APIKey),
		apiKey:   cfg.APIKey,
		poll:     time.Second,
	}

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pg, err := builder.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("builder postgres init failed: %v", err)
		}
		srv.history = pg
		defer func() {
			if err := pg.Close(); err != nil {
				log.Printf("builder postgres close error: %v", err)
			}
		}()
	}

	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		q, err := queue.NewQueue(url)
		if err != nil {
			log.Fatalf("builder redis init failed: %v", err)
		}
		srv.queue = q
		defer q.Close()
		log.Printf("builds are handed to workers through redis")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("builder service listening on %s (workspace %s)", cfg.ListenAddr, root)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		log.Printf("builder service failed: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
