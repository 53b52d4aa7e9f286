package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"price_tracker/api"
	"price_tracker/config"
	"price_tracker/logging"
	"price_tracker/services"
	"price_tracker/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup("api.log", cfg.LogLevel)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := storage.OpenCatalog(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer catalog.Close()

	reader := services.NewReadModel(catalog, cfg.Location)
	if cfg.S3.Enabled() {
		s3cfg := cfg.S3
		reader.WithImageURL(func(key string) string { return storage.PublicURL(s3cfg, key) })
	}
	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewServer(reader, slog.Default(), cfg.API.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("API listening on %s", cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("API server failed: %v", err)
	}
	log.Println("API stopped")
}
