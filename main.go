package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"price_tracker/api"
	"price_tracker/category"
	"price_tracker/config"
	"price_tracker/events"
	"price_tracker/httputil"
	"price_tracker/logging"
	"price_tracker/scheduler"
	"price_tracker/scraper"
	"price_tracker/services"
	"price_tracker/storage"
	"price_tracker/workers"
)

var (
	scrapeNow        = flag.Bool("scrape", false, "Run every search once and exit")
	searchOnce       = flag.String("search", "", "Run one search once and exit")
	serveAPI         = flag.Bool("api", false, "Serve the read API alongside the daemon")
	importCategories = flag.String("import-categories", "", "Import a category tree JSON file and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting price_tracker...")

	log.Printf("Loaded %d search configs", len(cfg.Searches))
	for id, search := range cfg.Searches {
		log.Printf("  - %s (%s)", search.Name, id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := storage.OpenCatalog(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer catalog.Close()
	if cfg.Database.Driver == "sqlite" {
		log.Printf("Catalog: sqlite %s", cfg.Database.Path)
	} else {
		log.Printf("Catalog: %s", storage.MaskConnectionString(cfg.Database.URL))
	}

	if *importCategories != "" {
		f, err := os.Open(*importCategories)
		if err != nil {
			log.Fatalf("Failed to open category file: %v", err)
		}
		defer f.Close()
		n, err := category.ImportTree(ctx, f, catalog)
		if err != nil {
			log.Fatalf("Category import failed: %v", err)
		}
		log.Printf("Imported %d categories", n)
		return
	}

	ops, err := storage.NewSQLiteStore(cfg.OpsDBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer ops.Close()
	log.Printf("SQLite database: %s", cfg.OpsDBPath)

	resolver := category.NewResolver(catalog)
	ingest := services.NewIngestService(catalog, resolver).WithLocation(cfg.Location)

	proxies, err := httputil.LoadProxies(cfg.Scraper.ProxiesFile)
	if err != nil {
		log.Fatalf("Failed to load proxies: %v", err)
	}
	log.Printf("Proxies: %d", len(proxies))
	clients := httputil.NewClients(proxies, cfg.Scraper.FetchTimeout)
	limiter := httputil.NewHostLimiter(
		time.Duration(cfg.Scraper.DelayMS)*time.Millisecond,
		time.Duration(cfg.Scraper.JitterMS)*time.Millisecond,
	)

	httpFetcher := scraper.NewHTTPFetcher(clients.Scraping, limiter, cfg.Scraper.MaxRetries)
	browserFetcher := scraper.NewBrowserFetcher(cfg.Scraper.BrowserDir, true, float64(cfg.Scraper.FetchTimeout.Milliseconds()))
	defer browserFetcher.Close()
	fetchers := scraper.Fetchers{
		"http":    httpFetcher,
		"browser": browserFetcher,
	}

	sink := events.LogSink{Logger: slog.Default().With("component", "pipeline")}
	orchestrator := scraper.NewOrchestrator(cfg, ops, fetchers, ingest, sink)

	// One-shot runs
	if *searchOnce != "" {
		log.Printf("Running search %s...", *searchOnce)
		if err := orchestrator.RunSearch(ctx, *searchOnce); err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		log.Println("Search complete!")
		return
	}
	if *scrapeNow {
		log.Println("Running scrape...")
		if err := orchestrator.RunAll(ctx); err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Println("Scrape complete!")
		return
	}

	// Daemon mode
	refreshWorker := workers.NewRefreshWorker(catalog, httpFetcher, ingest, sink)
	refreshWorker.SetLogger(workers.StoreLogger(ops))
	orchestrator.SetRefresher(refreshWorker)
	orchestrator.SetCategoryCache(resolver)
	go refreshWorker.Run(ctx, cfg.Refresh.Interval, cfg.Refresh.BatchSize, cfg.Refresh.Interval)
	log.Println("Refresh worker started")

	sched := scheduler.New(cfg, orchestrator, ops)

	readModel := services.NewReadModel(catalog, cfg.Location)
	if cfg.S3.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to configure S3: %v", err)
		}
		mediaWorker := workers.NewMediaWorker(catalog, uploader, clients.Direct)
		mediaWorker.SetLogger(workers.StoreLogger(ops))
		sched.SetMediaWorker(mediaWorker)
		readModel.WithImageURL(uploader.PublicURL)
		go mediaWorker.Run(ctx, 20, 2*time.Minute)
		log.Println("Media worker started")
	} else {
		log.Println("S3 not configured, image archiving disabled")
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	var srv *http.Server
	if *serveAPI {
		srv = &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           api.NewServer(readModel, slog.Default(), cfg.API.CORSOrigin),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("API listening on %s", cfg.API.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("API server failed: %v", err)
				stop()
			}
		}()
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("Shutting down...")
	sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	log.Println("Goodbye!")
}
