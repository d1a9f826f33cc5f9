package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rental-finder/api"
	"rental-finder/config"
	"rental-finder/fetch"
	"rental-finder/parser"
	"rental-finder/services"
	"rental-finder/storage"
	"rental-finder/utils"
)

func main() {
	enrichOnly := flag.Bool("enrich", false, "run one transit enrichment sweep and exit")
	refresh := flag.Bool("refresh", false, "with -enrich, also re-enrich rows that already have routes")
	flag.Parse()

	logger := utils.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Rental Finder starting ===")
	logger.Info("Config: backend %s | fetch %s | home %s (%.4f, %.4f) | concurrency %d | rate %v",
		cfg.StoreBackend, cfg.FetchMode, cfg.HomeLabel, cfg.Home.Lat, cfg.Home.Lon, cfg.MaxConcurrency, cfg.RateLimit)

	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 500 * time.Millisecond, Logger: logger}

	grid, closeGrid, err := openGrid(ctx, cfg, retry)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		os.Exit(1)
	}
	defer closeGrid()

	sheet, err := storage.NewSheetStore(ctx, grid, logger)
	if err != nil {
		logger.Error("Failed to open sheet: %v", err)
		os.Exit(1)
	}

	transit := services.NewTransLinkClient(cfg.TransitBaseURL, cfg.TransitAPIKey, cfg.TransitRadius, cfg.TransitTimeout)
	enricher := services.NewEnricher(sheet, transit, cfg.MaxConcurrency, cfg.RateLimit, 256, logger)

	if *enrichOnly {
		results, err := enricher.Sweep(ctx, *refresh)
		if err != nil {
			logger.Error("Enrichment sweep failed: %v", err)
			os.Exit(1)
		}
		services.NewSweepReport(results).Print(os.Stdout)
		return
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	logger.Info("Registered sources: %v", registry.Sources())

	fetcher, closeFetcher := buildFetcher(cfg, retry, logger)
	defer closeFetcher()

	archiver := openArchivers(ctx, cfg, logger)
	if archiver != nil {
		defer archiver.Close()
	}

	var queue services.RowQueue
	if cfg.AutoEnrich {
		queue = enricher
	}
	ingester := services.NewIngester(registry, fetcher, sheet, archiver, queue, logger)

	handler := api.NewHandler(ctx, ingester, enricher, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// let an in-flight sweep finish before the grid is closed
		handler.Wait()
		return err
	})
	if cfg.AutoEnrich {
		g.Go(func() error { return enricher.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("=== Rental Finder stopped ===")
}

func openGrid(ctx context.Context, cfg *config.Config, retry *utils.RetryConfig) (storage.Grid, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		g, err := storage.NewPostgresGrid(ctx, cfg.DSN(), cfg.GridKey, retry)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	case config.BackendMemory:
		return storage.NewMemoryGrid(), func() {}, nil
	default:
		g, err := storage.NewSheetsGrid(ctx, cfg.SheetID, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	}
}

func buildRegistry(cfg *config.Config) (*parser.Registry, error) {
	available := map[string]parser.Parser{
		"craigslist": parser.NewCraigslist(cfg.Home),
	}
	var enabled []parser.Parser
	for _, name := range cfg.Sources {
		p, ok := available[name]
		if !ok {
			return nil, errors.New("no parser for configured source " + name)
		}
		enabled = append(enabled, p)
	}
	return parser.NewRegistry(enabled...), nil
}

func buildFetcher(cfg *config.Config, retry *utils.RetryConfig, logger *utils.Logger) (fetch.Fetcher, func()) {
	if cfg.FetchMode == config.FetchBrowser {
		b := fetch.NewBrowserFetcher(cfg.ChromeBin, cfg.FetchTimeout, retry, logger)
		return b, b.Close
	}
	return fetch.NewHTTPFetcher(cfg.FetchTimeout, retry, logger), func() {}
}

// openArchivers returns the configured archivers, or nil when none are. An
// archiver that cannot be opened is skipped.
func openArchivers(ctx context.Context, cfg *config.Config, logger *utils.Logger) storage.RecordArchiver {
	var archivers storage.MultiArchiver

	if cfg.AuditCSVPath != "" {
		a, err := storage.NewCSVArchiver(cfg.AuditCSVPath)
		if err != nil {
			logger.Warn("CSV audit log disabled: %v", err)
		} else {
			archivers = append(archivers, a)
			logger.Info("Archiving listings to %s", cfg.AuditCSVPath)
		}
	}
	if cfg.MongoURI != "" {
		a, err := storage.NewMongoArchiver(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Warn("Mongo archive disabled: %v", err)
		} else {
			archivers = append(archivers, a)
			logger.Info("Archiving listings to MongoDB database %s", cfg.MongoDB)
		}
	}

	if len(archivers) == 0 {
		return nil
	}
	return archivers
}
