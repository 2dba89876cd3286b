package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pauljones0/deal-aggregator/internal/ai"
	"github.com/pauljones0/deal-aggregator/internal/api"
	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/config"
	"github.com/pauljones0/deal-aggregator/internal/enricher"
	"github.com/pauljones0/deal-aggregator/internal/notifier"
	"github.com/pauljones0/deal-aggregator/internal/processor"
	"github.com/pauljones0/deal-aggregator/internal/source"
	"github.com/pauljones0/deal-aggregator/internal/storage"
	"github.com/pauljones0/deal-aggregator/internal/util"
	"github.com/pauljones0/deal-aggregator/internal/validator"
)

const seedDealCount = 50

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	slog.Info("Starting deal aggregator server...")
	if err := run(); err != nil {
		slog.Error("Critical error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

// run owns every resource that needs closing, so failures return through its defers.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := context.Background()
	clk := clock.NewRealClock()

	store, err := openStore(ctx, cfg, clk)
	if err != nil {
		return fmt.Errorf("initializing %s store: %w", cfg.StoreBackend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	if cfg.SeedMockDeals {
		if _, err := storage.Seed(ctx, store, seedDealCount, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))); err != nil {
			slog.Error("Failed to seed mock deals", "error", err)
		}
	}

	src, err := source.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing %s deal source: %w", cfg.SourceMode, err)
	}

	e, err := newEnricher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing enricher: %w", err)
	}

	rw := util.AffiliateRewriter{AmazonTag: cfg.AmazonAffiliateTag, FlipkartAffiliateID: cfg.FlipkartAffiliateID}
	n := notifier.New(cfg.DiscordWebhookURL)
	p := processor.New(src, e, rw, validator.New(), store, n, cfg)

	runner := api.NewRunner(p, cfg.PipelineTimeout, clk)
	srv := api.NewServer(store, runner, cfg.SearchLimit)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		if err := runner.Wait(shutdownCtx); err != nil {
			slog.Warn("Pipeline runs still in flight at shutdown", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	<-idle
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, clk clock.Clock) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(clk), nil
	case config.BackendSQLite:
		return storage.NewSQLiteStore(cfg.SQLitePath, clk)
	case config.BackendMongo:
		return storage.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDBName, clk)
	case config.BackendFirestore:
		return storage.NewFirestoreStore(ctx, cfg.ProjectID, cfg.FirestoreCollection, clk)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND: %s", cfg.StoreBackend)
	}
}

func newEnricher(ctx context.Context, cfg *config.Config) (*enricher.Enricher, error) {
	catalogs := map[string]enricher.Catalog{
		util.SourceAmazon:   enricher.NewMockAmazonCatalog(cfg.CatalogRatePerSec),
		util.SourceFlipkart: enricher.NewMockFlipkartCatalog(cfg.CatalogRatePerSec),
	}

	var classifier enricher.Classifier
	gemini, err := ai.NewClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.DefaultCategory)
	if err != nil {
		return nil, err
	}
	if gemini != nil {
		classifier = gemini
		slog.Info("Using Gemini category classifier", "model", cfg.GeminiModel)
	}
	return enricher.New(catalogs, classifier, cfg.DefaultCategory), nil
}
