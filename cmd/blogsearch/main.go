// Package main wires together the blogsearch crawler and query service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/api"
	"github.com/JakeFAU/cnblogs-search/internal/clock/system"
	"github.com/JakeFAU/cnblogs-search/internal/config"
	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/dispatcher"
	"github.com/JakeFAU/cnblogs-search/internal/extract"
	collyfetcher "github.com/JakeFAU/cnblogs-search/internal/fetcher/colly"
	"github.com/JakeFAU/cnblogs-search/internal/hash/sha256"
	"github.com/JakeFAU/cnblogs-search/internal/id/uuid"
	"github.com/JakeFAU/cnblogs-search/internal/index"
	"github.com/JakeFAU/cnblogs-search/internal/logging"
	"github.com/JakeFAU/cnblogs-search/internal/metrics"
	"github.com/JakeFAU/cnblogs-search/internal/normalize"
	"github.com/JakeFAU/cnblogs-search/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/cnblogs-search/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/cnblogs-search/internal/publisher/pubsub"
	"github.com/JakeFAU/cnblogs-search/internal/search"
	"github.com/JakeFAU/cnblogs-search/internal/stats"
	gcsstorage "github.com/JakeFAU/cnblogs-search/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cnblogs-search/internal/storage/local"
	memorystorage "github.com/JakeFAU/cnblogs-search/internal/storage/memory"
	pgstorage "github.com/JakeFAU/cnblogs-search/internal/storage/postgres"
	"github.com/JakeFAU/cnblogs-search/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	crawlNow := flag.Bool("crawl", false, "Start a crawl run at startup")
	serve := flag.Bool("serve", true, "Serve the query API; with -serve=false the process exits after -crawl")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *crawlNow, *serve, logger); err != nil {
		logger.Error("blogsearch stopped with error", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // stop and sync were called above
	}
}

func run(ctx context.Context, cfg config.Config, crawlNow, serve bool, logger *zap.Logger) error {
	// The index is the only dependency whose failure is fatal.
	writer, err := index.Open(index.Config{Path: cfg.Index.Path, BatchSize: cfg.Index.BatchSize}, logger.Named("index"))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			logger.Error("index close failed", zap.Error(closeErr))
		}
	}()

	var trigger *dispatcher.Trigger
	if cfg.Crawler.Enabled || crawlNow {
		deps, cleanup, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		site := extract.NewSite(cfg.Site.BaseURL, cfg.Site.BloggerID, cfg.Site.Selectors)
		deps.Extractor = extract.New(site)
		w := worker.New(deps, worker.Config{
			ContentType:      cfg.Storage.ContentType,
			BlobPrefix:       cfg.Storage.Prefix,
			Topic:            cfg.PubSub.TopicName,
			MaxRetries:       cfg.Crawler.MaxRetries,
			RetryBackoffBase: cfg.RetryBackoff(),
		}, logger.Named("worker"))
		dispatch := dispatcher.New(w, writer, uuid.New(), dispatcher.Config{
			Workers:  cfg.Crawler.Concurrency,
			MaxPages: cfg.Crawler.MaxPages,
		}, logger.Named("dispatcher"))

		seeds := cfg.Crawler.Seeds
		if len(seeds) == 0 {
			seeds = []string{site.SeedURL()}
		}

		if !serve {
			_, err := dispatch.Run(ctx, seeds)
			if err != nil && !dispatcher.IsCancelled(err) {
				return fmt.Errorf("crawl run: %w", err)
			}
			return nil
		}
		trigger = dispatcher.NewTrigger(ctx, dispatch, seeds, logger.Named("dispatcher"))
		if crawlNow {
			trigger.Start()
		}
	}
	if !serve {
		logger.Info("nothing to do: -serve=false without crawling")
		return nil
	}

	opts := api.Options{RequestTimeout: cfg.RequestTimeout()}
	if trigger != nil {
		opts.Crawl = trigger
	}
	apiServer := api.NewServer(search.New(writer.Index(), logger.Named("search")), writer, opts, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port(cfg)),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port(cfg)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if trigger != nil {
		// Runs share ctx, so they are already draining in-flight targets.
		if err := trigger.Wait(shutdownCtx); err != nil {
			logger.Warn("crawl run did not drain before shutdown", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}

// buildPipeline assembles the crawl collaborators. The returned cleanup
// releases clients in reverse order of creation.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (worker.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: !cfg.Crawler.IgnoreRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	normalizer, err := normalize.New(normalize.Config{
		TimeLayout: cfg.Site.TimeLayout,
		TimeZone:   cfg.Site.TimeZone,
	}, logger.Named("normalize"))
	if err != nil {
		return worker.Deps{}, cleanup, fmt.Errorf("normalizer: %w", err)
	}

	deps := worker.Deps{
		Fetcher: fetcher,
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Crawler.RatePerSecond,
			DefaultBurst: cfg.Crawler.Burst,
		}),
		Normalizer: normalizer,
		Hasher:     sha256.New(),
		Clock:      system.New(),
	}
	if cfg.Stats.Enabled {
		deps.Stats = stats.New(fetcher, stats.Config{BaseURL: cfg.Site.BaseURL, Timeout: cfg.StatsTimeout()})
	}

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		cleanup()
		return worker.Deps{}, func() {}, err
	}
	closers = append(closers, closeBlobs)
	deps.BlobStore = blobs

	if cfg.DB.DSN != "" {
		pages, err := pgstorage.NewPageStore(ctx, pgstorage.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			cleanup()
			return worker.Deps{}, func() {}, fmt.Errorf("page ledger: %w", err)
		}
		closers = append(closers, pages.Close)
		if err := pages.EnsureSchema(ctx); err != nil {
			cleanup()
			return worker.Deps{}, func() {}, fmt.Errorf("page ledger schema: %w", err)
		}
		deps.PageStore = pages
	} else {
		deps.PageStore = memorystorage.NewPageStore()
	}

	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			cleanup()
			return worker.Deps{}, func() {}, fmt.Errorf("pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		closers = append(closers, func() {
			pub.Close()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub client close failed", zap.Error(err))
			}
		})
		deps.Publisher = pub
	} else {
		pub := memorypublisher.New(cfg.Crawler.PublishedBuffer)
		closers = append(closers, func() {
			logger.Info("in-process notifications", zap.Int("published", pub.Total()))
		})
		deps.Publisher = pub
	}

	return deps, cleanup, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (crawler.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return memorystorage.NewBlobStore(), func() {}, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, func() {}, fmt.Errorf("local blob store: %w", err)
		}
		return store, func() {}, nil
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, func() {}, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, func() {}, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// port honours the PORT variable set by Cloud Run.
func port(cfg config.Config) int {
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 {
		return p
	}
	return cfg.Server.Port
}
