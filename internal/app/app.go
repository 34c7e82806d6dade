// Package app wires configuration into concrete providers, jobs, the
// scheduler and the admin API. It is the only place that knows which
// backend implements which interface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/api"
	"github.com/metaltracker/parser-service/internal/database"
	"github.com/metaltracker/parser-service/internal/fetch"
	"github.com/metaltracker/parser-service/internal/fetch/collyfetch"
	"github.com/metaltracker/parser-service/internal/fetch/flaresolverr"
	"github.com/metaltracker/parser-service/internal/fetch/headless"
	"github.com/metaltracker/parser-service/internal/images"
	"github.com/metaltracker/parser-service/internal/jobs"
	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/parser/osmose"
	"github.com/metaltracker/parser-service/internal/queue"
	queuememory "github.com/metaltracker/parser-service/internal/queue/memory"
	"github.com/metaltracker/parser-service/internal/scheduler"
	"github.com/metaltracker/parser-service/internal/storage"
	storagememory "github.com/metaltracker/parser-service/internal/storage/memory"
	"github.com/metaltracker/parser-service/internal/storage/postgres"
	"github.com/metaltracker/parser-service/internal/store"
	"github.com/metaltracker/parser-service/pkg/config"
)

// App holds the long-lived services of the parser service.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool      *pgxpool.Pool
	sessions  store.SessionStore
	outbox    store.OutboxStore
	catalogue store.CatalogueStore
	bandRefs  store.BandReferenceStore

	blobs   storage.Provider
	bus     queue.Provider
	fetcher fetch.PageFetcher

	registry  *parser.Registry
	scheduler *scheduler.Scheduler
	server    *api.Server
}

// New builds every service from configuration, failing fast when a
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		return nil, err
	}
	if err := a.initBus(ctx); err != nil {
		return nil, err
	}

	fetcher, err := a.newFetcher()
	if err != nil {
		return nil, err
	}
	a.fetcher = fetcher
	if err := a.initRegistry(fetcher); err != nil {
		return nil, err
	}
	if err := a.initScheduler(); err != nil {
		return nil, err
	}

	a.server = api.NewServer(a.sessions, a.catalogue, logger.Named("api"))
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.cfg.Stores.Provider {
	case "postgres":
		if a.cfg.Database.RunMigrations {
			version, dirty, err := database.RunMigrations(a.cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			a.logger.Info("Migrations applied",
				zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: a.cfg.Database.DSN})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		if a.sessions, err = postgres.NewSessionStore(pool); err != nil {
			return err
		}
		if a.outbox, err = postgres.NewOutboxStore(pool); err != nil {
			return err
		}
		if a.catalogue, err = postgres.NewCatalogueStore(pool); err != nil {
			return err
		}
		if a.bandRefs, err = postgres.NewBandReferenceStore(pool); err != nil {
			return err
		}
		a.logger.Info("Using postgres stores")
	case "memory":
		a.sessions = storagememory.NewSessionStore()
		a.outbox = storagememory.NewOutboxStore()
		a.catalogue = storagememory.NewCatalogueStore()
		a.bandRefs = storagememory.NewBandReferenceStore()
		a.logger.Warn("Using in-memory stores, state is lost on restart")
	default:
		return fmt.Errorf("unknown stores provider %q", a.cfg.Stores.Provider)
	}
	return nil
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case "gcs":
		provider, err := storage.NewGCSProvider(ctx, a.cfg.Storage.GCSBucket)
		if err != nil {
			return fmt.Errorf("connect gcs: %w", err)
		}
		a.blobs = provider
		a.logger.Info("Using GCS blob storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case "memory":
		a.blobs = storagememory.NewBlobStore()
		a.logger.Warn("Using in-memory blob storage")
	case "noop":
		a.blobs = &storage.NoOpProvider{}
		a.logger.Warn("Blob storage disabled, chunks and covers are discarded")
	default:
		return fmt.Errorf("unknown storage provider %q", a.cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initBus(ctx context.Context) error {
	switch a.cfg.Queue.Provider {
	case "pubsub":
		provider, err := queue.NewPubSubProvider(ctx, a.cfg.Queue.ProjectID, a.cfg.Queue.TopicID)
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		a.bus = provider
		a.logger.Info("Using GCP Pub/Sub", zap.String("topic", a.cfg.Queue.TopicID))
	case "memory":
		a.bus = queuememory.NewQueue()
		a.logger.Warn("Using in-memory message bus")
	case "noop":
		a.bus = &queue.NoOpProvider{}
		a.logger.Warn("Message bus disabled, publication events are discarded")
	default:
		return fmt.Errorf("unknown queue provider %q", a.cfg.Queue.Provider)
	}
	return nil
}

func (a *App) newFetcher() (fetch.PageFetcher, error) {
	timeout := time.Duration(a.cfg.Fetch.TimeoutSeconds) * time.Second
	switch a.cfg.Fetch.Provider {
	case "colly":
		return collyfetch.New(collyfetch.Config{
			UserAgent: a.cfg.Parser.UserAgent,
			Timeout:   timeout,
		}), nil
	case "flaresolverr":
		client, err := flaresolverr.New(flaresolverr.Config{
			Endpoint:   a.cfg.Fetch.FlareSolverrURL,
			MaxTimeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		// One solver session per crawl run; releaseFetchSession destroys
		// it when the run ends.
		return flaresolverr.NewSessionFetcher(client), nil
	case "headless":
		return headless.New(headless.Config{
			MaxParallel:       a.cfg.Fetch.HeadlessParallel,
			UserAgent:         a.cfg.Parser.UserAgent,
			NavigationTimeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unknown fetch provider %q", a.cfg.Fetch.Provider)
	}
}

func (a *App) initRegistry(fetcher fetch.PageFetcher) error {
	a.registry = parser.NewRegistry()

	osmoseParser := osmose.New(fetcher, a.logger.Named("osmose"))
	if err := a.registry.Register(osmoseParser, osmoseParser); err != nil {
		return err
	}
	return nil
}

func (a *App) initScheduler() error {
	min, max := a.cfg.Delay()
	delay := jobs.DelayConfig{Min: min, Max: max}

	indexJob := jobs.NewCatalogueIndexJob(
		a.registry, a.catalogue, a.bandRefs, delay, a.logger.Named("catalogue_index"))
	detailJob := jobs.NewDetailParsingJob(
		a.registry, a.sessions, a.catalogue, a.outbox, a.bandRefs,
		images.NewUploader(images.Config{
			MinSizeBytes: a.cfg.Images.MinSizeBytes,
			MaxSizeBytes: a.cfg.Images.MaxSizeBytes,
			Timeout:      time.Duration(a.cfg.Images.TimeoutSeconds) * time.Second,
		}, a.blobs, a.logger.Named("images")),
		delay, a.logger.Named("detail_parsing"))
	detailJob.RequireVerification(a.cfg.Parser.RequireVerification)

	publisherJob, err := jobs.NewPublisherJob(
		a.sessions, a.outbox, a.blobs, a.bus,
		a.cfg.Publisher.MaxChunkSizeInBytes, a.logger.Named("publisher"))
	if err != nil {
		return err
	}

	a.scheduler = scheduler.New(a.logger.Named("scheduler"))

	for rawCode, dist := range a.cfg.Distributors {
		if !dist.Enabled {
			continue
		}
		code, err := parser.ParseDistributorCode(rawCode)
		if err != nil {
			return err
		}
		listingURL := dist.ListingURL
		if err := a.scheduler.Register(
			fmt.Sprintf("catalogue_index/%s", code), dist.Schedule,
			a.crawlRun(func(ctx context.Context) error { return indexJob.Run(ctx, code, listingURL) }),
		); err != nil {
			return err
		}
		if err := a.scheduler.Register(
			fmt.Sprintf("detail_parsing/%s", code), dist.Schedule,
			a.crawlRun(func(ctx context.Context) error { return detailJob.Run(ctx, code) }),
		); err != nil {
			return err
		}
	}

	return a.scheduler.Register("publisher", a.cfg.Publisher.Schedule,
		func(ctx context.Context) error { return publisherJob.Run(ctx) })
}

// crawlRun wraps a crawling job so the fetch session a run lazily opened
// is destroyed when the run ends. The next run gets a fresh one.
func (a *App) crawlRun(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := fn(ctx)
		a.releaseFetchSession(ctx)
		return err
	}
}

func (a *App) releaseFetchSession(ctx context.Context) {
	scoped, ok := a.fetcher.(*flaresolverr.SessionFetcher)
	if !ok {
		return
	}
	if err := scoped.Close(ctx); err != nil {
		a.logger.Warn("Destroying solver session failed", zap.Error(err))
	}
}

// Run starts the scheduler and the admin HTTP server, blocking until ctx
// is canceled, then shuts both down.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Admin API listening", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("admin server: %w", err)
	}
	a.logger.Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Admin server shutdown failed", zap.Error(err))
	}
	return nil
}

// Close releases every held connection. Safe to call after a failed Run.
func (a *App) Close() {
	a.scheduler.Stop()
	// A run interrupted by Stop may leave its solver session behind.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	a.releaseFetchSession(releaseCtx)
	cancel()
	if err := a.bus.Close(); err != nil {
		a.logger.Warn("Closing message bus failed", zap.Error(err))
	}
	if closer, ok := a.blobs.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("Closing blob storage failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort, stderr may be gone already.
		_ = err
	}
}
