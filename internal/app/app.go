// Package app builds the long-lived services for one crawl and runs them
// together.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ladder-battle-crawler/internal/api"
	"github.com/JakeFAU/ladder-battle-crawler/internal/collect"
	"github.com/JakeFAU/ladder-battle-crawler/internal/config"
	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/ladder-battle-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/ladder-battle-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/ladder-battle-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/ladder-battle-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/ladder-battle-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ladder-battle-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/ladder-battle-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/ladder-battle-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/ladder-battle-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

// App holds the services for one crawl session.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	engine    *crawler.Engine
	collector *collect.Collector
	server    *api.Server
	runs      store.RunRepository
	mem       memorySinks
	closers   []closer
}

type closer struct {
	name string
	fn   func() error
}

// New wires the engine, sinks and status server from cfg. On error every
// service opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	logger.Info("creating application",
		zap.Bool("proxy", cfg.API.Proxy),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
		zap.String("output_dir", cfg.Output.Dir),
		zap.Int("server_port", cfg.Server.Port),
	)

	a.engine, err = newEngine(cfg, logger)
	if err != nil {
		return a, err
	}

	opts, err := a.sinks(ctx)
	if err != nil {
		return a, err
	}
	opts = append(opts, collect.WithRunRepository(a.runs))

	a.collector, err = collect.New(collect.Config{
		OutputDir:     cfg.Output.Dir,
		Compress:      cfg.Output.Compress,
		KeepOriginal:  cfg.Output.KeepOriginal,
		ArchivePrefix: cfg.Output.Prefix,
		Topic:         cfg.PubSub.Topic,
	}, a.engine, logger, opts...)
	if err != nil {
		return a, fmt.Errorf("init collector: %w", err)
	}

	if cfg.Server.Port > 0 {
		a.server = api.NewServer(a.engine, a.runs, logger, api.WithSinks(&a.mem))
	}
	return a, nil
}

func newEngine(cfg config.Config, logger *zap.Logger) (*crawler.Engine, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
	})
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
	})
	var retry crawler.RetryPolicy
	if cfg.API.TransportRetries > 0 {
		retry = crawler.NewExponentialRetryPolicy(cfg.API.TransportRetries)
	}

	client, err := crawler.NewAPIClient(cfg.ClientConfig(), fetcher, limiter, retry, logger.Named("api_client"))
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	engine, err := crawler.NewEngine(cfg.EngineConfig(), client, logger.Named("engine"))
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return engine, nil
}

// sinks opens the configured battle stores, archive and publisher. Any of
// the three left unconfigured falls back to its in-process memory adapter.
func (a *App) sinks(ctx context.Context) ([]collect.Option, error) {
	cfg := a.cfg
	var opts []collect.Option

	if cfg.DB.DSN != "" {
		pool, err := pgstore.NewPool(ctx, pgstore.Config{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
		if err != nil {
			return nil, err
		}
		a.addCloser("postgres", func() error { pool.Close(); return nil })

		battles, err := pgstore.NewBattleStore(pool, cfg.DB.Table)
		if err != nil {
			return nil, err
		}
		if err := battles.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		runs, err := pgstore.NewRunStore(pool)
		if err != nil {
			return nil, err
		}
		if err := runs.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.runs = runs
		opts = append(opts, collect.WithStores(battles))
		a.logger.Info("using postgres battle store", zap.String("table", cfg.DB.Table))
	}
	if a.runs == nil {
		a.runs = memorystorage.NewRunStore()
	}

	if cfg.SQLite.Path != "" {
		battles, err := sqlitestore.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.addCloser("sqlite", battles.Close)
		opts = append(opts, collect.WithStores(battles))
		a.logger.Info("using sqlite battle store", zap.String("path", cfg.SQLite.Path))
	}
	if cfg.DB.DSN == "" && cfg.SQLite.Path == "" {
		a.mem.battles = memorystorage.NewBattleStore()
		opts = append(opts, collect.WithStores(a.mem.battles))
		a.logger.Info("no battle database configured, keeping battles in memory")
	}

	switch {
	case cfg.Output.GCSBucket != "":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		blob, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:   cfg.Output.GCSBucket,
			Metadata: map[string]string{"source": "ladder-battle-crawler"},
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.addCloser("gcs", blob.Close)
		opts = append(opts, collect.WithArchive(blob))
		a.logger.Info("archiving to gcs", zap.String("bucket", cfg.Output.GCSBucket))
	case cfg.Output.LocalArchiveDir != "":
		blob, err := localstorage.New(localstorage.Config{BaseDir: cfg.Output.LocalArchiveDir})
		if err != nil {
			return nil, err
		}
		opts = append(opts, collect.WithArchive(blob))
		a.logger.Info("archiving to local dir", zap.String("dir", cfg.Output.LocalArchiveDir))
	default:
		a.mem.blobs = memorystorage.NewBlobStore()
		opts = append(opts, collect.WithArchive(a.mem.blobs))
		a.logger.Info("no archive configured, keeping the battle file archive in memory")
	}

	if cfg.PubSub.Topic != "" {
		pub, err := gcppublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			return nil, err
		}
		a.addCloser("pubsub", pub.Close)
		opts = append(opts, collect.WithPublisher(pub))
		a.logger.Info("publishing batch notifications", zap.String("topic", cfg.PubSub.Topic))
	} else {
		a.mem.publisher = memorypublisher.New()
		opts = append(opts, collect.WithPublisher(a.mem.publisher))
	}

	return opts, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Sinks reports what the in-process fallback sinks hold.
func (a *App) Sinks() api.SinkReport { return a.mem.SinkReport() }

// Engine exposes the crawl engine.
func (a *App) Engine() *crawler.Engine { return a.engine }

// Runs exposes the run repository.
func (a *App) Runs() store.RunRepository { return a.runs }

// Run executes the crawl and, when a port is configured, the status server.
// The server stops once the crawl finishes.
func (a *App) Run(ctx context.Context) (collect.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var res collect.Result
	g.Go(func() error {
		defer stopServer()
		var err error
		res, err = a.collector.Run(gctx)
		return err
	})
	if a.server != nil {
		g.Go(func() error {
			return a.server.ListenAndServe(serverCtx, a.cfg.Server.Port)
		})
	}

	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("crawl: %w", err)
	}
	return res, nil
}

// Close releases services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
