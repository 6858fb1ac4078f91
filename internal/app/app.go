// Package app builds the long-lived services of the monitor from
// configuration and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/api"
	"github.com/JakeFAU/tiktok-monitor/internal/clock/system"
	"github.com/JakeFAU/tiktok-monitor/internal/config"
	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/tiktok-monitor/internal/fetcher/colly"
	pubmemory "github.com/JakeFAU/tiktok-monitor/internal/publisher/memory"
	"github.com/JakeFAU/tiktok-monitor/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/tiktok-monitor/internal/queue/memory"
	"github.com/JakeFAU/tiktok-monitor/internal/scheduler"
	"github.com/JakeFAU/tiktok-monitor/internal/storage"
	"github.com/JakeFAU/tiktok-monitor/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App holds the shared services of one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     crawler.Clock
	store     crawler.Store
	archive   storage.Archive
	client    *crawler.Client
	manager   *crawler.Manager
	publisher crawler.Publisher
	closers   []func() error
}

// New wires the store, archive, fetcher, client, manager and publisher named
// in cfg. On failure everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}

	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("cleanup after init failure", zap.Error(closeErr))
		}
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("events", cfg.Events.Provider),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	store, err := storage.Open(ctx, a.cfg.Database, a.clock)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	archive, err := storage.OpenArchive(ctx, a.cfg.Archive)
	if err != nil {
		return err
	}
	a.archive = archive
	a.closers = append(a.closers, archive.Close)

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:          a.cfg.Crawler.UserAgent,
		Cookie:             a.cfg.Crawler.Cookie,
		Proxy:              a.cfg.Crawler.Proxy,
		Timeout:            a.cfg.HTTPTimeout(),
		SignedHosts:        a.cfg.Crawler.SignedHosts,
		InsecureSkipVerify: a.cfg.Crawler.InsecureSkipVerify,
	}, collyfetcher.WithClock(a.clock), collyfetcher.WithLogger(a.logger.Named("fetcher")))
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}

	opts := []crawler.ClientOption{crawler.WithBaseURL(a.cfg.Crawler.BaseURL)}
	if archive.Enabled() {
		opts = append(opts, crawler.WithArchive(archive.Store, archive.Prefix, a.clock))
	}
	a.client = crawler.NewClient(fetcher, a.logger.Named("client"), opts...)
	a.manager = crawler.NewManager(a.client, a.store, a.logger.Named("manager"))

	publisher, closePublisher, err := openPublisher(ctx, a.cfg.Events)
	if err != nil {
		return err
	}
	a.publisher = publisher
	if closePublisher != nil {
		a.closers = append(a.closers, closePublisher)
	}
	return nil
}

func openPublisher(ctx context.Context, cfg config.EventsConfig) (crawler.Publisher, func() error, error) {
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil, nil
	case config.ProviderMemory:
		return pubmemory.New(), nil, nil
	case config.ProviderPubSub:
		p, closeFn, err := pubsub.Open(ctx, cfg.ProjectID, cfg.Topic)
		if err != nil {
			return nil, nil, fmt.Errorf("open pubsub publisher: %w", err)
		}
		return p, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events provider %q", cfg.Provider)
	}
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the record store.
func (a *App) Store() crawler.Store {
	return a.store
}

// Client returns the API client.
func (a *App) Client() *crawler.Client {
	return a.client
}

// Manager returns the crawl manager.
func (a *App) Manager() *crawler.Manager {
	return a.manager
}

// Publisher returns the crawl event publisher, nil when events are off.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// Handler builds the HTTP API.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.store, a.manager, a.client, api.Config{
		Budget:          a.cfg.Budget(),
		DefaultInterval: a.cfg.Scheduler.DefaultIntervalSeconds,
		RequestTimeout:  2 * a.cfg.HTTPTimeout(),
	}, a.logger.Named("api")).Handler()
}

// Serve listens on server.port and runs until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener runs the HTTP API on ln and, when enabled, the scheduler with
// its worker pool. It returns after ctx ends and everything has stopped.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	if a.cfg.Scheduler.Enabled {
		queue := queuememory.NewQueue(a.cfg.Scheduler.QueueDepth)
		go func() {
			defer close(done)
			a.runScheduler(ctx, queue)
		}()
	} else {
		close(done)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-done
	a.logger.Info("shutdown complete")

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// runScheduler runs the poller and crawl.concurrency workers until ctx ends.
func (a *App) runScheduler(ctx context.Context, queue *queuememory.Queue) {
	// Workers release tasks on the scheduler, which enqueues through the
	// dispatcher that owns the workers.
	var sched *scheduler.Scheduler
	release := worker.ReleaseFunc(func(taskID int64) { sched.Finish(taskID) })

	workers := make([]*worker.Worker, 0, a.cfg.Crawler.Concurrency)
	for i := 0; i < a.cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			a.manager,
			a.store,
			a.store,
			a.publisher,
			release,
			a.clock,
			worker.Config{Budget: a.cfg.Budget()},
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers, a.logger.Named("dispatcher"))
	sched = scheduler.New(a.store, dispatch, a.clock, a.cfg.PollInterval(), a.logger.Named("scheduler"))

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()
	dispatch.Run(ctx)
	<-schedDone
}

// Close releases every opened backend in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
