// Package server wires the groupware server together: configuration,
// logging, the store, the folder catalog, the services and both endpoints.
// It runs migrations on start and shuts down gracefully on SIGINT, SIGTERM
// or SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/config"
	"github.com/dmitrijs2005/groupware/internal/server/events"
	"github.com/dmitrijs2005/groupware/internal/server/folders"
	"github.com/dmitrijs2005/groupware/internal/server/httpapi"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/groupware/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/groupware/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	db        *sql.DB
	repos     repomanager.RepositoryManager
	grpc      *gs.GRPCServer
	http      *httpapi.Server
}

// NewLogger builds the process logger described by c.
func NewLogger(c *config.Config) (logging.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:          c.LogLevel,
		Format:         c.LogFormat,
		Backend:        c.LogBackend,
		File:           c.LogFile,
		FileMaxSizeMB:  100,
		FileMaxBackups: 5,
		FileMaxAgeDays: 28,
	})
}

// OpenDB opens the connection pool. No connection is made until first use.
func OpenDB(c *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(c.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(c.DatabaseMaxIdleConns)
	return db, nil
}

// newNotifier always logs events and archives them to S3 when a bucket is
// configured.
func newNotifier(ctx context.Context, c *config.Config, l logging.Logger) (events.Notifier, error) {
	multi := events.Multi{events.NewLogNotifier(l)}
	if c.S3Bucket == "" {
		return multi, nil
	}
	archive, err := events.NewS3Archive(ctx, events.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
		Prefix:       c.S3Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("event archive init error: %w", err)
	}
	return append(multi, archive), nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, logCloser, err := NewLogger(c)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := OpenDB(c)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	notifier, err := newNotifier(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		_ = logCloser.Close()
		return nil, err
	}

	repos := repomanager.NewPostgresRepositoryManager()
	catalog := folders.NewCatalog(db, repos, folders.NewCache(c.FolderCacheTTL), logger)

	svc := gs.Services{
		Objects: services.NewObjectService(db, repos, catalog, notifier, logger, c),
		Sync:    services.NewSyncService(db, repos, catalog, logger),
		Search:  services.NewSearchService(db, repos, catalog, logger, c),
		Folders: catalog,
	}

	app := &App{
		config:    c,
		logger:    logger,
		logCloser: logCloser,
		db:        db,
		repos:     repos,
		grpc:      gs.NewGRPCServer(c.EndpointAddrGRPC, logger, svc, c.SecretKey),
	}
	if c.EndpointAddrHTTP != "" {
		app.http = httpapi.NewServer(c.EndpointAddrHTTP, db, logger)
	}
	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run migrates the schema and serves until ctx is done, a signal arrives or
// an endpoint fails. Either endpoint failing stops the other.
func (app *App) Run(ctx context.Context) error {
	defer app.Close()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(ctx) })
	if app.http != nil {
		g.Go(func() error { return app.http.Run(ctx) })
	}

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server stopped", "error", err)
	} else {
		app.logger.Info(ctx, "server stopped")
	}
	return err
}

// Close releases the pool and flushes the log file.
func (app *App) Close() {
	_ = app.db.Close()
	_ = app.logCloser.Close()
}

// Migrate applies pending schema migrations and exits.
func Migrate(ctx context.Context, c *config.Config) error {
	db, err := OpenDB(c)
	if err != nil {
		return err
	}
	defer db.Close()
	return repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db)
}
