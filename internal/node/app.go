// Package node initializes and runs the data node: it opens the identity
// database, wires the transfer pipeline, recovers stranded inbox items, and
// drains each drive's inbox on a schedule until shut down.
package node

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/homebase-id/odin-core-sub020/internal/config"
	"github.com/homebase-id/odin-core-sub020/internal/connections"
	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/logging"
	"github.com/homebase-id/odin-core-sub020/internal/migrations"
	"github.com/homebase-id/odin-core-sub020/internal/notifications"
	"github.com/homebase-id/odin-core-sub020/internal/peer/incoming"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	drives      *drive.Repository
	connections *connections.Registry
	coordinator *incoming.Coordinator
	processor   *incoming.Processor
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout)

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	temp := drive.NewTempStore(filepath.Join(cfg.DataDir, "temp"))

	var payloads drive.PayloadStore
	switch cfg.PayloadBackend {
	case "s3":
		payloads, err = drive.NewS3PayloadStore(ctx, drive.S3Config{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
	default:
		payloads = drive.NewLocalPayloadStore(filepath.Join(cfg.DataDir, "payloads"))
	}

	var notifier notifications.Dispatcher
	if cfg.RedisAddr != "" {
		notifier = notifications.NewRedisDispatcher(cfg.RedisAddr)
	} else {
		notifier = notifications.NewLogDispatcher(logger)
	}

	queue := incoming.NewQueue(db)
	coordinator := incoming.NewCoordinator(db, incoming.NewSessionStore(), temp, payloads, queue, notifier, logger)
	processor := incoming.NewProcessor(db, temp, payloads, logger, cfg.DeadLetterRemoteFaults)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		drives:      drive.NewRepository(db),
		connections: connections.NewRegistry(db),
		coordinator: coordinator,
		processor:   processor,
	}, nil
}

// Coordinator exposes the transfer service for the transport layer.
func (app *App) Coordinator() *incoming.Coordinator { return app.coordinator }

// Connections exposes the connection registry for the transport layer.
func (app *App) Connections() *connections.Registry { return app.connections }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// drainInboxes runs one pass over every drive's inbox. A remote-identity
// conflict on one drive is surfaced and does not stop the other drives.
func (app *App) drainInboxes(ctx context.Context) {
	drives, err := app.drives.List(ctx)
	if err != nil {
		app.logger.Error(ctx, "failed to list drives", "error", err)
		return
	}

	for _, drv := range drives {
		status, err := app.processor.ProcessInbox(ctx, drv.Target, app.config.InboxBatchSize)
		if err != nil {
			if faults.IsClass(err, faults.ClassRemoteIdentity) {
				app.logger.Warn(ctx, "inbox item conflicts with local state",
					"drive", drv.ID.String(), "error", err)
				continue
			}
			app.logger.Error(ctx, "inbox drain failed", "drive", drv.ID.String(), "error", err)
			continue
		}
		if status.TotalItems > 0 {
			app.logger.Debug(ctx, "inbox drained",
				"drive", drv.ID.String(), "remaining", status.TotalItems)
		}
	}
}

func (app *App) startInboxLoop(ctx context.Context) {
	ticker := time.NewTicker(app.config.InboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.drainInboxes(ctx)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	recovered, err := app.processor.RecoverDead(ctx, time.Now().Add(-app.config.RecoverDeadAfter))
	if err != nil {
		app.logger.Error(ctx, "failed to recover stranded inbox items", "error", err)
	} else if recovered > 0 {
		app.logger.Info(ctx, "recovered stranded inbox items", "count", recovered)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startInboxLoop(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "failed to close database", "error", err)
	}
}
