package server

import (
	"context"
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/melodia/console-auth"
	"github.com/melodia/console-auth/middleware/assertionware"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

// App wires the admin API over a fiber adapter.
type App struct {
	srv        router.Server[*fiber.App]
	db         *bun.DB
	repo       consoleauth.RepositoryManager
	controller *Controller
	logger     consoleauth.Logger
}

// AppConfig holds the bootstrap options for the API process.
type AppConfig struct {
	// DSN is the sqlite connection string (":memory:" for tests).
	DSN string

	// Validator verifies incoming identity assertions.
	Validator assertionware.AssertionValidator

	// Logger defaults to the printf fallback.
	Logger consoleauth.Logger

	// Sink receives audit events.
	Sink consoleauth.ActivitySink

	// Debug dumps request payloads.
	Debug bool
}

// NewApp opens the database, wires the repositories and mounts the API.
func NewApp(cfg AppConfig) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = consoleauth.DefaultLogger()
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = "console.db"
	}

	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		// a second connection would open a second empty database
		sqldb.SetMaxOpenConns(1)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	repo := consoleauth.NewRepositoryManager(db)
	repo.MustValidate()

	controller := NewController(
		WithRepository(repo),
		WithValidator(cfg.Validator),
		WithLogger(logger),
		WithActivitySink(cfg.Sink),
		WithDebug(cfg.Debug),
	)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	app := &App{
		srv:        srv,
		db:         db,
		repo:       repo,
		controller: controller,
		logger:     logger,
	}

	controller.RegisterRoutes(srv.Router().Group("/api/admin"))

	return app, nil
}

// Repo exposes the repository manager (used by setup and tests).
func (a *App) Repo() consoleauth.RepositoryManager {
	return a.repo
}

// Router exposes the underlying router for extra routes.
func (a *App) Router() router.Router[*fiber.App] {
	return a.srv.Router()
}

// EnsureSchema creates the admins table when it does not exist yet.
func (a *App) EnsureSchema(ctx context.Context) error {
	_, err := a.db.NewRaw(`
		CREATE TABLE IF NOT EXISTS admins (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			profile_picture TEXT,
			admin_role TEXT NOT NULL,
			status TEXT NOT NULL,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		);
	`).Exec(ctx)
	return err
}

// Serve blocks on the listener address.
func (a *App) Serve(addr string) error {
	a.logger.Info("admin API listening on %s", addr)
	return a.srv.Serve(addr)
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.db.Close()
}
