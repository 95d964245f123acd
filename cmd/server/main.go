package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"mds-backend/internal/admin"
	"mds-backend/internal/auth"
	"mds-backend/internal/config"
	"mds-backend/internal/httperr"
	"mds-backend/internal/memstore"
	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
	"mds-backend/internal/store"
)

// backend is what the server needs from a storage driver.
type backend interface {
	schema.UnitOfWork
	auth.UserStore
}

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "mds-backend: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("MDS_CONFIG"), "Path to the YAML config file (default: app.yaml in the working directory)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("config loaded", "port", cfg.Server.Port, "driver", cfg.Database.Driver, "namespace", cfg.Schema.GeneratedNamespace)

	// 2. Type catalog
	types := metadata.DefaultTypes()
	if cfg.Schema.TypesFile != "" {
		if types, err = metadata.LoadTypesFile(cfg.Schema.TypesFile); err != nil {
			return err
		}
		slog.Info("type catalog loaded", "file", cfg.Schema.TypesFile, "types", len(types.All()))
		if cfg.Schema.WatchTypes {
			if err := metadata.WatchTypesFile(ctx, cfg.Schema.TypesFile, types, nil); err != nil {
				return err
			}
		}
	}

	// 3. Storage
	db, closeDB, err := openBackend(ctx, cfg, types)
	if err != nil {
		return err
	}
	defer closeDB()

	// 4. Schema editor core
	svc := schema.NewService(db, types, cfg.Schema.GeneratedNamespace)

	// 5. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          httperr.Handler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 6. Auth routes (no auth required)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	var guards []fiber.Handler
	if cfg.LoginRate > 0 {
		guards = append(guards, auth.NewLimiter(cfg.LoginRate, time.Minute, cfg.LoginRate).Middleware())
	}
	auth.RegisterRoutes(app, auth.NewHandler(db, issuer), guards...)

	// 7. Schema editor routes (auth + admin required)
	admin.RegisterAdminRoutes(app, admin.NewHandler(svc), auth.Middleware(issuer), auth.RequireAdmin())

	// 8. Serve until interrupted
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func openBackend(ctx context.Context, cfg *config.Config, types *metadata.TypeRegistry) (backend, func(), error) {
	if cfg.Database.IsMemory() {
		hash, err := auth.HashPassword("changeme")
		if err != nil {
			return nil, nil, err
		}
		slog.Warn("using in-memory storage; schemas are lost on exit", "user", "admin")
		return memstore.New(memstore.WithUser(auth.User{
			Username:     "admin",
			PasswordHash: hash,
			Roles:        []string{"admin"},
			Active:       true,
		})), func() {}, nil
	}

	db, err := store.New(ctx, cfg.Database, types)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("bootstrap system tables: %w", err)
	}
	slog.Info("database ready", "driver", cfg.Database.Driver)
	return db, db.Close, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	noColor := !isatty.IsTerminal(os.Stderr.Fd())
	switch strings.ToLower(cfg.Color) {
	case "always":
		noColor = false
	case "never":
		noColor = true
	}
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
}
