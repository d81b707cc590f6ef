package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/huntworks/huntops/internal/config"
	"github.com/huntworks/huntops/internal/database"
	"github.com/huntworks/huntops/internal/migrations"
	"github.com/huntworks/huntops/internal/publish"
	"github.com/huntworks/huntops/internal/server"
	"github.com/huntworks/huntops/internal/team"
	"github.com/huntworks/huntops/internal/treasure"
	"github.com/huntworks/huntops/internal/uploader"
	"github.com/huntworks/huntops/internal/validator"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: level,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	if err := server.EnsureAdmin(ctx, logger, db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	// --- Static mirror dir ---
	if cfg.StaticDir != "" {
		if err := os.MkdirAll(cfg.StaticDir, 0o755); err != nil {
			return fmt.Errorf("creating static dir: %w", err)
		}
	}

	// --- Domain wiring ---
	headers := cfg.Headers()
	publisher := publish.New(cfg.ConfigPath, cfg.StaticDir, cfg.RemoteBaseURL, headers, db, logger)

	eval := &validator.Validator{
		Runner:       validator.CmdRunner{Cmd: cfg.ValidatorCmd, Timeout: cfg.ValidatorTimeout},
		Fallback:     cfg.ValidatorFallback,
		DefaultScore: cfg.ValidatorDefaultScore,
	}

	deps := server.Deps{
		DB:        db,
		Teams:     team.NewStore(db),
		Publisher: publisher,
		Sessions:  treasure.NewManager(cfg.SessionQuota, cfg.MinValidationScore),
		Evaluator: eval,
		Uploader:  uploader.New(cfg.RemoteBaseURL, headers),
		StaticDir: cfg.StaticDir,
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, deps)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
