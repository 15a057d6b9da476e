package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mediconsult/internal/api"
	"github.com/mediconsult/internal/assembler"
	"github.com/mediconsult/internal/cache"
	"github.com/mediconsult/internal/catalog"
	"github.com/mediconsult/internal/config"
	"github.com/mediconsult/internal/database"
	"github.com/mediconsult/internal/genai"
	"github.com/mediconsult/internal/hub"
	"github.com/mediconsult/internal/jobqueue"
	"github.com/mediconsult/internal/ocr"
	"github.com/mediconsult/internal/orchestrator"
	"github.com/mediconsult/internal/pipeline"
	"github.com/mediconsult/internal/registry"
	"github.com/mediconsult/internal/store"
	"github.com/mediconsult/internal/ws"
)

// APICommand returns the CLI command for starting the API server
func APICommand(logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the MediConsult API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			return runAPI(c, logger)
		},
	}
}

func runAPI(c *cli.Context, logger zerolog.Logger) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port := cfg.Server.Port
	if c.Int("port") != 0 {
		port = c.Int("port")
	}

	db, err := database.NewDB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	st := store.New(db)

	// The fast cache is best effort: with no Redis configured we fall back
	// to an in-process cache so history reads still skip the database.
	var msgCache cache.Cache
	if cfg.Redis.Addr != "" {
		msgCache = cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	} else {
		logger.Warn().Msg("no redis address configured, using in-process message cache")
		msgCache = cache.NewMemory()
	}

	pipe := pipeline.New(st, msgCache, logger)
	reg := registry.New(st, pipe, msgCache, logger)

	catalogClient := catalog.NewClient(
		cfg.Catalog.BaseURL,
		cfg.Catalog.RatePerSecond,
		time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second,
	)
	ocrClient := ocr.NewClient(
		cfg.OCR.BaseURL,
		time.Duration(cfg.OCR.TimeoutSeconds)*time.Second,
	)
	asm := assembler.New(catalogClient, ocrClient, logger)

	model, err := genai.NewModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize ai provider: %w", err)
	}
	gen := genai.NewGenerator(model, cfg, logger)

	h := hub.New(logger)
	orch := orchestrator.New(reg, pipe, asm, gen, h, logger)
	wsHandler := ws.NewHandler(h, orch, cfg.Auth.JWTSecret, logger)

	if cfg.Retention.PurgeEnabled {
		databaseURL, err := database.LoadDatabaseURL()
		if err != nil {
			return fmt.Errorf("failed to resolve database url for job queue: %w", err)
		}
		queue, err := jobqueue.NewJobQueue(
			databaseURL,
			jobqueue.QueueConfigForWindow(cfg.Retention.WindowDays),
			st,
			msgCache,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				logger.Warn().Err(err).Msg("job queue did not stop cleanly")
			}
		}()
		logger.Info().Int("window_days", cfg.Retention.WindowDays).Msg("retention purge enabled")
	}

	logger.Info().Str("host", cfg.Server.Host).Int("port", port).Msg("starting API server")

	server := api.NewServer(cfg.Server.Host, port, reg, pipe, wsHandler, cfg.Auth.JWTSecret, logger)
	return server.Start()
}
