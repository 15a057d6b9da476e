package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mediconsult/internal/cache"
	"github.com/mediconsult/internal/config"
	"github.com/mediconsult/internal/database"
	"github.com/mediconsult/internal/jobqueue"
	"github.com/mediconsult/internal/store"
)

// PurgeCommand returns the CLI command that enqueues an immediate retention
// sweep instead of waiting for the periodic schedule.
func PurgeCommand(logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Enqueue a retention sweep of expired closed conversations",
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.Retention.PurgeEnabled {
				return fmt.Errorf("retention purge is disabled, set retention.purge_enabled to use it")
			}

			db, err := database.NewDB()
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			databaseURL, err := database.LoadDatabaseURL()
			if err != nil {
				return fmt.Errorf("failed to resolve database url: %w", err)
			}

			var msgCache cache.Cache
			if cfg.Redis.Addr != "" {
				msgCache = cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
			} else {
				msgCache = cache.NewMemory()
			}

			queue, err := jobqueue.NewJobQueue(
				databaseURL,
				jobqueue.QueueConfigForWindow(cfg.Retention.WindowDays),
				store.New(db),
				msgCache,
				logger,
			)
			if err != nil {
				return fmt.Errorf("failed to create job queue: %w", err)
			}

			if err := queue.QueueRetentionSweep(ctx); err != nil {
				return err
			}

			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				logger.Warn().Err(err).Msg("job queue did not stop cleanly")
			}

			fmt.Println("Retention sweep queued")
			return nil
		},
	}
}
