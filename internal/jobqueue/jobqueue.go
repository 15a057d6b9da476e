/*
Package jobqueue provides a River-based job queue for background maintenance
work, currently the retention sweep that purges expired closed conversations.

For tunable parameters see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"
)

// ConversationPurger is the slice of the store the sweep needs.
type ConversationPurger interface {
	ListExpiredClosed(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteConversation(ctx context.Context, id string) error
}

// CacheEvictor removes a conversation's cached message list.
type CacheEvictor interface {
	Delete(ctx context.Context, conversationID string) error
}

// RetentionSweepArgs are the arguments for a retention sweep job. The sweep
// carries no parameters; the retention window comes from configuration.
type RetentionSweepArgs struct{}

// Kind returns the job kind for River.
func (RetentionSweepArgs) Kind() string {
	return "retention_sweep"
}

// RetentionSweepWorker purges closed conversations older than the retention
// window, removing the durable rows and the cache entry for each.
type RetentionSweepWorker struct {
	river.WorkerDefaults[RetentionSweepArgs]
	purger ConversationPurger
	cache  CacheEvictor
	config *QueueConfig
	logger zerolog.Logger
}

// Work performs one retention sweep.
func (w *RetentionSweepWorker) Work(ctx context.Context, _ *river.Job[RetentionSweepArgs]) error {
	cutoff := time.Now().Add(-w.config.RetentionWindow)

	ids, err := w.purger.ListExpiredClosed(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list expired conversations: %w", err)
	}
	if len(ids) == 0 {
		w.logger.Debug().Time("cutoff", cutoff).Msg("retention sweep found nothing to purge")
		return nil
	}

	purged := 0
	for _, id := range ids {
		if err := w.purger.DeleteConversation(ctx, id); err != nil {
			// Keep going; the next sweep picks up whatever failed here.
			w.logger.Warn().Err(err).Str("conversation_id", id).Msg("failed to purge conversation")
			continue
		}
		if err := w.cache.Delete(ctx, id); err != nil {
			w.logger.Warn().Err(err).Str("conversation_id", id).Msg("failed to evict cached messages")
		}
		purged++
	}

	w.logger.Info().
		Int("purged", purged).
		Int("candidates", len(ids)).
		Time("cutoff", cutoff).
		Msg("retention sweep completed")
	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
	logger zerolog.Logger
}

// NewJobQueue creates a job queue with the retention sweep registered as a
// periodic job.
func NewJobQueue(databaseURL string, config *QueueConfig, purger ConversationPurger, cache CacheEvictor, logger zerolog.Logger) (*JobQueue, error) {
	log := logger.With().Str("component", "jobqueue").Logger()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &RetentionSweepWorker{
		purger: purger,
		cache:  cache,
		config: config,
		logger: log,
	})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(config.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return RetentionSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
		logger: log,
	}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and releases the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// QueueRetentionSweep enqueues an immediate sweep outside the periodic
// schedule, used by the purge CLI command.
func (jq *JobQueue) QueueRetentionSweep(ctx context.Context) error {
	_, err := jq.client.Insert(ctx, RetentionSweepArgs{}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue retention sweep: %w", err)
	}
	return nil
}
