/*
Package jobqueue configuration - tunable parameters for the retention sweep
queue.

Tuning notes:
  - MaxWorkers stays low; a sweep is a single scan plus deletes and there is
    never more than one useful sweep in flight.
  - SweepInterval controls how often expired conversations are collected.
    Lowering it tightens the retention guarantee at the cost of more queries.
  - RetentionWindow is how long a CLOSED conversation survives before the
    sweep removes it and its messages.

Failed sweep jobs retain their error in the River jobs table.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent workers processing jobs.
	MaxWorkers int

	// SweepInterval is how often the periodic retention sweep runs.
	SweepInterval time.Duration

	// RetentionWindow is how long closed conversations are kept.
	RetentionWindow time.Duration
}

// DefaultQueueConfig returns the default configuration: hourly sweeps with a
// seven day retention window.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:      2,
		SweepInterval:   1 * time.Hour,
		RetentionWindow: 7 * 24 * time.Hour,
	}
}

// QueueConfigForWindow returns the default configuration with the retention
// window set from a day count. Non-positive windowDays keeps the default.
func QueueConfigForWindow(windowDays int) *QueueConfig {
	config := DefaultQueueConfig()
	if windowDays > 0 {
		config.RetentionWindow = time.Duration(windowDays) * 24 * time.Hour
	}
	return config
}

// RiverQueueConfig converts our config to River's queue configuration format.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
