// Package cron runs recurring background work: scheduled connector syncs
// and polling of ingestion jobs until they finish.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name identifies the job in logs and metrics. Must be unique.
	Name() string

	// Schedule returns a 5-field cron expression or a descriptor such as
	// "@hourly" or "@every 30s".
	Schedule() string

	// Run executes one tick. Implementations should honor ctx cancellation.
	Run(ctx context.Context) error
}
