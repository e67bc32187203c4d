package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatsWarmup pre-builds the reporting aggregates so the first
	// morning dashboard hit is a cache read.
	TaskStatsWarmup = "reporting:stats_warmup"
	// TaskJournalReminder scans for drawer journals left open past their
	// business date.
	TaskJournalReminder = "cashdesk:journal_reminder"
	// TaskIdempotencyCleanup expires consumed payment idempotency keys.
	TaskIdempotencyCleanup = "billing:idempotency_cleanup"
)

// StatsWarmupPayload selects how far back the warm-up reaches.
type StatsWarmupPayload struct {
	LookbackDays int `json:"lookback_days"`
}

// NewStatsWarmupTask constructs the warm-up task.
func NewStatsWarmupTask(payload StatsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data), nil
}

// JournalReminderPayload carries no options yet; the scan cutoff is always
// the current business date.
type JournalReminderPayload struct{}

// NewJournalReminderTask constructs the reminder scan task.
func NewJournalReminderTask() (*asynq.Task, error) {
	data, err := json.Marshal(JournalReminderPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskJournalReminder, data), nil
}

// IdempotencyCleanupPayload bounds the age of keys kept around.
type IdempotencyCleanupPayload struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
