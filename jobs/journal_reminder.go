package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clinicore/clinicore/internal/cashdesk"
	jobmetrics "github.com/clinicore/clinicore/internal/jobs"
	"github.com/clinicore/clinicore/internal/shared"
)

// JournalReminderJob flags drawer journals still open after their business
// date has passed. It only reports; closing remains a cashier action.
type JournalReminderJob struct {
	Repo    cashdesk.RepositoryPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewJournalReminderJob wires dependencies for the reminder scan.
func NewJournalReminderJob(repo cashdesk.RepositoryPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *JournalReminderJob {
	return &JournalReminderJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes journal reminder tasks.
func (j *JournalReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("journal reminder: handler not configured")
	}

	tracker := j.metrics().Track(TaskJournalReminder)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	today := shared.BusinessDate(j.now())
	stale, err := j.Repo.ListOpenJournals(ctx, today)
	if err != nil {
		resultErr = err
		j.logger().Error("scan open journals", slog.Any("error", err))
		return resultErr
	}

	for _, journal := range stale {
		j.logger().Warn("journal left open past business date",
			slog.Int64("journal_id", journal.ID),
			slog.String("cashier_ref", journal.CashierRef.String()),
			slog.String("business_date", journal.BusinessDate.Format("2006-01-02")),
		)
	}
	j.logger().Info("completed journal reminder scan", slog.Int("stale_open", len(stale)))
	return resultErr
}

func (j *JournalReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskJournalReminder))
	}
	return slog.Default().With(slog.String("job", TaskJournalReminder))
}

func (j *JournalReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *JournalReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
