package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/clinicore/clinicore/internal/jobs"
	"github.com/clinicore/clinicore/internal/reporting"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StatsWarmupJob pre-populates the reporting cache for recent date ranges.
type StatsWarmupJob struct {
	Reporting *reporting.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewStatsWarmupJob wires dependencies for the warm-up handler.
func NewStatsWarmupJob(reportingSvc *reporting.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{
		Reporting: reportingSvc,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes statistics warm-up tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reporting == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.LookbackDays <= 0 {
		payload.LookbackDays = 7
	}

	tracker := j.metrics().Track(TaskStatsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	logger := j.logger().With(slog.Int("lookback_days", payload.LookbackDays))
	logger.Info("starting statistics warmup")

	// Warm the single-day ranges plus the full lookback window, the two
	// shapes the dashboard actually requests.
	for i := 0; i < payload.LookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		err := j.Reporting.WarmStatistics(warmCtx, day, day)
		cancel()
		if err != nil {
			resultErr = err
			logger.Error("warm day", slog.String("day", day.Format("2006-01-02")), slog.Any("error", err))
			return resultErr
		}
	}
	rangeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := j.Reporting.WarmStatistics(rangeCtx, now.AddDate(0, 0, -payload.LookbackDays+1), now); err != nil {
		resultErr = err
		logger.Error("warm range", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed statistics warmup")
	return resultErr
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}

func (j *StatsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StatsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
