package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/metrics"
)

const snapshotTimeout = 2 * time.Minute

// Reporter is the part of the service the end-of-day snapshot reads.
type Reporter interface {
	Now() time.Time
	Summarize(ctx context.Context, period domain.Period, now time.Time) (domain.PeriodSummary, error)
	Dashboard(ctx context.Context, now time.Time) (domain.DashboardStats, error)
}

// Scheduler runs the end-of-day report snapshot on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	reporter Reporter
	logger   *zap.Logger
}

// New parses schedule eagerly so a bad REPORT_CRON fails at startup. The schedule
// is evaluated in loc.
func New(schedule string, loc *time.Location, reporter Reporter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid report cron %q: %w", schedule, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		reporter: reporter,
		logger:   logger,
	}, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runSnapshot); err != nil {
		return fmt.Errorf("schedule report snapshot: %w", err)
	}
	s.logger.Info("starting scheduler", zap.String("report_cron", s.schedule))
	s.cron.Start()
	return nil
}

// Stop waits for a running snapshot to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

func (s *Scheduler) runSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := s.Snapshot(ctx); err != nil {
		s.logger.Error("report snapshot failed", zap.Error(err))
	}
}

// Snapshot logs today's summary and stock state. Both reads go through the
// report cache, so the first dashboard request after the run is served warm.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	now := s.reporter.Now()

	summary, err := s.reporter.Summarize(ctx, domain.PeriodDaily, now)
	if err != nil {
		metrics.RecordSnapshotRun(false)
		return fmt.Errorf("daily summary: %w", err)
	}
	stats, err := s.reporter.Dashboard(ctx, now)
	if err != nil {
		metrics.RecordSnapshotRun(false)
		return fmt.Errorf("dashboard: %w", err)
	}

	metrics.RecordSnapshotRun(true)
	s.logger.Info("daily report snapshot",
		zap.Time("from", summary.From),
		zap.Time("to", summary.To),
		zap.Int("sales", summary.TotalSalesCount),
		zap.String("revenue", summary.TotalRevenue.StringFixed(2)),
		zap.String("profit", summary.TotalProfit.StringFixed(2)),
		zap.String("expenses", summary.TotalExpenses.StringFixed(2)),
		zap.String("net_profit", summary.NetProfit.StringFixed(2)),
		zap.Int("products", stats.TotalProducts),
		zap.Int("low_stock", stats.LowStockCount),
	)
	return nil
}
