package cache

import (
	"context"

	"lapaksayur/backend/internal/domain"
)

// ReportCache stores computed summaries and dashboards under a generation
// number. Every write to sales, products or expenses bumps the generation, so
// entries written under an older generation are never read again.
//
// Callers read Generation before loading the data they are about to cache.
// A write that lands in between bumps the generation past the one the entry
// is stored under, so a stale result is never served.
type ReportCache interface {
	Generation(ctx context.Context) (int64, error)
	GetSummary(ctx context.Context, generation int64, key string) (*domain.PeriodSummary, bool, error)
	SetSummary(ctx context.Context, generation int64, key string, value *domain.PeriodSummary) error
	GetDashboard(ctx context.Context, generation int64, key string) (*domain.DashboardStats, bool, error)
	SetDashboard(ctx context.Context, generation int64, key string, value *domain.DashboardStats) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopReportCache) GetSummary(_ context.Context, _ int64, _ string) (*domain.PeriodSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetSummary(_ context.Context, _ int64, _ string, _ *domain.PeriodSummary) error {
	return nil
}

func (NoopReportCache) GetDashboard(_ context.Context, _ int64, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetDashboard(_ context.Context, _ int64, _ string, _ *domain.DashboardStats) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
