package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
)

const (
	// WeekStart is the first day of a weekly window.
	WeekStart = time.Monday
	// LowStockThreshold flags products whose quantity is strictly below it.
	LowStockThreshold = 5
	// LowStockPreviewLimit caps the low-stock products listed on the dashboard.
	LowStockPreviewLimit = 5
	// RecentSalesLimit is how many of the latest sales the dashboard shows.
	RecentSalesLimit = 5
)

var lowStockThreshold = decimal.NewFromInt(LowStockThreshold)

func ParsePeriod(raw string) (domain.Period, error) {
	period := domain.Period(strings.ToLower(strings.TrimSpace(raw)))
	switch period {
	case domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly:
		return period, nil
	case "":
		return domain.PeriodDaily, nil
	}
	return "", fmt.Errorf("%w: %q", store.ErrInvalidPeriod, raw)
}

// Window returns the calendar window [from, to) of period containing now,
// evaluated in loc.
func Window(period domain.Period, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch period {
	case domain.PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case domain.PeriodWeekly:
		offset := (int(day.Weekday()) - int(WeekStart) + 7) % 7
		from := day.AddDate(0, 0, -offset)
		return from, from.AddDate(0, 0, 7), nil
	case domain.PeriodMonthly:
		from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", store.ErrInvalidPeriod, period)
}

// ProfitMargin returns net as a percentage of revenue. ok is false when
// revenue is zero.
func ProfitMargin(net decimal.Decimal, revenue decimal.Decimal) (margin decimal.Decimal, ok bool) {
	if revenue.IsZero() {
		return decimal.Zero, false
	}
	return net.Div(revenue).Mul(decimal.NewFromInt(100)), true
}

// Summarize totals sales and expenses in the calendar window of period that
// contains now. Repeated calls without intervening writes return equal results.
func (s *Service) Summarize(ctx context.Context, period domain.Period, now time.Time) (domain.PeriodSummary, error) {
	from, to, err := Window(period, now, s.location)
	if err != nil {
		return domain.PeriodSummary{}, err
	}

	key := fmt.Sprintf("%s:%d", period, from.Unix())
	generation, cacheable := s.cacheGeneration(ctx)
	if cacheable {
		cached, found, err := s.reports.GetSummary(ctx, generation, key)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return *cached, nil
		}
	}

	sales, err := s.repo.ListSalesBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	expenses, err := s.repo.ListExpensesBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.PeriodSummary{}, err
	}

	summary := domain.PeriodSummary{
		Period:          period,
		From:            from,
		To:              to,
		TotalRevenue:    sumDecimals(sales, func(r domain.SaleRecord) decimal.Decimal { return r.TotalAmount }),
		TotalProfit:     sumDecimals(sales, func(r domain.SaleRecord) decimal.Decimal { return r.Profit }),
		TotalExpenses:   sumDecimals(expenses, func(e domain.Expense) decimal.Decimal { return e.Amount }),
		TotalSalesCount: len(sales),
	}
	summary.NetProfit = summary.TotalProfit.Sub(summary.TotalExpenses)

	if cacheable {
		if err := s.reports.SetSummary(ctx, generation, key, &summary); err != nil {
			s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return summary, nil
}

// Dashboard reports today's sales, the catalog size, low-stock products and
// the most recent sales.
func (s *Service) Dashboard(ctx context.Context, now time.Time) (domain.DashboardStats, error) {
	from, to, err := Window(domain.PeriodDaily, now, s.location)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	key := fmt.Sprintf("today:%d", from.Unix())
	generation, cacheable := s.cacheGeneration(ctx)
	if cacheable {
		cached, found, err := s.reports.GetDashboard(ctx, generation, key)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return *cached, nil
		}
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	today, err := s.repo.ListSalesBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.DashboardStats{}, err
	}
	recent, err := s.repo.ListSales(ctx, RecentSalesLimit)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	lowStock := make([]domain.Product, 0, LowStockPreviewLimit)
	for _, product := range products {
		if product.Quantity.LessThan(lowStockThreshold) {
			lowStock = append(lowStock, product)
		}
	}
	slices.SortStableFunc(lowStock, func(a, b domain.Product) int {
		if c := a.Quantity.Cmp(b.Quantity); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	stats := domain.DashboardStats{
		TotalProducts:    len(products),
		LowStockCount:    len(lowStock),
		LowStockProducts: lowStock[:min(len(lowStock), LowStockPreviewLimit)],
		TodayRevenue:     sumDecimals(today, func(r domain.SaleRecord) decimal.Decimal { return r.TotalAmount }),
		TodayProfit:      sumDecimals(today, func(r domain.SaleRecord) decimal.Decimal { return r.Profit }),
		TodaySalesCount:  len(today),
		RecentSales:      recent,
	}

	if cacheable {
		if err := s.reports.SetDashboard(ctx, generation, key, &stats); err != nil {
			s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return stats, nil
}

// cacheGeneration is read before any report data so that a write landing
// mid-computation leaves the result under an already stale generation.
func (s *Service) cacheGeneration(ctx context.Context) (int64, bool) {
	generation, err := s.reports.Generation(ctx)
	if err != nil {
		s.logger.Warn("report cache generation unavailable", zap.Error(err))
		return 0, false
	}
	return generation, true
}
