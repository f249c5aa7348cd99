package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lapaksayur/backend/internal/cache"
	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
	"lapaksayur/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	reports  cache.ReportCache
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

type Option func(*Service)

// WithClock replaces time.Now for receipt timestamps and report windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the shop timezone used for calendar windows and receipt dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func New(repo store.Repository, reports cache.ReportCache, logger *zap.Logger, opts ...Option) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:     repo,
		reports:  reports,
		logger:   logger,
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock, used by callers that pick the report window.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:         strings.TrimSpace(req.Name),
		Category:     domain.Category(strings.ToLower(strings.TrimSpace(string(req.Category)))),
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		Quantity:     req.Quantity,
		Unit:         domain.Unit(strings.ToLower(strings.TrimSpace(string(req.Unit)))),
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,stock=%s", created.Name, created.SellingPrice, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, strings.TrimSpace(id), func(p *domain.Product) error {
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Category != nil {
			p.Category = domain.Category(strings.ToLower(strings.TrimSpace(string(*req.Category))))
		}
		if req.CostPrice != nil {
			p.CostPrice = *req.CostPrice
		}
		if req.SellingPrice != nil {
			p.SellingPrice = *req.SellingPrice
		}
		if req.Quantity != nil {
			p.Quantity = *req.Quantity
		}
		if req.Unit != nil {
			p.Unit = domain.Unit(strings.ToLower(strings.TrimSpace(string(*req.Unit))))
		}
		return validateProduct(*p)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("price=%s,cost=%s,stock=%s", saved.SellingPrice, saved.CostPrice, saved.Quantity))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "deleted")
	return nil
}

// validateProduct checks write-time invariants. Existing sale records keep the
// prices they were sold at regardless of later edits.
func validateProduct(p domain.Product) error {
	if p.Name == "" || !p.Category.Valid() || !p.Unit.Valid() {
		return store.ErrInvalidInput
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() || p.Quantity.IsNegative() {
		return store.ErrInvalidInput
	}
	if p.SellingPrice.LessThan(p.CostPrice) {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" || !req.Amount.IsPositive() {
		return domain.Expense{}, store.ErrInvalidInput
	}

	expenseDate := s.now().UTC()
	if req.ExpenseDate != nil && !req.ExpenseDate.IsZero() {
		expenseDate = req.ExpenseDate.UTC()
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		Description: description,
		Amount:      req.Amount,
		ExpenseDate: expenseDate,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("amount=%s,date=%s", created.Amount, created.ExpenseDate.Format(time.DateOnly)))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListExpenses(ctx, limit)
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "expense_delete", "expense", id, "deleted")
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	from, to, err := Window(domain.PeriodDaily, s.now(), s.location)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(date) != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), s.location)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from, to = parsed, parsed.AddDate(0, 0, 1)
	}

	return s.repo.ListAuditLogs(ctx, from.UTC(), to.UTC(), limit)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required: %w", store.ErrForbidden)
	}
	return nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Error(err))
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func sumDecimals[T any](items []T, field func(T) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(field(item))
	}
	return total
}
