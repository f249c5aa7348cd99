package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
	"lapaksayur/backend/internal/xid"
)

// Store keeps everything in process memory. mu guards the maps; productLocks
// serialize writers per product across a whole stock transaction.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	receipts        map[string]*domain.Receipt
	sales           []domain.SaleRecord
	expenses        map[string]domain.Expense
	receiptSeq      map[string]int64
	receiptNumbers  map[string]struct{}
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	locksMu      sync.Mutex
	productLocks map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		receipts:        make(map[string]*domain.Receipt),
		sales:           make([]domain.SaleRecord, 0, 256),
		expenses:        make(map[string]domain.Expense),
		receiptSeq:      make(map[string]int64),
		receiptNumbers:  make(map[string]struct{}),
		auditLogs:       make([]domain.AuditLog, 0, 64),
		usersByUsername: make(map[string]domain.UserAccount),
		productLocks:    make(map[string]*sync.Mutex),
	}
}

// NewSeeded returns a store with a demo catalog and the admin and cashier
// accounts. Passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD,
// falling back to dev defaults with a warning.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()
	for _, p := range []struct {
		name     string
		category domain.Category
		cost     string
		price    string
		qty      string
		unit     domain.Unit
	}{
		{"Apel Fuji", domain.CategoryFruit, "28000", "35000", "40", domain.UnitKg},
		{"Pisang Cavendish", domain.CategoryFruit, "15000", "19500", "25.5", domain.UnitBunch},
		{"Jeruk Medan", domain.CategoryFruit, "18000", "24000", "32", domain.UnitKg},
		{"Semangka", domain.CategoryFruit, "22000", "30000", "12", domain.UnitPiece},
		{"Mangga Harum Manis", domain.CategoryFruit, "20000", "27500", "4", domain.UnitKg},
		{"Bayam", domain.CategoryVegetable, "2500", "4000", "60", domain.UnitBunch},
		{"Kangkung", domain.CategoryVegetable, "2000", "3500", "55", domain.UnitBunch},
		{"Tomat", domain.CategoryVegetable, "9000", "13000", "18.75", domain.UnitKg},
		{"Wortel", domain.CategoryVegetable, "8000", "12000", "3", domain.UnitKg},
		{"Kentang", domain.CategoryVegetable, "120000", "150000", "6", domain.UnitBox},
	} {
		id := xid.New("prd")
		s.products[id] = domain.Product{
			ID:           id,
			Name:         p.name,
			Category:     p.category,
			CostPrice:    decimal.RequireFromString(p.cost),
			SellingPrice: decimal.RequireFromString(p.price),
			Quantity:     decimal.RequireFromString(p.qty),
			Unit:         p.unit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	s.usersByUsername = seedUsers(logger)
	return s
}

func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(string(a.Category), string(b.Category))
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.NotFound("product", id)
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, mutate func(*domain.Product) error) (*domain.Product, error) {
	unlock := s.lockProducts([]string{id})
	defer unlock()

	s.mu.RLock()
	existing, exists := s.products[id]
	s.mu.RUnlock()
	if !exists {
		return nil, store.NotFound("product", id)
	}

	updated := existing
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[id]; !exists {
		return nil, store.NotFound("product", id)
	}
	s.products[id] = updated
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	unlock := s.lockProducts([]string{id})
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.NotFound("product", id)
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.sales)
	slices.SortFunc(result, compareSalesNewestFirst)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleRecord, 0, 64)
	for _, sale := range s.sales {
		if sale.SoldAt.Before(from) || !sale.SoldAt.Before(to) {
			continue
		}
		result = append(result, sale)
	}
	slices.SortFunc(result, compareSalesNewestFirst)
	return result, nil
}

func (s *Store) ListReceipts(_ context.Context, limit int) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Receipt, 0, len(s.receipts))
	for _, receipt := range s.receipts {
		result = append(result, *cloneReceipt(receipt))
	}
	slices.SortFunc(result, func(a, b domain.Receipt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ReceiptNumber, a.ReceiptNumber)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ReceiptTotals(_ context.Context, from time.Time, to time.Time) (domain.ReceiptTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := domain.ReceiptTotals{
		TotalReceipts: len(s.receipts),
		TotalAmount:   decimal.Zero,
		TotalProfit:   decimal.Zero,
		TodayTotal:    decimal.Zero,
	}
	for _, receipt := range s.receipts {
		totals.TotalAmount = totals.TotalAmount.Add(receipt.TotalAmount)
		totals.TotalProfit = totals.TotalProfit.Add(receipt.TotalProfit)
		if !receipt.CreatedAt.Before(from) && receipt.CreatedAt.Before(to) {
			totals.TodayReceipts++
			totals.TodayTotal = totals.TodayTotal.Add(receipt.TotalAmount)
		}
	}
	return totals, nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, exists := s.receipts[id]
	if !exists {
		return nil, store.NotFound("receipt", id)
	}
	return cloneReceipt(receipt), nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expenses[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		result = append(result, expense)
	}
	slices.SortFunc(result, compareExpensesNewestFirst)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListExpensesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 16)
	for _, expense := range s.expenses {
		if expense.ExpenseDate.Before(from) || !expense.ExpenseDate.Before(to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, compareExpensesNewestFirst)
	return result, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[id]; !exists {
		return store.NotFound("expense", id)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) WipeAll(_ context.Context) (domain.WipeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := domain.WipeResult{
		ProductsDeleted: len(s.products),
		ReceiptsDeleted: len(s.receipts),
		SalesDeleted:    len(s.sales),
		ExpensesDeleted: len(s.expenses),
		WipedAt:         time.Now().UTC(),
	}
	s.products = make(map[string]domain.Product)
	s.receipts = make(map[string]*domain.Receipt)
	s.sales = make([]domain.SaleRecord, 0, 256)
	s.expenses = make(map[string]domain.Expense)
	s.receiptSeq = make(map[string]int64)
	s.receiptNumbers = make(map[string]struct{})
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.NotFound("user", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func compareSalesNewestFirst(a, b domain.SaleRecord) int {
	if !a.SoldAt.Equal(b.SoldAt) {
		return b.SoldAt.Compare(a.SoldAt)
	}
	if a.ReceiptNumber != b.ReceiptNumber {
		return strings.Compare(b.ReceiptNumber, a.ReceiptNumber)
	}
	return b.LineNo - a.LineNo
}

func compareExpensesNewestFirst(a, b domain.Expense) int {
	if a.ExpenseDate.Equal(b.ExpenseDate) {
		return strings.Compare(b.ID, a.ID)
	}
	return b.ExpenseDate.Compare(a.ExpenseDate)
}

func cloneReceipt(src *domain.Receipt) *domain.Receipt {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	return &dup
}
