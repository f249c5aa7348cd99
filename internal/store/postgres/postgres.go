package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
	"lapaksayur/backend/internal/xid"
)

const (
	productColumns = `id, name, category, cost_price, selling_price, quantity, unit, created_at, updated_at`
	saleColumns    = `id, receipt_id, receipt_number, line_no, product_id, product_name, unit, quantity, selling_price, cost_price, total_amount, profit, sold_at`
	receiptColumns = `id, receipt_number, created_at, created_by, total_amount, total_profit`
	expenseColumns = `id, description, amount, expense_date, created_at`
	auditColumns   = `id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at`
)

// receiptItemBatch bounds the receipt ids bound into one sale_records query,
// well below the 65535 parameter limit of a Postgres statement.
var receiptItemBatch = 1000

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 128)
	if err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`); err != nil {
		return nil, err
	}
	for i := range products {
		normalizeProduct(&products[i])
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product", id)
		}
		return nil, err
	}
	normalizeProduct(&product)
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :category, :cost_price, :selling_price, :quantity, :unit, :created_at, :updated_at)
	`, product)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, mutate func(*domain.Product) error) (*domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing domain.Product
	if err := tx.GetContext(ctx, &existing, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product", id)
		}
		return nil, err
	}

	updated := existing
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	if _, err := tx.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name, category = :category, cost_price = :cost_price, selling_price = :selling_price,
			quantity = :quantity, unit = :unit, updated_at = :updated_at
		WHERE id = :id
	`, updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	normalizeProduct(&updated)
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "product", id)
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.SaleRecord, error) {
	query := `SELECT ` + saleColumns + ` FROM sale_records ORDER BY sold_at DESC, receipt_number DESC, line_no DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	sales := make([]domain.SaleRecord, 0, 64)
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	normalizeSales(sales)
	return sales, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	sales := make([]domain.SaleRecord, 0, 64)
	if err := s.db.SelectContext(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sale_records
		WHERE sold_at >= $1 AND sold_at < $2
		ORDER BY sold_at DESC, receipt_number DESC, line_no DESC
	`, from, to); err != nil {
		return nil, err
	}
	normalizeSales(sales)
	return sales, nil
}

func (s *Store) ListReceipts(ctx context.Context, limit int) ([]domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts ORDER BY created_at DESC, receipt_number DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	receipts := make([]domain.Receipt, 0, 32)
	if err := s.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return receipts, nil
	}

	ids := make([]string, len(receipts))
	for i, receipt := range receipts {
		ids[i] = receipt.ID
	}

	itemsByReceipt := make(map[string][]domain.SaleRecord, len(receipts))
	for batch := range slices.Chunk(ids, receiptItemBatch) {
		itemsQuery, itemsArgs, err := sqlx.In(`
			SELECT `+saleColumns+`
			FROM sale_records
			WHERE receipt_id IN (?)
			ORDER BY receipt_id, line_no
		`, batch)
		if err != nil {
			return nil, err
		}

		var items []domain.SaleRecord
		if err := s.db.SelectContext(ctx, &items, s.db.Rebind(itemsQuery), itemsArgs...); err != nil {
			return nil, err
		}
		normalizeSales(items)
		for _, item := range items {
			itemsByReceipt[item.ReceiptID] = append(itemsByReceipt[item.ReceiptID], item)
		}
	}
	for i := range receipts {
		receipts[i].CreatedAt = receipts[i].CreatedAt.UTC()
		receipts[i].Items = itemsByReceipt[receipts[i].ID]
		if receipts[i].Items == nil {
			receipts[i].Items = []domain.SaleRecord{}
		}
	}
	return receipts, nil
}

func (s *Store) ReceiptTotals(ctx context.Context, from time.Time, to time.Time) (domain.ReceiptTotals, error) {
	var totals domain.ReceiptTotals
	if err := s.db.GetContext(ctx, &totals, `
		SELECT
			COUNT(*) AS total_receipts,
			COALESCE(SUM(total_amount), 0) AS total_amount,
			COALESCE(SUM(total_profit), 0) AS total_profit,
			COUNT(*) FILTER (WHERE created_at >= $1 AND created_at < $2) AS today_receipts,
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $1 AND created_at < $2), 0) AS today_total
		FROM receipts
	`, from, to); err != nil {
		return domain.ReceiptTotals{}, err
	}
	return totals, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	if err := s.db.GetContext(ctx, &receipt, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("receipt", id)
		}
		return nil, err
	}

	receipt.Items = make([]domain.SaleRecord, 0, 8)
	if err := s.db.SelectContext(ctx, &receipt.Items, `
		SELECT `+saleColumns+`
		FROM sale_records
		WHERE receipt_id = $1
		ORDER BY line_no
	`, id); err != nil {
		return nil, err
	}
	normalizeSales(receipt.Items)
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	return &receipt, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (:id, :description, :amount, :expense_date, :created_at)
	`, expense); err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses ORDER BY expense_date DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	expenses := make([]domain.Expense, 0, 32)
	if err := s.db.SelectContext(ctx, &expenses, query, args...); err != nil {
		return nil, err
	}
	normalizeExpenses(expenses)
	return expenses, nil
}

func (s *Store) ListExpensesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	expenses := make([]domain.Expense, 0, 16)
	if err := s.db.SelectContext(ctx, &expenses, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE expense_date >= $1 AND expense_date < $2
		ORDER BY expense_date DESC, id DESC
	`, from, to); err != nil {
		return nil, err
	}
	normalizeExpenses(expenses)
	return expenses, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "expense", id)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES (:id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	logs := make([]domain.AuditLog, 0, 64)
	if err := s.db.SelectContext(ctx, &logs, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit); err != nil {
		return nil, err
	}
	for i := range logs {
		logs[i].CreatedAt = logs[i].CreatedAt.UTC()
	}
	return logs, nil
}

// WipeAll clears the shop data in one transaction. Users and audit logs stay.
func (s *Store) WipeAll(ctx context.Context) (domain.WipeResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WipeResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var result domain.WipeResult
	for _, step := range []struct {
		stmt  string
		count *int
	}{
		{`DELETE FROM sale_records`, &result.SalesDeleted},
		{`DELETE FROM receipts`, &result.ReceiptsDeleted},
		{`DELETE FROM products`, &result.ProductsDeleted},
		{`DELETE FROM expenses`, &result.ExpensesDeleted},
		{`DELETE FROM receipt_sequences`, nil},
	} {
		res, err := tx.ExecContext(ctx, step.stmt)
		if err != nil {
			return domain.WipeResult{}, err
		}
		if step.count == nil {
			continue
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.WipeResult{}, err
		}
		*step.count = int(affected)
	}

	if err := tx.Commit(); err != nil {
		return domain.WipeResult{}, err
	}
	result.WipedAt = time.Now().UTC()
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	if err := s.db.SelectContext(ctx, &users, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].CreatedAt = users[i].CreatedAt.UTC()
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res, "user", username)
}

// SeedUsers inserts accounts that do not exist yet.
func (s *Store) SeedUsers(ctx context.Context, users []domain.UserAccount) error {
	for _, user := range users {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO app_users (username, password, role, active, created_at, updated_at)
			VALUES ($1,$2,$3,true,now(),now())
			ON CONFLICT (username) DO NOTHING
		`, user.Username, user.Password, user.Role); err != nil {
			return fmt.Errorf("seed user %s: %w", user.Username, err)
		}
	}
	return nil
}

func requireAffected(res sql.Result, entity string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound(entity, id)
	}
	return nil
}

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func normalizeProduct(p *domain.Product) {
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
}

func normalizeSales(sales []domain.SaleRecord) {
	for i := range sales {
		sales[i].SoldAt = sales[i].SoldAt.UTC()
	}
}

func normalizeExpenses(expenses []domain.Expense) {
	for i := range expenses {
		expenses[i].ExpenseDate = expenses[i].ExpenseDate.UTC()
		expenses[i].CreatedAt = expenses[i].CreatedAt.UTC()
	}
}
