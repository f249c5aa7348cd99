package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lapaksayur/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrWriteConflict        = errors.New("write conflict")
	ErrInvalidPeriod        = errors.New("invalid period")
	ErrConfirmationRequired = errors.New("explicit confirmation required")
	ErrForbidden            = errors.New("forbidden")
)

// NotFoundError names the missing entity. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NotFound(entity string, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientStockError reports the summed demand for a product against the
// stock snapshot the cart was validated with.
type InsufficientStockError struct {
	ProductID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %s, available %s", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ReceiptDayLayout is the YYYYMMDD day key of receipt numbers.
const ReceiptDayLayout = "20060102"

// ReceiptSlot is an allocated receipt sequence and the creation time it was
// stamped with.
type ReceiptSlot struct {
	Day       string
	Seq       int64
	CreatedAt time.Time
}

// ReceiptDay is the day key t falls on in loc.
func ReceiptDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(ReceiptDayLayout)
}

// StockTx is what a receipt commit sees while the referenced products are
// locked. Every write made through it lands together or not at all.
type StockTx interface {
	// Products returns the locked snapshot keyed by id. Unknown ids are absent.
	Products() map[string]domain.Product
	DecrementStock(productID string, amount decimal.Decimal) error
	// NextReceiptSequence reads clock and allocates the next sequence of the
	// shop day (in loc) it falls on. Same-day allocations are serialized and
	// the returned CreatedAt is read inside that section, so sequence order and
	// creation order agree.
	NextReceiptSequence(clock func() time.Time, loc *time.Location) (ReceiptSlot, error)
	InsertReceipt(receipt domain.Receipt) error
}

type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct applies mutate to the current row while holding the same
	// product lock RunStockTx uses, so edits never overwrite a concurrent sale.
	UpdateProduct(ctx context.Context, id string, mutate func(*domain.Product) error) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type SalesLedger interface {
	// RunStockTx locks productIDs, hands fn a consistent snapshot and commits
	// the writes fn made when it returns nil.
	RunStockTx(ctx context.Context, productIDs []string, fn func(tx StockTx) error) error
	// ListSales returns sale records newest first. limit < 1 means all.
	ListSales(ctx context.Context, limit int) ([]domain.SaleRecord, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error)
	// ListReceipts returns receipts newest first with their items. limit < 1 means all.
	ListReceipts(ctx context.Context, limit int) ([]domain.Receipt, error)
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	// ReceiptTotals sums every receipt, plus the count and total of those
	// created in [from, to).
	ReceiptTotals(ctx context.Context, from time.Time, to time.Time) (domain.ReceiptTotals, error)
}

type ExpenseLedger interface {
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error)
	ListExpensesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	Catalog
	SalesLedger
	ExpenseLedger
	AuditStore
	UserStore
	// WipeAll deletes products, receipts, sale records, expenses and receipt
	// sequences. Audit logs and users are kept.
	WipeAll(ctx context.Context) (domain.WipeResult, error)
}
