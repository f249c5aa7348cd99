package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryFruit     Category = "fruit"
	CategoryVegetable Category = "vegetable"
)

func (c Category) Valid() bool {
	return c == CategoryFruit || c == CategoryVegetable
}

type Unit string

const (
	UnitKg    Unit = "kg"
	UnitPiece Unit = "piece"
	UnitBox   Unit = "box"
	UnitBunch Unit = "bunch"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKg, UnitPiece, UnitBox, UnitBunch:
		return true
	}
	return false
}

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Product struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Category     Category        `json:"category" db:"category"`
	CostPrice    decimal.Decimal `json:"cost_price" db:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Unit         Unit            `json:"unit" db:"unit"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Category     Category        `json:"category"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         Unit            `json:"unit"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *Category        `json:"category,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Unit         *Unit            `json:"unit,omitempty"`
}

// CartLine is one requested product and quantity. It is never persisted.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type SaleRecord struct {
	ID            string          `json:"id" db:"id"`
	ReceiptID     string          `json:"receipt_id" db:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number" db:"receipt_number"`
	LineNo        int             `json:"line_no" db:"line_no"`
	ProductID     string          `json:"product_id" db:"product_id"`
	ProductName   string          `json:"product_name" db:"product_name"`
	Unit          Unit            `json:"unit" db:"unit"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	SellingPrice  decimal.Decimal `json:"selling_price" db:"selling_price"`
	CostPrice     decimal.Decimal `json:"cost_price" db:"cost_price"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	Profit        decimal.Decimal `json:"profit" db:"profit"`
	SoldAt        time.Time       `json:"sold_at" db:"sold_at"`
}

type Receipt struct {
	ID            string          `json:"id" db:"id"`
	ReceiptNumber string          `json:"receipt_number" db:"receipt_number"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	CreatedBy     string          `json:"created_by" db:"created_by"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	TotalProfit   decimal.Decimal `json:"total_profit" db:"total_profit"`
	Items         []SaleRecord    `json:"items" db:"-"`
}

type ReceiptCreateRequest struct {
	Items []CartLine `json:"items"`
}

type SaleCreateRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	SaleDate  *time.Time      `json:"sale_date,omitempty"`
}

type ReceiptTotals struct {
	TotalReceipts int             `json:"total_receipts" db:"total_receipts"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	TotalProfit   decimal.Decimal `json:"total_profit" db:"total_profit"`
	TodayReceipts int             `json:"today_receipts" db:"today_receipts"`
	TodayTotal    decimal.Decimal `json:"today_total" db:"today_total"`
}

type Expense struct {
	ID          string          `json:"id" db:"id"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	ExpenseDate time.Time       `json:"expense_date" db:"expense_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type ExpenseCreateRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate *time.Time      `json:"expense_date,omitempty"`
}

type PeriodSummary struct {
	Period          Period          `json:"period"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	TotalExpenses   decimal.Decimal `json:"total_expenses"`
	NetProfit       decimal.Decimal `json:"net_profit"`
	TotalSalesCount int             `json:"total_sales_count"`
}

type DashboardStats struct {
	TotalProducts    int             `json:"total_products"`
	LowStockCount    int             `json:"low_stock_count"`
	LowStockProducts []Product       `json:"low_stock_products"`
	TodayRevenue     decimal.Decimal `json:"today_revenue"`
	TodayProfit      decimal.Decimal `json:"today_profit"`
	TodaySalesCount  int             `json:"today_sales_count"`
	RecentSales      []SaleRecord    `json:"recent_sales"`
}

type WipeRequest struct {
	Confirm string `json:"confirm"`
}

type WipeResult struct {
	ProductsDeleted int       `json:"products_deleted"`
	ReceiptsDeleted int       `json:"receipts_deleted"`
	SalesDeleted    int       `json:"sales_deleted"`
	ExpensesDeleted int       `json:"expenses_deleted"`
	WipedAt         time.Time `json:"wiped_at"`
}

type AuditLog struct {
	ID            string    `json:"id" db:"id"`
	ActorUsername string    `json:"actor_username" db:"actor_username"`
	ActorRole     string    `json:"actor_role" db:"actor_role"`
	Action        string    `json:"action" db:"action"`
	EntityType    string    `json:"entity_type" db:"entity_type"`
	EntityID      string    `json:"entity_id" db:"entity_id"`
	Detail        string    `json:"detail" db:"detail"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type UserAccount struct {
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
