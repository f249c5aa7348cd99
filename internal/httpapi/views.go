package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/service"
)

// money renders an exact amount as a JSON number with two decimals. Amounts
// are only rounded here, never in the service or the stores.
type money decimal.Decimal

// String is the two-place rendering shared by JSON and CSV output.
func (m money) String() string {
	return decimal.Decimal(m).StringFixed(2)
}

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// quantity renders stock and sold quantities as unrounded JSON numbers.
type quantity decimal.Decimal

func (q quantity) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(q).String()), nil
}

type productView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     domain.Category `json:"category"`
	CostPrice    money           `json:"cost_price"`
	SellingPrice money           `json:"selling_price"`
	Quantity     quantity        `json:"quantity"`
	Unit         domain.Unit     `json:"unit"`
	LowStock     bool            `json:"low_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func newProductView(p domain.Product) productView {
	return productView{
		ID:           p.ID,
		Name:         p.Name,
		Category:     p.Category,
		CostPrice:    money(p.CostPrice),
		SellingPrice: money(p.SellingPrice),
		Quantity:     quantity(p.Quantity),
		Unit:         p.Unit,
		LowStock:     p.Quantity.LessThan(decimal.NewFromInt(service.LowStockThreshold)),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func newProductViews(products []domain.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, newProductView(p))
	}
	return out
}

type saleView struct {
	ID            string      `json:"id"`
	ReceiptID     string      `json:"receipt_id"`
	ReceiptNumber string      `json:"receipt_number"`
	LineNo        int         `json:"line_no"`
	ProductID     string      `json:"product_id"`
	ProductName   string      `json:"product_name"`
	Unit          domain.Unit `json:"unit"`
	Quantity      quantity    `json:"quantity"`
	SellingPrice  money       `json:"selling_price"`
	CostPrice     money       `json:"cost_price"`
	TotalAmount   money       `json:"total_amount"`
	Profit        money       `json:"profit"`
	SoldAt        time.Time   `json:"sold_at"`
}

func newSaleView(s domain.SaleRecord) saleView {
	return saleView{
		ID:            s.ID,
		ReceiptID:     s.ReceiptID,
		ReceiptNumber: s.ReceiptNumber,
		LineNo:        s.LineNo,
		ProductID:     s.ProductID,
		ProductName:   s.ProductName,
		Unit:          s.Unit,
		Quantity:      quantity(s.Quantity),
		SellingPrice:  money(s.SellingPrice),
		CostPrice:     money(s.CostPrice),
		TotalAmount:   money(s.TotalAmount),
		Profit:        money(s.Profit),
		SoldAt:        s.SoldAt,
	}
}

func newSaleViews(sales []domain.SaleRecord) []saleView {
	out := make([]saleView, 0, len(sales))
	for _, s := range sales {
		out = append(out, newSaleView(s))
	}
	return out
}

type receiptView struct {
	ID            string     `json:"id"`
	ReceiptNumber string     `json:"receipt_number"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     string     `json:"created_by"`
	TotalAmount   money      `json:"total_amount"`
	TotalProfit   money      `json:"total_profit"`
	Items         []saleView `json:"items"`
}

func newReceiptView(r domain.Receipt) receiptView {
	return receiptView{
		ID:            r.ID,
		ReceiptNumber: r.ReceiptNumber,
		CreatedAt:     r.CreatedAt,
		CreatedBy:     r.CreatedBy,
		TotalAmount:   money(r.TotalAmount),
		TotalProfit:   money(r.TotalProfit),
		Items:         newSaleViews(r.Items),
	}
}

type receiptTotalsView struct {
	TotalReceipts int   `json:"total_receipts"`
	TotalAmount   money `json:"total_amount"`
	TotalProfit   money `json:"total_profit"`
	TodayReceipts int   `json:"today_receipts"`
	TodayTotal    money `json:"today_total"`
}

type expenseView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      money     `json:"amount"`
	ExpenseDate time.Time `json:"expense_date"`
	CreatedAt   time.Time `json:"created_at"`
}

func newExpenseView(e domain.Expense) expenseView {
	return expenseView{
		ID:          e.ID,
		Description: e.Description,
		Amount:      money(e.Amount),
		ExpenseDate: e.ExpenseDate,
		CreatedAt:   e.CreatedAt,
	}
}

// summaryView carries profit_margin as null when the window has no revenue.
type summaryView struct {
	Period          domain.Period `json:"period"`
	From            time.Time     `json:"from"`
	To              time.Time     `json:"to"`
	TotalRevenue    money         `json:"total_revenue"`
	TotalProfit     money         `json:"total_profit"`
	TotalExpenses   money         `json:"total_expenses"`
	NetProfit       money         `json:"net_profit"`
	TotalSalesCount int           `json:"total_sales_count"`
	ProfitMargin    *money        `json:"profit_margin"`
}

func newSummaryView(s domain.PeriodSummary) summaryView {
	view := summaryView{
		Period:          s.Period,
		From:            s.From,
		To:              s.To,
		TotalRevenue:    money(s.TotalRevenue),
		TotalProfit:     money(s.TotalProfit),
		TotalExpenses:   money(s.TotalExpenses),
		NetProfit:       money(s.NetProfit),
		TotalSalesCount: s.TotalSalesCount,
	}
	if margin, ok := service.ProfitMargin(s.NetProfit, s.TotalRevenue); ok {
		m := money(margin)
		view.ProfitMargin = &m
	}
	return view
}

type dashboardView struct {
	TotalProducts    int           `json:"total_products"`
	LowStockCount    int           `json:"low_stock_count"`
	LowStockProducts []productView `json:"low_stock_products"`
	TodayRevenue     money         `json:"today_revenue"`
	TodayProfit      money         `json:"today_profit"`
	TodaySalesCount  int           `json:"today_sales_count"`
	RecentSales      []saleView    `json:"recent_sales"`
}

func newDashboardView(d domain.DashboardStats) dashboardView {
	return dashboardView{
		TotalProducts:    d.TotalProducts,
		LowStockCount:    d.LowStockCount,
		LowStockProducts: newProductViews(d.LowStockProducts),
		TodayRevenue:     money(d.TodayRevenue),
		TodayProfit:      money(d.TodayProfit),
		TodaySalesCount:  d.TodaySalesCount,
		RecentSales:      newSaleViews(d.RecentSales),
	}
}
