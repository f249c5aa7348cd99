package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/metrics"
	"lapaksayur/backend/internal/store"
	"lapaksayur/backend/internal/xid"
)

const (
	// MaxCommitAttempts bounds how often a receipt commit is retried after a
	// write conflict before the conflict is returned to the caller.
	MaxCommitAttempts = 3

	commitBackoff = 25 * time.Millisecond
)

// FormatReceiptNumber renders RCP-YYYYMMDD-NNNNNN. Numbers of one day sort in
// allocation order.
func FormatReceiptNumber(day string, seq int64) string {
	return fmt.Sprintf("RCP-%s-%06d", day, seq)
}

// lineItem is a cart line priced against the locked product snapshot.
type lineItem struct {
	product  domain.Product
	quantity decimal.Decimal
}

func (l lineItem) total() decimal.Decimal {
	return l.product.SellingPrice.Mul(l.quantity)
}

func (l lineItem) profit() decimal.Decimal {
	return l.product.SellingPrice.Sub(l.product.CostPrice).Mul(l.quantity)
}

// CreateReceipt validates cart against one stock snapshot and commits every
// line, the stock decrements and the receipt number together. Nothing is
// written when any line fails.
func (s *Service) CreateReceipt(ctx context.Context, cart []domain.CartLine) (domain.Receipt, error) {
	return s.createReceipt(ctx, cart, time.Time{})
}

// createReceipt stamps the sale records with soldAt, or with the receipt's
// creation time when soldAt is zero.
func (s *Service) createReceipt(ctx context.Context, cart []domain.CartLine, soldAt time.Time) (domain.Receipt, error) {
	if len(cart) == 0 {
		metrics.RecordReceiptRejected(rejectReason(store.ErrEmptyCart))
		return domain.Receipt{}, store.ErrEmptyCart
	}

	lines := make([]domain.CartLine, len(cart))
	productIDs := make([]string, 0, len(cart))
	for i, line := range cart {
		lines[i] = domain.CartLine{ProductID: strings.TrimSpace(line.ProductID), Quantity: line.Quantity}
		productIDs = append(productIDs, lines[i].ProductID)
	}

	start := time.Now()
	var (
		receipt domain.Receipt
		err     error
	)
	for attempt := 1; attempt <= MaxCommitAttempts; attempt++ {
		receipt, err = s.commitReceipt(ctx, lines, productIDs, soldAt)
		if !errors.Is(err, store.ErrWriteConflict) {
			break
		}

		metrics.RecordCommitConflict()
		s.logger.Warn("receipt commit conflict",
			zap.Int("attempt", attempt),
			zap.Int("lines", len(lines)),
		)
		if attempt == MaxCommitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domain.Receipt{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * commitBackoff):
		}
	}
	if err != nil {
		metrics.RecordReceiptRejected(rejectReason(err))
		return domain.Receipt{}, err
	}

	metrics.RecordReceiptCommitted(time.Since(start))
	s.invalidateReports(ctx)
	s.logAudit(ctx, "receipt_create", "receipt", receipt.ID, fmt.Sprintf("number=%s,items=%d,total=%s", receipt.ReceiptNumber, len(receipt.Items), receipt.TotalAmount))
	return receipt, nil
}

func (s *Service) commitReceipt(ctx context.Context, cart []domain.CartLine, productIDs []string, soldAt time.Time) (domain.Receipt, error) {
	actor, _ := ActorFromContext(ctx)

	var receipt domain.Receipt
	err := s.repo.RunStockTx(ctx, productIDs, func(tx store.StockTx) error {
		items, err := priceCart(cart, tx.Products())
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.DecrementStock(item.product.ID, item.quantity); err != nil {
				return err
			}
		}

		slot, err := tx.NextReceiptSequence(s.now, s.location)
		if err != nil {
			return err
		}

		saleTime := soldAt
		if saleTime.IsZero() {
			saleTime = slot.CreatedAt
		}
		receipt = buildReceipt(xid.New("rcp"), FormatReceiptNumber(slot.Day, slot.Seq), slot.CreatedAt, saleTime, actor.Username, items)
		return tx.InsertReceipt(receipt)
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

// priceCart resolves every line against snapshot. Unknown products are
// reported before bad quantities, and both before stock. Demand for a product
// listed on several lines is summed before it is compared with stock.
func priceCart(cart []domain.CartLine, snapshot map[string]domain.Product) ([]lineItem, error) {
	for _, line := range cart {
		if _, ok := snapshot[line.ProductID]; !ok {
			return nil, store.NotFound("product", line.ProductID)
		}
	}
	for _, line := range cart {
		if !line.Quantity.IsPositive() {
			return nil, store.ErrInvalidQuantity
		}
	}

	demand := make(map[string]decimal.Decimal, len(snapshot))
	for _, line := range cart {
		demand[line.ProductID] = demand[line.ProductID].Add(line.Quantity)
	}

	items := make([]lineItem, 0, len(cart))
	checked := make(map[string]bool, len(demand))
	for _, line := range cart {
		product := snapshot[line.ProductID]
		if !checked[product.ID] {
			checked[product.ID] = true
			if demand[product.ID].GreaterThan(product.Quantity) {
				return nil, &store.InsufficientStockError{
					ProductID: product.ID,
					Requested: demand[product.ID],
					Available: product.Quantity,
				}
			}
		}
		items = append(items, lineItem{product: product, quantity: line.Quantity})
	}
	return items, nil
}

func buildReceipt(id string, number string, createdAt time.Time, soldAt time.Time, createdBy string, items []lineItem) domain.Receipt {
	receipt := domain.Receipt{
		ID:            id,
		ReceiptNumber: number,
		CreatedAt:     createdAt,
		CreatedBy:     createdBy,
		TotalAmount:   decimal.Zero,
		TotalProfit:   decimal.Zero,
		Items:         make([]domain.SaleRecord, 0, len(items)),
	}
	for i, item := range items {
		sale := domain.SaleRecord{
			ID:            xid.New("sale"),
			ReceiptID:     id,
			ReceiptNumber: number,
			LineNo:        i + 1,
			ProductID:     item.product.ID,
			ProductName:   item.product.Name,
			Unit:          item.product.Unit,
			Quantity:      item.quantity,
			SellingPrice:  item.product.SellingPrice,
			CostPrice:     item.product.CostPrice,
			TotalAmount:   item.total(),
			Profit:        item.profit(),
			SoldAt:        soldAt,
		}
		receipt.TotalAmount = receipt.TotalAmount.Add(sale.TotalAmount)
		receipt.TotalProfit = receipt.TotalProfit.Add(sale.Profit)
		receipt.Items = append(receipt.Items, sale)
	}
	return receipt
}

// RecordSale sells a single product through the receipt path and returns the
// resulting sale record. A SaleDate back-dates the sale record only; the
// receipt keeps its commit time and that day's number.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleRecord, error) {
	var soldAt time.Time
	if req.SaleDate != nil && !req.SaleDate.IsZero() {
		soldAt = req.SaleDate.UTC()
	}
	receipt, err := s.createReceipt(ctx, []domain.CartLine{{ProductID: req.ProductID, Quantity: req.Quantity}}, soldAt)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	return receipt.Items[0], nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.SaleRecord, error) {
	return s.repo.ListSales(ctx, clampLimit(limit))
}

func (s *Service) ListReceipts(ctx context.Context, limit int) ([]domain.Receipt, error) {
	return s.repo.ListReceipts(ctx, clampLimit(limit))
}

func (s *Service) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Receipt{}, store.ErrInvalidInput
	}
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	return *receipt, nil
}

// ReceiptTotals reports all-time receipt totals plus today's count and total.
// Today is the shop-local day of the receipts' creation time.
func (s *Service) ReceiptTotals(ctx context.Context) (domain.ReceiptTotals, error) {
	from, to, err := Window(domain.PeriodDaily, s.now(), s.location)
	if err != nil {
		return domain.ReceiptTotals{}, err
	}
	return s.repo.ReceiptTotals(ctx, from, to)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, store.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrWriteConflict):
		return "write_conflict"
	default:
		return "error"
	}
}
