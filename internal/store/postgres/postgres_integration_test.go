package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
	"lapaksayur/backend/internal/xid"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LAPAKSAYUR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LAPAKSAYUR_TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, Migrate(ctx, s.DB()))
	return s
}

func TestIntegrationConcurrentStockTxNeverOversells(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, domain.Product{
		Name:         "Jeruk",
		Category:     domain.CategoryFruit,
		CostPrice:    decimal.RequireFromString("1.00"),
		SellingPrice: decimal.RequireFromString("2.00"),
		Quantity:     decimal.RequireFromString("10"),
		Unit:         domain.UnitKg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.DeleteProduct(ctx, p.ID) })

	prefix := xid.New("it")
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RunStockTx(ctx, []string{p.ID}, func(tx store.StockTx) error {
				if err := tx.DecrementStock(p.ID, decimal.NewFromInt(6)); err != nil {
					return err
				}
				slot, err := tx.NextReceiptSequence(time.Now, time.UTC)
				if err != nil {
					return err
				}
				receiptID := xid.New("rcp")
				number := prefix + "-" + decimal.NewFromInt(slot.Seq).String()
				now := slot.CreatedAt
				return tx.InsertReceipt(domain.Receipt{
					ID: receiptID, ReceiptNumber: number, CreatedAt: now,
					TotalAmount: decimal.NewFromInt(12), TotalProfit: decimal.NewFromInt(6),
					Items: []domain.SaleRecord{{
						ID: xid.New("sale"), ReceiptID: receiptID, ReceiptNumber: number, LineNo: 1,
						ProductID: p.ID, ProductName: p.Name, Unit: p.Unit, Quantity: decimal.NewFromInt(6),
						SellingPrice: p.SellingPrice, CostPrice: p.CostPrice,
						TotalAmount: decimal.NewFromInt(12), Profit: decimal.NewFromInt(6), SoldAt: now,
					}},
				})
			})
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		assert.True(t, errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrWriteConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, committed)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(4)), "got %s", got.Quantity)
}
