package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(sqlx.NewDb(db, "pgx")), mock
}

func productRows(products ...domain.Product) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "category", "cost_price", "selling_price", "quantity", "unit", "created_at", "updated_at"})
	for _, p := range products {
		rows.AddRow(p.ID, p.Name, string(p.Category), p.CostPrice.String(), p.SellingPrice.String(), p.Quantity.String(), string(p.Unit), p.CreatedAt, p.UpdatedAt)
	}
	return rows
}

func tomat() domain.Product {
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	return domain.Product{
		ID:           "prd_tomat",
		Name:         "Tomat",
		Category:     domain.CategoryVegetable,
		CostPrice:    decimal.RequireFromString("1.50"),
		SellingPrice: decimal.RequireFromString("3.00"),
		Quantity:     decimal.RequireFromString("10"),
		Unit:         domain.UnitKg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMigrateExecutesAllStatements(t *testing.T) {
	s, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), s.DB()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsAtFirstFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").WillReturnError(errors.New("permission denied"))

	err := Migrate(context.Background(), s.DB())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStockTxCommitsReceipt(t *testing.T) {
	s, mock := newMockStore(t)
	p := tomat()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id IN \(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs(p.ID).
		WillReturnRows(productRows(p))
	mock.ExpectExec(`UPDATE products SET quantity = quantity - \$2`).
		WithArgs(p.ID, "4").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO receipt_sequences`).
		WithArgs("20261018").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO receipts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sale_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	var slot store.ReceiptSlot
	err := s.RunStockTx(context.Background(), []string{p.ID, p.ID}, func(tx store.StockTx) error {
		snapshot := tx.Products()
		require.Contains(t, snapshot, p.ID)
		assert.True(t, snapshot[p.ID].Quantity.Equal(decimal.NewFromInt(10)))

		if err := tx.DecrementStock(p.ID, decimal.NewFromInt(4)); err != nil {
			return err
		}
		var err error
		slot, err = tx.NextReceiptSequence(func() time.Time { return at }, time.UTC)
		if err != nil {
			return err
		}
		return tx.InsertReceipt(domain.Receipt{
			ID:            "rcp_1",
			ReceiptNumber: "RCP-20261018-000007",
			CreatedAt:     time.Now().UTC(),
			Items: []domain.SaleRecord{{
				ID: "sale_1", ReceiptID: "rcp_1", ReceiptNumber: "RCP-20261018-000007", LineNo: 1,
				ProductID: p.ID, Quantity: decimal.NewFromInt(4), SoldAt: time.Now().UTC(),
			}},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "20261018", slot.Day)
	assert.Equal(t, int64(7), slot.Seq)
	assert.True(t, at.Equal(slot.CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextReceiptSequenceFollowsDayRolloverWhileLocked(t *testing.T) {
	s, mock := newMockStore(t)

	reads := []time.Time{
		time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 10, 19, 0, 0, 1, 0, time.UTC),
		time.Date(2026, 10, 19, 0, 0, 2, 0, time.UTC),
	}
	clock := func() time.Time {
		at := reads[0]
		reads = reads[1:]
		return at
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO receipt_sequences`).
		WithArgs("20261018").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(41)))
	mock.ExpectQuery(`INSERT INTO receipt_sequences`).
		WithArgs("20261019").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(1)))
	mock.ExpectCommit()

	var slot store.ReceiptSlot
	err := s.RunStockTx(context.Background(), nil, func(tx store.StockTx) error {
		var err error
		slot, err = tx.NextReceiptSequence(clock, time.UTC)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "20261019", slot.Day)
	assert.Equal(t, int64(1), slot.Seq)
	assert.True(t, slot.CreatedAt.Equal(time.Date(2026, 10, 19, 0, 0, 2, 0, time.UTC)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStockTxMapsSerializationFailure(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		t.Run(code, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`FROM products WHERE id IN`).WillReturnError(&pgconn.PgError{Code: code})
			mock.ExpectRollback()

			err := s.RunStockTx(context.Background(), []string{"prd_a"}, func(store.StockTx) error { return nil })
			require.ErrorIs(t, err, store.ErrWriteConflict)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunStockTxMapsReceiptNumberCollision(t *testing.T) {
	s, mock := newMockStore(t)
	p := tomat()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id IN`).WillReturnRows(productRows(p))
	mock.ExpectExec(`INSERT INTO receipts`).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "receipts_receipt_number_key"})
	mock.ExpectRollback()

	err := s.RunStockTx(context.Background(), []string{p.ID}, func(tx store.StockTx) error {
		return tx.InsertReceipt(domain.Receipt{
			ID: "rcp_1", ReceiptNumber: "RCP-20261018-000001",
			Items: []domain.SaleRecord{{ID: "sale_1", ProductID: p.ID, Quantity: decimal.NewFromInt(1)}},
		})
	})
	require.ErrorIs(t, err, store.ErrWriteConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockChecksSummedDemandBeforeWriting(t *testing.T) {
	s, mock := newMockStore(t)
	p := tomat()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id IN`).WillReturnRows(productRows(p))
	mock.ExpectExec(`UPDATE products`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.RunStockTx(context.Background(), []string{p.ID}, func(tx store.StockTx) error {
		if err := tx.DecrementStock(p.ID, decimal.NewFromInt(6)); err != nil {
			return err
		}
		return tx.DecrementStock(p.ID, decimal.NewFromInt(6))
	})

	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Requested.Equal(decimal.NewFromInt(12)))
	assert.True(t, stockErr.Available.Equal(decimal.NewFromInt(10)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockWithNoRowUpdatedIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	p := tomat()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id IN`).WillReturnRows(productRows(p))
	mock.ExpectExec(`UPDATE products`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RunStockTx(context.Background(), []string{p.ID}, func(tx store.StockTx) error {
		return tx.DecrementStock(p.ID, decimal.NewFromInt(1))
	})
	require.ErrorIs(t, err, store.ErrWriteConflict)
}

func TestRunStockTxSnapshotOmitsUnknownProducts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id IN`).WithArgs("prd_ghost").WillReturnRows(productRows())
	mock.ExpectRollback()

	err := s.RunStockTx(context.Background(), []string{"prd_ghost"}, func(tx store.StockTx) error {
		assert.Empty(t, tx.Products())
		return tx.DecrementStock("prd_ghost", decimal.NewFromInt(1))
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRowsAreNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM products WHERE id = \$1`).WithArgs("prd_x").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM expenses WHERE id = \$1`).WithArgs("exp_x").WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, s.DeleteProduct(context.Background(), "prd_x"), store.ErrNotFound)
	require.ErrorIs(t, s.DeleteExpense(context.Background(), "exp_x"), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWipeAllCountsDeletedRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM sale_records`).WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectExec(`DELETE FROM receipts`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM products`).WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(`DELETE FROM expenses`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM receipt_sequences`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := s.WipeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, result.SalesDeleted)
	assert.Equal(t, 4, result.ReceiptsDeleted)
	assert.Equal(t, 10, result.ProductsDeleted)
	assert.Equal(t, 2, result.ExpensesDeleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductScansDecimals(t *testing.T) {
	s, mock := newMockStore(t)
	p := tomat()
	p.Quantity = decimal.RequireFromString("2.375")
	mock.ExpectQuery(`FROM products WHERE id = \$1`).WithArgs(p.ID).WillReturnRows(productRows(p))

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.375", got.Quantity.String())
	assert.Equal(t, domain.UnitKg, got.Unit)
}

func TestReceiptTotalsAggregatesInSQL(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total_receipts, .* FILTER \(WHERE created_at >= \$1 AND created_at < \$2\) AS today_receipts, .* FROM receipts`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"total_receipts", "total_amount", "total_profit", "today_receipts", "today_total"}).
			AddRow(int64(70000), "1234567.125", "345678.50", int64(12), "98.375"))

	totals, err := s.ReceiptTotals(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 70000, totals.TotalReceipts)
	assert.Equal(t, 12, totals.TodayReceipts)
	assert.True(t, totals.TotalAmount.Equal(decimal.RequireFromString("1234567.125")), "got %s", totals.TotalAmount)
	assert.True(t, totals.TotalProfit.Equal(decimal.RequireFromString("345678.5")), "got %s", totals.TotalProfit)
	assert.True(t, totals.TodayTotal.Equal(decimal.RequireFromString("98.375")), "got %s", totals.TodayTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListReceiptsBatchesItemQueries(t *testing.T) {
	s, mock := newMockStore(t)
	previous := receiptItemBatch
	receiptItemBatch = 2
	t.Cleanup(func() { receiptItemBatch = previous })

	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	receiptRows := sqlmock.NewRows([]string{"id", "receipt_number", "created_at", "created_by", "total_amount", "total_profit"})
	for i, id := range []string{"rcp_3", "rcp_2", "rcp_1"} {
		receiptRows.AddRow(id, "RCP-20261018-00000"+id[4:], at.Add(-time.Duration(i)*time.Minute), "cashier", "3.00", "1.50")
	}
	itemRows := func(receiptIDs ...string) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "receipt_id", "receipt_number", "line_no", "product_id", "product_name", "unit", "quantity", "selling_price", "cost_price", "total_amount", "profit", "sold_at"})
		for _, id := range receiptIDs {
			rows.AddRow("sale_"+id, id, "RCP-20261018-00000"+id[4:], 1, "prd_tomat", "Tomat", "kg", "1", "3.00", "1.50", "3.00", "1.50", at)
		}
		return rows
	}

	mock.ExpectQuery(`FROM receipts ORDER BY created_at DESC, receipt_number DESC`).WillReturnRows(receiptRows)
	mock.ExpectQuery(`WHERE receipt_id IN \(\$1, \$2\)`).WithArgs("rcp_3", "rcp_2").WillReturnRows(itemRows("rcp_2", "rcp_3"))
	mock.ExpectQuery(`WHERE receipt_id IN \(\$1\)`).WithArgs("rcp_1").WillReturnRows(itemRows("rcp_1"))

	receipts, err := s.ListReceipts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	for _, receipt := range receipts {
		require.Len(t, receipt.Items, 1, receipt.ID)
		assert.Equal(t, receipt.ID, receipt.Items[0].ReceiptID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
