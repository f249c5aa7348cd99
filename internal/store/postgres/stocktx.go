package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
)

// RunStockTx runs fn in a SERIALIZABLE transaction holding row locks on the
// referenced products, taken in id order. Serialization failures, deadlocks
// and receipt number collisions come back as store.ErrWriteConflict.
func (s *Store) RunStockTx(ctx context.Context, productIDs []string, fn func(tx store.StockTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifyTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	snapshot, err := lockProducts(ctx, tx, uniqueSorted(productIDs))
	if err != nil {
		return classifyTxError(err)
	}

	stx := &stockTx{
		ctx:        ctx,
		tx:         tx,
		snapshot:   snapshot,
		decrements: make(map[string]decimal.Decimal, len(snapshot)),
	}
	if err := fn(stx); err != nil {
		return classifyTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyTxError(err)
	}
	return nil
}

func lockProducts(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]domain.Product, error) {
	snapshot := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return snapshot, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+productColumns+`
		FROM products
		WHERE id IN (?)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}

	var products []domain.Product
	if err := tx.SelectContext(ctx, &products, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, product := range products {
		normalizeProduct(&product)
		snapshot[product.ID] = product
	}
	return snapshot, nil
}

func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: sqlstate %s", store.ErrWriteConflict, pgErr.Code)
		}
	}
	return err
}

type stockTx struct {
	ctx        context.Context
	tx         *sqlx.Tx
	snapshot   map[string]domain.Product
	decrements map[string]decimal.Decimal
}

func (t *stockTx) Products() map[string]domain.Product {
	return maps.Clone(t.snapshot)
}

func (t *stockTx) DecrementStock(productID string, amount decimal.Decimal) error {
	product, ok := t.snapshot[productID]
	if !ok {
		return store.NotFound("product", productID)
	}
	if !amount.IsPositive() {
		return store.ErrInvalidQuantity
	}
	requested := t.decrements[productID].Add(amount)
	if requested.GreaterThan(product.Quantity) {
		return &store.InsufficientStockError{
			ProductID: productID,
			Requested: requested,
			Available: product.Quantity,
		}
	}

	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE products
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
	`, productID, amount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrWriteConflict
	}
	t.decrements[productID] = requested
	return nil
}

// NextReceiptSequence stamps the creation time after the upsert. The day row
// stays locked until commit, so a later allocator of the same day always reads
// a later clock. If the day rolls over while waiting for the lock, the
// allocation moves to the new day and the old sequence value is left unused.
func (t *stockTx) NextReceiptSequence(clock func() time.Time, loc *time.Location) (store.ReceiptSlot, error) {
	day := store.ReceiptDay(clock(), loc)
	for {
		var seq int64
		if err := t.tx.GetContext(t.ctx, &seq, `
			INSERT INTO receipt_sequences (day, last_value)
			VALUES ($1, 1)
			ON CONFLICT (day) DO UPDATE SET last_value = receipt_sequences.last_value + 1
			RETURNING last_value
		`, day); err != nil {
			return store.ReceiptSlot{}, err
		}

		at := clock()
		if next := store.ReceiptDay(at, loc); next != day {
			day = next
			continue
		}
		return store.ReceiptSlot{Day: day, Seq: seq, CreatedAt: at.UTC()}, nil
	}
}

func (t *stockTx) InsertReceipt(receipt domain.Receipt) error {
	if receipt.ID == "" || receipt.ReceiptNumber == "" || len(receipt.Items) == 0 {
		return store.ErrInvalidInput
	}

	if _, err := t.tx.NamedExecContext(t.ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES (:id, :receipt_number, :created_at, :created_by, :total_amount, :total_profit)
	`, receipt); err != nil {
		return err
	}
	for _, item := range receipt.Items {
		if _, err := t.tx.NamedExecContext(t.ctx, `
			INSERT INTO sale_records (`+saleColumns+`)
			VALUES (:id, :receipt_id, :receipt_number, :line_no, :product_id, :product_name, :unit, :quantity,
				:selling_price, :cost_price, :total_amount, :profit, :sold_at)
		`, item); err != nil {
			return err
		}
	}
	return nil
}
