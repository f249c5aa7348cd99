package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
)

// RunStockTx holds the per-product locks for ids across fn and the apply step.
// Staged writes are applied under the store write lock, so readers observe a
// receipt either completely or not at all.
func (s *Store) RunStockTx(ctx context.Context, productIDs []string, fn func(tx store.StockTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockProducts(productIDs)
	defer unlock()

	s.mu.RLock()
	snapshot := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			snapshot[id] = product
		}
	}
	s.mu.RUnlock()

	tx := &stockTx{
		store:      s,
		snapshot:   snapshot,
		decrements: make(map[string]decimal.Decimal, len(snapshot)),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.apply(tx)
}

func (s *Store) apply(tx *stockTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, receipt := range tx.receipts {
		if _, taken := s.receiptNumbers[receipt.ReceiptNumber]; taken {
			return store.ErrWriteConflict
		}
	}

	for id := range tx.decrements {
		if _, ok := s.products[id]; !ok {
			return store.ErrWriteConflict
		}
	}

	now := time.Now().UTC()
	for id, amount := range tx.decrements {
		product := s.products[id]
		product.Quantity = product.Quantity.Sub(amount)
		product.UpdatedAt = now
		s.products[id] = product
	}
	for _, receipt := range tx.receipts {
		stored := cloneReceipt(&receipt)
		s.receipts[stored.ID] = stored
		s.receiptNumbers[stored.ReceiptNumber] = struct{}{}
		s.sales = append(s.sales, stored.Items...)
	}
	return nil
}

// lockProducts acquires the product mutexes in sorted id order and returns
// the matching unlock.
func (s *Store) lockProducts(ids []string) func() {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	locks := make([]*sync.Mutex, 0, len(ids))
	s.locksMu.Lock()
	for _, id := range ids {
		lock, ok := s.productLocks[id]
		if !ok {
			lock = &sync.Mutex{}
			s.productLocks[id] = lock
		}
		locks = append(locks, lock)
	}
	s.locksMu.Unlock()

	for _, lock := range locks {
		lock.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

type stockTx struct {
	store      *Store
	snapshot   map[string]domain.Product
	decrements map[string]decimal.Decimal
	receipts   []domain.Receipt
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
	t.decrements[productID] = requested
	return nil
}

func (t *stockTx) NextReceiptSequence(clock func() time.Time, loc *time.Location) (store.ReceiptSlot, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	at := clock()
	day := store.ReceiptDay(at, loc)
	t.store.receiptSeq[day]++
	return store.ReceiptSlot{Day: day, Seq: t.store.receiptSeq[day], CreatedAt: at.UTC()}, nil
}

func (t *stockTx) InsertReceipt(receipt domain.Receipt) error {
	if receipt.ID == "" || receipt.ReceiptNumber == "" || len(receipt.Items) == 0 {
		return store.ErrInvalidInput
	}
	t.receipts = append(t.receipts, *cloneReceipt(&receipt))
	return nil
}
