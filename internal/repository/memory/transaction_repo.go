package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRepository implements domain.TransactionRepository in memory
type TransactionRepository struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	order        []string
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{transactions: make(map[string]*domain.Transaction)}
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	val := *t
	if t.ReceiptPath != nil {
		path := *t.ReceiptPath
		val.ReceiptPath = &path
	}
	return &val
}

func (r *TransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	val := copyTransaction(transaction)
	val.ID = uuid.New().String()
	val.CreatedAt = now
	val.UpdatedAt = now
	r.transactions[val.ID] = val
	r.order = append(r.order, val.ID)
	return copyTransaction(val), nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok || t.UserID != userID {
		return nil, domain.ErrTransactionNotFound
	}
	return copyTransaction(t), nil
}

// ListByUser returns matching transactions ordered by date, newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, filters *domain.TransactionFilters) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transactions := make([]*domain.Transaction, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		t := r.transactions[r.order[i]]
		if t.UserID != userID || !filters.Matches(t) {
			continue
		}
		transactions = append(transactions, copyTransaction(t))
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.After(transactions[j].Date)
	})
	return transactions, nil
}

func (r *TransactionRepository) SumByType(ctx context.Context, userID string, txType domain.TransactionType) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, t := range r.transactions {
		if t.UserID == userID && t.Type == txType {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (r *TransactionRepository) Update(ctx context.Context, userID, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok || t.UserID != userID {
		return nil, domain.ErrTransactionNotFound
	}
	val := copyTransaction(t)
	patch.Apply(val)
	val.UpdatedAt = time.Now()
	r.transactions[id] = val
	return copyTransaction(val), nil
}

func (r *TransactionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(r.transactions, id)
	r.order = removeID(r.order, id)
	return true, nil
}
