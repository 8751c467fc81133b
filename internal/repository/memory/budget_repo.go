package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetRepository implements domain.BudgetRepository in memory.
// Like the postgres schema it allows one live budget per user and category.
type BudgetRepository struct {
	mu      sync.RWMutex
	budgets map[string]*domain.Budget
	order   []string
}

// NewBudgetRepository creates a new BudgetRepository
func NewBudgetRepository() *BudgetRepository {
	return &BudgetRepository{budgets: make(map[string]*domain.Budget)}
}

func (r *BudgetRepository) FindActiveByCategory(ctx context.Context, userID, categoryID string) (*domain.Budget, error) {
	return r.find(userID, categoryID, func(s domain.BudgetStatus) bool { return s == domain.BudgetStatusActive }), nil
}

func (r *BudgetRepository) FindLiveByCategory(ctx context.Context, userID, categoryID string) (*domain.Budget, error) {
	return r.find(userID, categoryID, domain.BudgetStatus.IsLive), nil
}

func (r *BudgetRepository) find(userID, categoryID string, match func(domain.BudgetStatus) bool) *domain.Budget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		b := r.budgets[r.order[i]]
		if b.UserID == userID && b.CategoryID == categoryID && match(b.Status) {
			val := *b
			return &val
		}
	}
	return nil
}

func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*domain.Budget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.budgets[id]
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}
	val := *b
	return &val, nil
}

// List returns matching budgets, newest first
func (r *BudgetRepository) List(ctx context.Context, filter domain.BudgetFilter) ([]*domain.Budget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	budgets := make([]*domain.Budget, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		b := r.budgets[r.order[i]]
		if !filter.Matches(b) {
			continue
		}
		val := *b
		budgets = append(budgets, &val)
	}
	return budgets, nil
}

func (r *BudgetRepository) Create(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	val := *budget
	val.ID = uuid.New().String()
	if r.liveConflict(&val) {
		return nil, domain.ErrBudgetAlreadyActive
	}
	now := time.Now()
	val.CreatedAt = now
	val.UpdatedAt = now
	r.budgets[val.ID] = &val
	r.order = append(r.order, val.ID)

	out := val
	return &out, nil
}

func (r *BudgetRepository) Update(ctx context.Context, id string, patch domain.BudgetPatch) (*domain.Budget, error) {
	return r.mutate(id, func(b *domain.Budget) { patch.Apply(b) })
}

func (r *BudgetRepository) UpdateSpent(ctx context.Context, id string, spentAmount decimal.Decimal) (*domain.Budget, error) {
	return r.mutate(id, func(b *domain.Budget) { b.SpentAmount = spentAmount })
}

func (r *BudgetRepository) IncrementSpent(ctx context.Context, id string, delta decimal.Decimal) (*domain.Budget, error) {
	return r.mutate(id, func(b *domain.Budget) { b.SpentAmount = b.SpentAmount.Add(delta) })
}

func (r *BudgetRepository) AdvanceStatus(ctx context.Context, id string, status domain.BudgetStatus) (*domain.Budget, error) {
	return r.mutate(id, func(b *domain.Budget) {
		if status.Rank() > b.Status.Rank() {
			b.Status = status
		}
	})
}

func (r *BudgetRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.budgets[id]; !ok {
		return false, nil
	}
	delete(r.budgets, id)
	r.order = removeID(r.order, id)
	return true, nil
}

// mutate applies fn to a copy of the stored budget and commits it under the write lock
func (r *BudgetRepository) mutate(id string, fn func(*domain.Budget)) (*domain.Budget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.budgets[id]
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}
	val := *b
	fn(&val)
	if val.Status != b.Status && r.liveConflict(&val) {
		return nil, domain.ErrBudgetAlreadyActive
	}
	val.UpdatedAt = time.Now()
	r.budgets[id] = &val

	out := val
	return &out, nil
}

// liveConflict reports whether b would be a second live budget for its pair.
// Must be called with the lock held.
func (r *BudgetRepository) liveConflict(b *domain.Budget) bool {
	if !b.Status.IsLive() {
		return false
	}
	for id, other := range r.budgets {
		if id != b.ID && other.UserID == b.UserID && other.CategoryID == b.CategoryID && other.Status.IsLive() {
			return true
		}
	}
	return false
}
