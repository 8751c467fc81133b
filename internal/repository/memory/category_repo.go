package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
)

// CategoryRepository implements domain.CategoryRepository in memory
type CategoryRepository struct {
	mu         sync.RWMutex
	categories map[string]*domain.Category
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository() *CategoryRepository {
	return &CategoryRepository{categories: make(map[string]*domain.Category)}
}

func (r *CategoryRepository) Create(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nameTaken(category.UserID, category.Name, "") {
		return nil, domain.ErrCategoryAlreadyExists
	}
	val := *category
	val.ID = uuid.New().String()
	val.CreatedAt = time.Now()
	r.categories[val.ID] = &val

	out := val
	return &out, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, userID, id string) (*domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrCategoryNotFound
	}
	val := *c
	return &val, nil
}

func (r *CategoryRepository) ListByUser(ctx context.Context, userID string, categoryType *domain.CategoryType) ([]*domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	categories := make([]*domain.Category, 0)
	for _, c := range r.categories {
		if c.UserID != userID {
			continue
		}
		if categoryType != nil && c.Type != *categoryType {
			continue
		}
		val := *c
		categories = append(categories, &val)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (r *CategoryRepository) Update(ctx context.Context, userID, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.categories[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrCategoryNotFound
	}
	if patch.Name != nil && r.nameTaken(userID, *patch.Name, id) {
		return nil, domain.ErrCategoryAlreadyExists
	}
	val := *c
	if patch.Name != nil {
		val.Name = *patch.Name
	}
	if patch.Type != nil {
		val.Type = *patch.Type
	}
	if patch.Color != nil {
		val.Color = *patch.Color
	}
	if patch.Icon != nil {
		val.Icon = *patch.Icon
	}
	r.categories[id] = &val

	out := val
	return &out, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.categories[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(r.categories, id)
	return true, nil
}

// nameTaken must be called with the lock held
func (r *CategoryRepository) nameTaken(userID, name, exceptID string) bool {
	for _, c := range r.categories {
		if c.UserID == userID && c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}
