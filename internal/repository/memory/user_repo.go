package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
)

// UserRepository implements domain.UserRepository in memory
type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	byEmail map[string]string
	order   []string
}

// NewUserRepository creates a new UserRepository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	val := *u
	return &val, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	val := *r.users[id]
	return &val, nil
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]*domain.User, 0, len(r.order))
	for _, id := range r.order {
		val := *r.users[id]
		users = append(users, &val)
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return nil, domain.ErrEmailAlreadyExists
	}
	now := time.Now()
	val := *user
	val.ID = uuid.New().String()
	val.CreatedAt = now
	val.UpdatedAt = now
	r.users[val.ID] = &val
	r.byEmail[val.Email] = val.ID
	r.order = append(r.order, val.ID)

	out := val
	return &out, nil
}
