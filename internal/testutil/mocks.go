package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/broker"
	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockUserRepository is a mock implementation of domain.UserRepository
type MockUserRepository struct {
	Users    map[string]*domain.User
	ByEmail  map[string]*domain.User
	CreateFn func(user *domain.User) (*domain.User, error)
}

// NewMockUserRepository creates a new MockUserRepository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users:   make(map[string]*domain.User),
		ByEmail: make(map[string]*domain.User),
	}
}

// GetByID retrieves a user by ID
func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

// GetByEmail retrieves a user by email
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if user, ok := m.ByEmail[email]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

// List returns all users ordered by creation time
func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	result := make([]*domain.User, 0, len(m.Users))
	for _, u := range m.Users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Create creates a new user
func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if m.CreateFn != nil {
		return m.CreateFn(user)
	}
	if _, ok := m.ByEmail[user.Email]; ok {
		return nil, domain.ErrEmailAlreadyExists
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.AddUser(user)
	return user, nil
}

// AddUser adds a user to the mock repository (helper for tests)
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.Users[user.ID] = user
	m.ByEmail[user.Email] = user
}

// MockCategoryRepository is a mock implementation of domain.CategoryRepository
type MockCategoryRepository struct {
	Categories map[string]*domain.Category
	DeleteFn   func(userID, id string) (bool, error)
}

// NewMockCategoryRepository creates a new MockCategoryRepository
func NewMockCategoryRepository() *MockCategoryRepository {
	return &MockCategoryRepository{
		Categories: make(map[string]*domain.Category),
	}
}

// Create creates a new category
func (m *MockCategoryRepository) Create(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	for _, c := range m.Categories {
		if c.UserID == category.UserID && strings.EqualFold(c.Name, category.Name) {
			return nil, domain.ErrCategoryAlreadyExists
		}
	}
	category.ID = uuid.NewString()
	category.CreatedAt = time.Now()
	m.Categories[category.ID] = category
	return category, nil
}

// GetByID retrieves a category by ID within a user's scope
func (m *MockCategoryRepository) GetByID(ctx context.Context, userID, id string) (*domain.Category, error) {
	if c, ok := m.Categories[id]; ok && c.UserID == userID {
		return c, nil
	}
	return nil, domain.ErrCategoryNotFound
}

// ListByUser returns the user's categories, optionally narrowed by type
func (m *MockCategoryRepository) ListByUser(ctx context.Context, userID string, categoryType *domain.CategoryType) ([]*domain.Category, error) {
	var result []*domain.Category
	for _, c := range m.Categories {
		if c.UserID != userID {
			continue
		}
		if categoryType != nil && c.Type != *categoryType {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Update applies a partial update to a category
func (m *MockCategoryRepository) Update(ctx context.Context, userID, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	c, err := m.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	if patch.Icon != nil {
		c.Icon = *patch.Icon
	}
	return c, nil
}

// Delete removes a category
func (m *MockCategoryRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(userID, id)
	}
	if c, ok := m.Categories[id]; ok && c.UserID == userID {
		delete(m.Categories, id)
		return true, nil
	}
	return false, nil
}

// AddCategory adds a category to the mock repository (helper for tests)
func (m *MockCategoryRepository) AddCategory(category *domain.Category) {
	m.Categories[category.ID] = category
}

// MockTransactionRepository is a mock implementation of domain.TransactionRepository
type MockTransactionRepository struct {
	Transactions map[string]*domain.Transaction
	CreateFn     func(transaction *domain.Transaction) (*domain.Transaction, error)
}

// NewMockTransactionRepository creates a new MockTransactionRepository
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		Transactions: make(map[string]*domain.Transaction),
	}
}

// Create creates a new transaction
func (m *MockTransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) (*domain.Transaction, error) {
	if m.CreateFn != nil {
		return m.CreateFn(transaction)
	}
	transaction.ID = uuid.NewString()
	transaction.CreatedAt = time.Now()
	transaction.UpdatedAt = transaction.CreatedAt
	m.Transactions[transaction.ID] = transaction
	return transaction, nil
}

// GetByID retrieves a transaction by ID within a user's scope
func (m *MockTransactionRepository) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	if t, ok := m.Transactions[id]; ok && t.UserID == userID {
		return t, nil
	}
	return nil, domain.ErrTransactionNotFound
}

// ListByUser returns the user's transactions matching filters, newest first
func (m *MockTransactionRepository) ListByUser(ctx context.Context, userID string, filters *domain.TransactionFilters) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	for _, t := range m.Transactions {
		if t.UserID == userID && filters.Matches(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return result, nil
}

// SumByType totals the user's transactions of one type
func (m *MockTransactionRepository) SumByType(ctx context.Context, userID string, txType domain.TransactionType) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range m.Transactions {
		if t.UserID == userID && t.Type == txType {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

// Update applies a partial update to a transaction
func (m *MockTransactionRepository) Update(ctx context.Context, userID, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	t, err := m.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(t)
	t.UpdatedAt = time.Now()
	return t, nil
}

// Delete removes a transaction
func (m *MockTransactionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	if t, ok := m.Transactions[id]; ok && t.UserID == userID {
		delete(m.Transactions, id)
		return true, nil
	}
	return false, nil
}

// AddTransaction adds a transaction to the mock repository (helper for tests)
func (m *MockTransactionRepository) AddTransaction(transaction *domain.Transaction) {
	m.Transactions[transaction.ID] = transaction
}

// MockBudgetRepository is a mock implementation of domain.BudgetRepository.
// It counts every write so tests can assert that read-only paths stay read-only.
type MockBudgetRepository struct {
	mu      sync.Mutex
	Budgets map[string]*domain.Budget

	CreateCalls         int
	UpdateCalls         int
	UpdateSpentCalls    int
	IncrementSpentCalls int
	AdvanceStatusCalls  int
	DeleteCalls         int

	FindActiveByCategoryFn func(userID, categoryID string) (*domain.Budget, error)
	GetByIDFn              func(id string) (*domain.Budget, error)
	UpdateFn               func(id string, patch domain.BudgetPatch) (*domain.Budget, error)
	IncrementSpentFn       func(id string, delta decimal.Decimal) (*domain.Budget, error)
	AdvanceStatusFn        func(id string, status domain.BudgetStatus) (*domain.Budget, error)
}

// NewMockBudgetRepository creates a new MockBudgetRepository
func NewMockBudgetRepository() *MockBudgetRepository {
	return &MockBudgetRepository{
		Budgets: make(map[string]*domain.Budget),
	}
}

// WriteCount returns the total number of write calls made
func (m *MockBudgetRepository) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls + m.UpdateCalls + m.UpdateSpentCalls + m.IncrementSpentCalls + m.AdvanceStatusCalls + m.DeleteCalls
}

func (m *MockBudgetRepository) findByCategory(userID, categoryID string, match func(domain.BudgetStatus) bool) *domain.Budget {
	for _, b := range m.Budgets {
		if b.UserID == userID && b.CategoryID == categoryID && match(b.Status) {
			c := *b
			return &c
		}
	}
	return nil
}

// FindActiveByCategory returns the ACTIVE budget for the pair, or nil
func (m *MockBudgetRepository) FindActiveByCategory(ctx context.Context, userID, categoryID string) (*domain.Budget, error) {
	if m.FindActiveByCategoryFn != nil {
		return m.FindActiveByCategoryFn(userID, categoryID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByCategory(userID, categoryID, func(s domain.BudgetStatus) bool { return s == domain.BudgetStatusActive }), nil
}

// FindLiveByCategory returns the live budget for the pair, or nil
func (m *MockBudgetRepository) FindLiveByCategory(ctx context.Context, userID, categoryID string) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByCategory(userID, categoryID, domain.BudgetStatus.IsLive), nil
}

// GetByID retrieves a budget by ID
func (m *MockBudgetRepository) GetByID(ctx context.Context, id string) (*domain.Budget, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.Budgets[id]; ok {
		c := *b
		return &c, nil
	}
	return nil, domain.ErrBudgetNotFound
}

// List returns budgets matching filter, oldest first
func (m *MockBudgetRepository) List(ctx context.Context, filter domain.BudgetFilter) ([]*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Budget, 0)
	for _, b := range m.Budgets {
		if filter.Matches(b) {
			c := *b
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Create stores a new budget
func (m *MockBudgetRepository) Create(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	c := *budget
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.Budgets[c.ID] = &c
	out := c
	return &out, nil
}

// Update applies a partial update
func (m *MockBudgetRepository) Update(ctx context.Context, id string, patch domain.BudgetPatch) (*domain.Budget, error) {
	m.mu.Lock()
	m.UpdateCalls++
	m.mu.Unlock()
	if m.UpdateFn != nil {
		return m.UpdateFn(id, patch)
	}
	return m.mutate(id, func(b *domain.Budget) { patch.Apply(b) })
}

// UpdateSpent overwrites the spent amount
func (m *MockBudgetRepository) UpdateSpent(ctx context.Context, id string, spentAmount decimal.Decimal) (*domain.Budget, error) {
	m.mu.Lock()
	m.UpdateSpentCalls++
	m.mu.Unlock()
	return m.mutate(id, func(b *domain.Budget) { b.SpentAmount = spentAmount })
}

// IncrementSpent adds delta to the spent amount
func (m *MockBudgetRepository) IncrementSpent(ctx context.Context, id string, delta decimal.Decimal) (*domain.Budget, error) {
	m.mu.Lock()
	m.IncrementSpentCalls++
	m.mu.Unlock()
	if m.IncrementSpentFn != nil {
		return m.IncrementSpentFn(id, delta)
	}
	return m.mutate(id, func(b *domain.Budget) { b.SpentAmount = b.SpentAmount.Add(delta) })
}

// AdvanceStatus moves the status forward only
func (m *MockBudgetRepository) AdvanceStatus(ctx context.Context, id string, status domain.BudgetStatus) (*domain.Budget, error) {
	m.mu.Lock()
	m.AdvanceStatusCalls++
	m.mu.Unlock()
	if m.AdvanceStatusFn != nil {
		return m.AdvanceStatusFn(id, status)
	}
	return m.mutate(id, func(b *domain.Budget) {
		if status.Rank() > b.Status.Rank() {
			b.Status = status
		}
	})
}

// Delete removes a budget
func (m *MockBudgetRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if _, ok := m.Budgets[id]; !ok {
		return false, nil
	}
	delete(m.Budgets, id)
	return true, nil
}

func (m *MockBudgetRepository) mutate(id string, fn func(b *domain.Budget)) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Budgets[id]
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}
	fn(b)
	b.UpdatedAt = time.Now()
	c := *b
	return &c, nil
}

// AddBudget adds a budget to the mock repository (helper for tests)
func (m *MockBudgetRepository) AddBudget(budget *domain.Budget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Budgets[budget.ID] = budget
}

// Stored returns the persisted copy of a budget, or nil
func (m *MockBudgetRepository) Stored(id string) *domain.Budget {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Budgets[id]
	if !ok {
		return nil
	}
	c := *b
	return &c
}

// PublishedEvent is one event captured by MockEventPublisher
type PublishedEvent struct {
	UserID string
	Event  websocket.Event
}

// MockEventPublisher records websocket events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// Publish records the event
func (m *MockEventPublisher) Publish(userID string, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{UserID: userID, Event: event})
}

// Types returns the recorded event types in order
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Event.Type
	}
	return types
}

// MockAlertPublisher records broker alerts
type MockAlertPublisher struct {
	mu     sync.Mutex
	Alerts []*broker.BudgetAlertMessage
}

// PublishBudgetAlert records the alert
func (m *MockAlertPublisher) PublishBudgetAlert(ctx context.Context, msg *broker.BudgetAlertMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, msg)
}

// Count returns the number of recorded alerts
func (m *MockAlertPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// MockReceiptStorage is an in-memory object store
type MockReceiptStorage struct {
	mu       sync.Mutex
	Objects  map[string][]byte
	UploadFn func(objectPath string) error
}

// NewMockReceiptStorage creates a new MockReceiptStorage
func NewMockReceiptStorage() *MockReceiptStorage {
	return &MockReceiptStorage{Objects: make(map[string][]byte)}
}

// Upload stores the object bytes
func (m *MockReceiptStorage) Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error) {
	if m.UploadFn != nil {
		if err := m.UploadFn(objectPath); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[objectPath] = buf.Bytes()
	return objectPath, nil
}

// Delete removes the object
func (m *MockReceiptStorage) Delete(ctx context.Context, objectPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Objects[objectPath]; !ok {
		return errors.New("object not found")
	}
	delete(m.Objects, objectPath)
	return nil
}

// GeneratePresignedURL returns a fake signed URL for the object
func (m *MockReceiptStorage) GeneratePresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	return "https://storage.test/" + objectPath + "?expires=" + expiry.String(), nil
}

// Paths returns the stored object paths, sorted
func (m *MockReceiptStorage) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.Objects))
	for p := range m.Objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
