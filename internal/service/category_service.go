package service

import (
	"context"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
)

// CategoryService handles category business logic
type CategoryService struct {
	categoryRepo    domain.CategoryRepository
	transactionRepo domain.TransactionRepository
	eventPublisher  websocket.EventPublisher
}

// NewCategoryService creates a new CategoryService
func NewCategoryService(categoryRepo domain.CategoryRepository, transactionRepo domain.TransactionRepository) *CategoryService {
	return &CategoryService{
		categoryRepo:    categoryRepo,
		transactionRepo: transactionRepo,
		eventPublisher:  websocket.NoOpPublisher{},
	}
}

// SetEventPublisher sets the event publisher for real-time updates. nil disables events.
func (s *CategoryService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = websocket.OrNoOp(publisher)
}

func (s *CategoryService) publishEvent(userID string, event websocket.Event) {
	s.eventPublisher.Publish(userID, event)
}

// CreateCategoryInput holds the input for creating a category
type CreateCategoryInput struct {
	Name  string
	Type  domain.CategoryType
	Color string
	Icon  string
}

// CreateCategory creates a new, non-default category for the user
func (s *CategoryService) CreateCategory(ctx context.Context, userID string, input CreateCategoryInput) (*domain.Category, error) {
	name, err := validateCategoryName(input.Name)
	if err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, domain.ErrInvalidCategoryType
	}
	color := strings.TrimSpace(input.Color)
	if color != "" && !domain.IsValidColor(color) {
		return nil, domain.ErrInvalidColor
	}

	category := &domain.Category{
		UserID:    userID,
		Name:      name,
		Type:      input.Type,
		Color:     color,
		Icon:      strings.TrimSpace(input.Icon),
		IsDefault: false,
	}

	created, err := s.categoryRepo.Create(ctx, category)
	if err != nil {
		return nil, err
	}
	s.publishEvent(userID, websocket.Categories.Created(created))
	return created, nil
}

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrNameRequired
	}
	if len(name) > domain.MaxCategoryNameLength {
		return "", domain.ErrNameTooLong
	}
	return name, nil
}

// GetCategories retrieves the user's categories, optionally only those of one type
func (s *CategoryService) GetCategories(ctx context.Context, userID string, categoryType *domain.CategoryType) ([]*domain.Category, error) {
	if categoryType != nil && !categoryType.Valid() {
		return nil, domain.ErrInvalidCategoryType
	}
	return s.categoryRepo.ListByUser(ctx, userID, categoryType)
}

// GetCategoryByID retrieves a category owned by the user
func (s *CategoryService) GetCategoryByID(ctx context.Context, userID, id string) (*domain.Category, error) {
	return s.categoryRepo.GetByID(ctx, userID, id)
}

// UpdateCategory applies a partial update
func (s *CategoryService) UpdateCategory(ctx context.Context, userID, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	if patch.Name != nil {
		name, err := validateCategoryName(*patch.Name)
		if err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, domain.ErrInvalidCategoryType
	}
	if patch.Color != nil && !domain.IsValidColor(*patch.Color) {
		return nil, domain.ErrInvalidColor
	}

	updated, err := s.categoryRepo.Update(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}
	s.publishEvent(userID, websocket.Categories.Updated(updated))
	return updated, nil
}

// DeleteCategory removes a category that no transaction references
func (s *CategoryService) DeleteCategory(ctx context.Context, userID, id string) error {
	if _, err := s.categoryRepo.GetByID(ctx, userID, id); err != nil {
		return err
	}

	inUse, err := s.transactionRepo.ListByUser(ctx, userID, &domain.TransactionFilters{CategoryID: &id})
	if err != nil {
		return err
	}
	if len(inUse) > 0 {
		return domain.ErrCategoryInUse
	}

	deleted, err := s.categoryRepo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrCategoryNotFound
	}
	s.publishEvent(userID, websocket.Categories.Deleted(id))
	return nil
}
