package domain

import (
	"context"
	"regexp"
	"time"
)

type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "INCOME"
	CategoryTypeExpense CategoryType = "EXPENSE"
)

// Valid reports whether t is a known category type
func (t CategoryType) Valid() bool {
	return t == CategoryTypeIncome || t == CategoryTypeExpense
}

var hexColorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// IsValidColor reports whether color is a #rgb or #rrggbb hex string
func IsValidColor(color string) bool {
	return hexColorRegex.MatchString(color)
}

type Category struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Name      string       `json:"name"`
	Type      CategoryType `json:"type"`
	Color     string       `json:"color"`
	Icon      string       `json:"icon"`
	IsDefault bool         `json:"isDefault"`
	CreatedAt time.Time    `json:"createdAt"`
}

// CategoryPatch is a partial category update. Nil fields are left untouched.
type CategoryPatch struct {
	Name  *string
	Type  *CategoryType
	Color *string
	Icon  *string
}

type CategoryRepository interface {
	Create(ctx context.Context, category *Category) (*Category, error)
	GetByID(ctx context.Context, userID, id string) (*Category, error)
	ListByUser(ctx context.Context, userID string, categoryType *CategoryType) ([]*Category, error)
	Update(ctx context.Context, userID, id string, patch CategoryPatch) (*Category, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}
