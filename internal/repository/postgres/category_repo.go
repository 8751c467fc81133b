package postgres

import (
	"context"
	"errors"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const categoryColumns = `id, user_id, name, type, color, icon, is_default, created_at`

// CategoryRepository implements domain.CategoryRepository using PostgreSQL
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Create creates a new category
func (r *CategoryRepository) Create(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	userID, ok := parseID(category.UserID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO categories (id, user_id, name, type, color, icon, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+categoryColumns,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, userID, category.Name, string(category.Type),
		category.Color, category.Icon, category.IsDefault,
	)
	created, err := scanCategory(row)
	if err != nil {
		// Check for unique constraint violation
		if isPgUniqueViolation(err) {
			return nil, domain.ErrCategoryAlreadyExists
		}
		if isPgForeignKeyViolation(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a category by its ID for a user
func (r *CategoryRepository) GetByID(ctx context.Context, userID, id string) (*domain.Category, error) {
	pgUserID, ok := parseID(userID)
	pgID, idOK := parseID(id)
	if !ok || !idOK {
		return nil, domain.ErrCategoryNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND id = $2`, pgUserID, pgID)
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, err
	}
	return category, nil
}

// ListByUser retrieves a user's categories, optionally narrowed to one type
func (r *CategoryRepository) ListByUser(ctx context.Context, userID string, categoryType *domain.CategoryType) ([]*domain.Category, error) {
	pgUserID, ok := parseID(userID)
	if !ok {
		return []*domain.Category{}, nil
	}
	var typeFilter pgtype.Text
	if categoryType != nil {
		typeFilter = pgtype.Text{String: string(*categoryType), Valid: true}
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE user_id = $1 AND ($2::text IS NULL OR type = $2)
		ORDER BY name`, pgUserID, typeFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]*domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// Update applies a partial update to a category
func (r *CategoryRepository) Update(ctx context.Context, userID, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	pgUserID, ok := parseID(userID)
	pgID, idOK := parseID(id)
	if !ok || !idOK {
		return nil, domain.ErrCategoryNotFound
	}
	var categoryType *string
	if patch.Type != nil {
		t := string(*patch.Type)
		categoryType = &t
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE categories SET
			name  = COALESCE($3, name),
			type  = COALESCE($4, type),
			color = COALESCE($5, color),
			icon  = COALESCE($6, icon)
		WHERE user_id = $1 AND id = $2
		RETURNING `+categoryColumns,
		pgUserID, pgID, stringPtrToPgText(patch.Name), stringPtrToPgText(categoryType),
		stringPtrToPgText(patch.Color), stringPtrToPgText(patch.Icon),
	)
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		if isPgUniqueViolation(err) {
			return nil, domain.ErrCategoryAlreadyExists
		}
		return nil, err
	}
	return category, nil
}

// Delete removes a category. Reports false when nothing matched.
func (r *CategoryRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	pgUserID, ok := parseID(userID)
	pgID, idOK := parseID(id)
	if !ok || !idOK {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE user_id = $1 AND id = $2`, pgUserID, pgID)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return false, domain.ErrCategoryInUse
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var (
		id, userID   pgtype.UUID
		categoryType string
		createdAt    pgtype.Timestamptz
		category     domain.Category
	)
	if err := row.Scan(&id, &userID, &category.Name, &categoryType, &category.Color, &category.Icon,
		&category.IsDefault, &createdAt); err != nil {
		return nil, err
	}
	category.ID = pgUUIDToString(id)
	category.UserID = pgUUIDToString(userID)
	category.Type = domain.CategoryType(categoryType)
	category.CreatedAt = createdAt.Time
	return &category, nil
}
