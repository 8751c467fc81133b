package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const budgetColumns = `id, user_id, category_id, limit_amount, limit_currency, spent_amount, period, status,
	start_date, end_date, alert_threshold, created_at, updated_at`

// statusRank mirrors domain.BudgetStatus.Rank for guarded status writes
const statusRank = `ARRAY['CREATED', 'ACTIVE', 'WARNING', 'EXCEEDED']::text[]`

// BudgetRepository implements domain.BudgetRepository using PostgreSQL
type BudgetRepository struct {
	pool *pgxpool.Pool
}

// NewBudgetRepository creates a new BudgetRepository
func NewBudgetRepository(pool *pgxpool.Pool) *BudgetRepository {
	return &BudgetRepository{pool: pool}
}

// FindActiveByCategory returns the ACTIVE budget for a user's category, or nil
func (r *BudgetRepository) FindActiveByCategory(ctx context.Context, userID, categoryID string) (*domain.Budget, error) {
	return r.findByCategory(ctx, userID, categoryID, []string{string(domain.BudgetStatusActive)})
}

// FindLiveByCategory returns the live (ACTIVE, WARNING or EXCEEDED) budget for a user's category, or nil
func (r *BudgetRepository) FindLiveByCategory(ctx context.Context, userID, categoryID string) (*domain.Budget, error) {
	return r.findByCategory(ctx, userID, categoryID, []string{
		string(domain.BudgetStatusActive),
		string(domain.BudgetStatusWarning),
		string(domain.BudgetStatusExceeded),
	})
}

func (r *BudgetRepository) findByCategory(ctx context.Context, userID, categoryID string, statuses []string) (*domain.Budget, error) {
	pgUserID, ok := parseID(userID)
	pgCategoryID, catOK := parseID(categoryID)
	if !ok || !catOK {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+budgetColumns+` FROM budgets
		WHERE user_id = $1 AND category_id = $2 AND status = ANY($3)
		ORDER BY created_at DESC
		LIMIT 1`, pgUserID, pgCategoryID, statuses)
	budget, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return budget, nil
}

// GetByID retrieves a budget by its ID
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*domain.Budget, error) {
	pgID, ok := parseID(id)
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, pgID)
	budget, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBudgetNotFound
		}
		return nil, err
	}
	return budget, nil
}

// List retrieves budgets matching the filter, newest first
func (r *BudgetRepository) List(ctx context.Context, filter domain.BudgetFilter) ([]*domain.Budget, error) {
	var (
		userID     pgtype.UUID
		categoryID pgtype.UUID
		status     pgtype.Text
	)
	if filter.UserID != "" {
		parsed, ok := parseID(filter.UserID)
		if !ok {
			return []*domain.Budget{}, nil
		}
		userID = parsed
	}
	if filter.CategoryID != "" {
		parsed, ok := parseID(filter.CategoryID)
		if !ok {
			return []*domain.Budget{}, nil
		}
		categoryID = parsed
	}
	if filter.Status != "" {
		status = pgtype.Text{String: string(filter.Status), Valid: true}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+budgetColumns+` FROM budgets
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::uuid IS NULL OR category_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		ORDER BY created_at DESC`, userID, categoryID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := make([]*domain.Budget, 0)
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

// Create creates a new budget
func (r *BudgetRepository) Create(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	userID, ok := parseID(budget.UserID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	categoryID, ok := parseID(budget.CategoryID)
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	limit, err := decimalToPgNumeric(budget.LimitAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid limit amount: %w", err)
	}
	spent, err := decimalToPgNumeric(budget.SpentAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid spent amount: %w", err)
	}
	threshold, err := decimalToPgNumeric(budget.AlertThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid alert threshold: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO budgets (id, user_id, category_id, limit_amount, limit_currency, spent_amount, period,
			status, start_date, end_date, alert_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+budgetColumns,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, userID, categoryID, limit, budget.LimitCurrency, spent,
		string(budget.Period), string(budget.Status),
		pgtype.Date{Time: budget.StartDate, Valid: true}, pgtype.Date{Time: budget.EndDate, Valid: true},
		threshold,
	)
	created, err := scanBudget(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrBudgetAlreadyActive
		}
		if isPgForeignKeyViolation(err) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, err
	}
	return created, nil
}

// Update applies a partial update to a budget
func (r *BudgetRepository) Update(ctx context.Context, id string, patch domain.BudgetPatch) (*domain.Budget, error) {
	pgID, ok := parseID(id)
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}

	var (
		limit, spent, threshold pgtype.Numeric
		period, status          *string
		startDate, endDate      pgtype.Date
		err                     error
	)
	if patch.LimitAmount != nil {
		if limit, err = decimalToPgNumeric(*patch.LimitAmount); err != nil {
			return nil, fmt.Errorf("invalid limit amount: %w", err)
		}
	}
	if patch.SpentAmount != nil {
		if spent, err = decimalToPgNumeric(*patch.SpentAmount); err != nil {
			return nil, fmt.Errorf("invalid spent amount: %w", err)
		}
	}
	if patch.AlertThreshold != nil {
		if threshold, err = decimalToPgNumeric(*patch.AlertThreshold); err != nil {
			return nil, fmt.Errorf("invalid alert threshold: %w", err)
		}
	}
	if patch.Period != nil {
		p := string(*patch.Period)
		period = &p
	}
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	if patch.StartDate != nil {
		startDate = pgtype.Date{Time: *patch.StartDate, Valid: true}
	}
	if patch.EndDate != nil {
		endDate = pgtype.Date{Time: *patch.EndDate, Valid: true}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE budgets SET
			limit_amount    = COALESCE($2, limit_amount),
			limit_currency  = COALESCE($3, limit_currency),
			spent_amount    = COALESCE($4, spent_amount),
			period          = COALESCE($5, period),
			status          = COALESCE($6, status),
			start_date      = COALESCE($7, start_date),
			end_date        = COALESCE($8, end_date),
			alert_threshold = COALESCE($9, alert_threshold),
			updated_at      = NOW()
		WHERE id = $1
		RETURNING `+budgetColumns,
		pgID, limit, stringPtrToPgText(patch.LimitCurrency), spent, stringPtrToPgText(period),
		stringPtrToPgText(status), startDate, endDate, threshold,
	)
	budget, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBudgetNotFound
		}
		if isPgUniqueViolation(err) {
			return nil, domain.ErrBudgetAlreadyActive
		}
		return nil, err
	}
	return budget, nil
}

// UpdateSpent overwrites the spent amount of a budget
func (r *BudgetRepository) UpdateSpent(ctx context.Context, id string, spentAmount decimal.Decimal) (*domain.Budget, error) {
	return r.Update(ctx, id, domain.BudgetPatch{SpentAmount: &spentAmount})
}

// IncrementSpent adds delta to the stored spent amount in a single statement
func (r *BudgetRepository) IncrementSpent(ctx context.Context, id string, delta decimal.Decimal) (*domain.Budget, error) {
	pgID, ok := parseID(id)
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}
	amount, err := decimalToPgNumeric(delta)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE budgets SET spent_amount = spent_amount + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+budgetColumns, pgID, amount)
	budget, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBudgetNotFound
		}
		return nil, err
	}
	return budget, nil
}

// AdvanceStatus writes status only when it ranks above the stored one.
// The stored budget is returned either way.
func (r *BudgetRepository) AdvanceStatus(ctx context.Context, id string, status domain.BudgetStatus) (*domain.Budget, error) {
	pgID, ok := parseID(id)
	if !ok {
		return nil, domain.ErrBudgetNotFound
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE budgets SET status = $2, updated_at = NOW()
		WHERE id = $1
		  AND array_position(`+statusRank+`, status::text) < array_position(`+statusRank+`, $2::text)
		RETURNING `+budgetColumns, pgID, string(status))
	budget, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either missing or already at or past status
			return r.GetByID(ctx, id)
		}
		if isPgUniqueViolation(err) {
			return nil, domain.ErrBudgetAlreadyActive
		}
		return nil, err
	}
	return budget, nil
}

// Delete removes a budget. Reports false when nothing matched.
func (r *BudgetRepository) Delete(ctx context.Context, id string) (bool, error) {
	pgID, ok := parseID(id)
	if !ok {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM budgets WHERE id = $1`, pgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanBudget(row rowScanner) (*domain.Budget, error) {
	var (
		id, userID, categoryID pgtype.UUID
		limit, spent           pgtype.Numeric
		threshold              pgtype.Numeric
		period, status         string
		startDate, endDate     pgtype.Date
		createdAt, updatedAt   pgtype.Timestamptz
		budget                 domain.Budget
	)
	if err := row.Scan(&id, &userID, &categoryID, &limit, &budget.LimitCurrency, &spent, &period, &status,
		&startDate, &endDate, &threshold, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	budget.ID = pgUUIDToString(id)
	budget.UserID = pgUUIDToString(userID)
	budget.CategoryID = pgUUIDToString(categoryID)
	budget.LimitAmount = pgNumericToDecimal(limit)
	budget.SpentAmount = pgNumericToDecimal(spent)
	budget.AlertThreshold = pgNumericToDecimal(threshold)
	budget.Period = domain.BudgetPeriod(period)
	budget.Status = domain.BudgetStatus(status)
	budget.StartDate = startDate.Time
	budget.EndDate = endDate.Time
	budget.CreatedAt = createdAt.Time
	budget.UpdatedAt = updatedAt.Time
	return &budget, nil
}
