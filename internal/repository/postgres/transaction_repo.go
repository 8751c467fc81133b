package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, category_id, type, amount, currency, description, date, receipt_path, created_at, updated_at`

// TransactionRepository implements domain.TransactionRepository using PostgreSQL
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create creates a new transaction
func (r *TransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) (*domain.Transaction, error) {
	userID, ok := parseID(transaction.UserID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	categoryID, ok := parseID(transaction.CategoryID)
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	amount, err := decimalToPgNumeric(transaction.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, category_id, type, amount, currency, description, date, receipt_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+transactionColumns,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, userID, categoryID, string(transaction.Type), amount,
		transaction.Currency, transaction.Description, pgtype.Date{Time: transaction.Date, Valid: true},
		stringPtrToPgText(transaction.ReceiptPath),
	)
	created, err := scanTransaction(row)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a transaction by its ID for a user
func (r *TransactionRepository) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	pgUserID, ok := parseID(userID)
	pgID, idOK := parseID(id)
	if !ok || !idOK {
		return nil, domain.ErrTransactionNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND id = $2`, pgUserID, pgID)
	transaction, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return transaction, nil
}

// ListByUser retrieves a user's transactions, newest first, with optional filters
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, filters *domain.TransactionFilters) ([]*domain.Transaction, error) {
	pgUserID, ok := parseID(userID)
	if !ok {
		return []*domain.Transaction{}, nil
	}

	var (
		categoryID pgtype.UUID
		txType     pgtype.Text
		startDate  pgtype.Date
		endDate    pgtype.Date
	)
	if filters != nil {
		if filters.CategoryID != nil {
			parsed, ok := parseID(*filters.CategoryID)
			if !ok {
				return []*domain.Transaction{}, nil
			}
			categoryID = parsed
		}
		if filters.Type != nil {
			txType = pgtype.Text{String: string(*filters.Type), Valid: true}
		}
		if filters.StartDate != nil {
			startDate = pgtype.Date{Time: *filters.StartDate, Valid: true}
		}
		if filters.EndDate != nil {
			endDate = pgtype.Date{Time: *filters.EndDate, Valid: true}
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1
		  AND ($2::uuid IS NULL OR category_id = $2)
		  AND ($3::text IS NULL OR type = $3)
		  AND ($4::date IS NULL OR date >= $4)
		  AND ($5::date IS NULL OR date <= $5)
		ORDER BY date DESC, created_at DESC`,
		pgUserID, categoryID, txType, startDate, endDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	return transactions, rows.Err()
}

// SumByType returns the total amount of a user's transactions of one type
func (r *TransactionRepository) SumByType(ctx context.Context, userID string, txType domain.TransactionType) (decimal.Decimal, error) {
	pgUserID, ok := parseID(userID)
	if !ok {
		return decimal.Zero, nil
	}
	var total pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND type = $2`, pgUserID, string(txType)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return pgNumericToDecimal(total), nil
}

// Update applies a partial update to a transaction
func (r *TransactionRepository) Update(ctx context.Context, userID, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	pgUserID, ok := parseID(userID)
	pgID, idOK := parseID(id)
	if !ok || !idOK {
		return nil, domain.ErrTransactionNotFound
	}

	var (
		categoryID pgtype.UUID
		txType     *string
		amount     pgtype.Numeric
		date       pgtype.Date
	)
	if patch.CategoryID != nil {
		parsed, ok := parseID(*patch.CategoryID)
		if !ok {
			return nil, domain.ErrCategoryNotFound
		}
		categoryID = parsed
	}
	if patch.Type != nil {
		t := string(*patch.Type)
		txType = &t
	}
	if patch.Amount != nil {
		num, err := decimalToPgNumeric(*patch.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount: %w", err)
		}
		amount = num
	}
	if patch.Date != nil {
		date = pgtype.Date{Time: *patch.Date, Valid: true}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE transactions SET
			category_id  = COALESCE($3, category_id),
			type         = COALESCE($4, type),
			amount       = COALESCE($5, amount),
			currency     = COALESCE($6, currency),
			description  = COALESCE($7, description),
			date         = COALESCE($8, date),
			receipt_path = COALESCE($9, receipt_path),
			updated_at   = $10
		WHERE user_id = $1 AND id = $2
		RETURNING `+transactionColumns,
		pgUserID, pgID, categoryID, stringPtrToPgText(txType), amount,
		stringPtrToPgText(patch.Currency), stringPtrToPgText(patch.Description), date,
		stringPtrToPgText(patch.ReceiptPath), time.Now(),
	)
	transaction, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		if isPgForeignKeyViolation(err) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, err
	}
	return transaction, nil
}

// Delete removes a transaction. Reports false when nothing matched.
func (r *TransactionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	pgUserID, ok := parseID(userID)
	pgID, idOK := parseID(id)
	if !ok || !idOK {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = $2`, pgUserID, pgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		id, userID, categoryID pgtype.UUID
		txType                 string
		amount                 pgtype.Numeric
		date                   pgtype.Date
		receiptPath            pgtype.Text
		createdAt, updatedAt   pgtype.Timestamptz
		transaction            domain.Transaction
	)
	if err := row.Scan(&id, &userID, &categoryID, &txType, &amount, &transaction.Currency,
		&transaction.Description, &date, &receiptPath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	transaction.ID = pgUUIDToString(id)
	transaction.UserID = pgUUIDToString(userID)
	transaction.CategoryID = pgUUIDToString(categoryID)
	transaction.Type = domain.TransactionType(txType)
	transaction.Amount = pgNumericToDecimal(amount)
	transaction.Date = date.Time
	transaction.ReceiptPath = pgTextToStringPtr(receiptPath)
	transaction.CreatedAt = createdAt.Time
	transaction.UpdatedAt = updatedAt.Time
	return &transaction, nil
}
