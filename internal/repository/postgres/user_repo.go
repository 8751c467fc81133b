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

const userColumns = `id, email, password_hash, first_name, last_name, is_email_verified, created_at, updated_at`

// UserRepository implements domain.UserRepository using PostgreSQL
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by their UUID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	pgID, ok := parseID(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, pgID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by their email address
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// List retrieves all users ordered by creation time
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	id := uuid.New()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, is_email_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		pgtype.UUID{Bytes: id, Valid: true}, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.IsEmailVerified,
	)
	created, err := scanUser(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrEmailAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		id        pgtype.UUID
		user      domain.User
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.IsEmailVerified, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.ID = pgUUIDToString(id)
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}
