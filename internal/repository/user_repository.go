package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/event-service/internal/domain"
)

// UserRepository defines persistence access for accounts. Public user reads
// never join user_auth; credential lookups are explicit.
type UserRepository interface {
	CreateWithAuth(ctx context.Context, user *domain.User, passwordHash string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByIdentifier(ctx context.Context, username, email, phoneNumber string) (*domain.User, error)
	GetAuthByUserID(ctx context.Context, userID string) (*domain.UserAuth, error)
	UpdateProfile(ctx context.Context, user *domain.User) error
	TouchLastLogin(ctx context.Context, userID string) error
	List(ctx context.Context) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, first_name, last_name, phone_number, role, status, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateWithAuth inserts the user row and its user_auth row in a single
// transaction. If either write fails, neither is kept.
func (r *userRepository) CreateWithAuth(ctx context.Context, user *domain.User, passwordHash string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertUser = `
        INSERT INTO users (username, email, first_name, last_name, phone_number, role, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	if err := tx.QueryRow(ctx, insertUser,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.Role,
		user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return err
	}

	const insertAuth = `
        INSERT INTO user_auth (user_id, password_hash)
        VALUES ($1, $2)`

	if _, err := tx.Exec(ctx, insertAuth, user.ID, passwordHash); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// FindByIdentifier matches an account by username, email or phone number,
// whichever is provided.
func (r *userRepository) FindByIdentifier(ctx context.Context, username, email, phoneNumber string) (*domain.User, error) {
	const query = `
        SELECT ` + userColumns + `
        FROM users
        WHERE (username = $1 AND $1 <> '')
           OR (email = $2 AND $2 <> '')
           OR (phone_number = $3 AND $3 <> '')`

	return scanUser(r.pool.QueryRow(ctx, query, username, email, phoneNumber))
}

func (r *userRepository) GetAuthByUserID(ctx context.Context, userID string) (*domain.UserAuth, error) {
	const query = `
        SELECT id, user_id, password_hash, last_login
        FROM user_auth WHERE user_id=$1`

	var auth domain.UserAuth
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&auth.ID,
		&auth.UserID,
		&auth.PasswordHash,
		&auth.LastLogin,
	); err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET username=$1, first_name=$2, last_name=$3, phone_number=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`

	return r.pool.QueryRow(ctx, query,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.ID,
	).Scan(&user.UpdatedAt)
}

func (r *userRepository) TouchLastLogin(ctx context.Context, userID string) error {
	const query = `UPDATE user_auth SET last_login=NOW() WHERE user_id=$1`

	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}
