package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/tracing"
)

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(conn *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: conn, logger: logger}
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, u *User) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationInsert)
	defer func() { end(err) }()

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, u.Username, u.Email, u.PasswordHash).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		if strings.Contains(db.ConstraintName(err), "email") {
			return ErrDuplicateEmail
		}
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrUserNotFound
	}
	return r.getBy(ctx, `id = $1`, id)
}

// GetByEmail implements Repository.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, `lower(email) = lower($1)`, email)
}

// GetByUsername implements Repository.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, `lower(username) = lower($1)`, username)
}

func (r *PostgresRepository) getBy(ctx context.Context, where string, arg string) (u *User, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() { end(err) }()

	u, err = scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetPasswordHash implements Repository.
func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id, hash string) (err error) {
	if uuid.Validate(id) != nil {
		return ErrUserNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateResetCode implements Repository.
func (r *PostgresRepository) CreateResetCode(ctx context.Context, c *ResetCode) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "password_reset_codes", tracing.DBOperationInsert)
	defer func() { end(err) }()

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO password_reset_codes (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.UserID, c.Code, c.ExpiresAt.UTC()).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reset code: %w", err)
	}
	return nil
}

// ConsumeResetCode implements Repository. The row lock makes two concurrent
// confirmations of the same code succeed at most once.
func (r *PostgresRepository) ConsumeResetCode(ctx context.Context, userID, code string, now time.Time) (err error) {
	if uuid.Validate(userID) != nil {
		return ErrInvalidResetCode
	}

	ctx, end := tracing.StartDBSpan(ctx, "password_reset_codes", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	var id string
	err = r.db.QueryRowContext(ctx, `
		UPDATE password_reset_codes SET used = TRUE
		WHERE id = (
			SELECT id FROM password_reset_codes
			WHERE user_id = $1 AND code = $2 AND NOT used AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, userID, code, now.UTC()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidResetCode
	}
	if err != nil {
		return fmt.Errorf("failed to consume reset code: %w", err)
	}
	return nil
}
