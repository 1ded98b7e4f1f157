package advertisement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/tracing"
)

const adColumns = `id, title, content, media_key, media_type, is_active, created_by, created_at, updated_at`

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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAd(row rowScanner) (*Advertisement, error) {
	var (
		a                   Advertisement
		mediaKey, createdBy sql.NullString
	)
	err := row.Scan(&a.ID, &a.Title, &a.Content, &mediaKey, &a.MediaType, &a.IsActive,
		&createdBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if mediaKey.Valid {
		a.MediaKey = &mediaKey.String
	}
	if createdBy.Valid {
		a.CreatedBy = &createdBy.String
	}
	return &a, nil
}

// ScanRow scans a row selected with the advertisement columns in table
// order, for queries in other packages that join advertisements.
func ScanRow(row interface{ Scan(dest ...any) error }) (*Advertisement, error) {
	return scanAd(row)
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, a *Advertisement) (err error) {
	if err := a.Normalize(); err != nil {
		return err
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO advertisements (title, content, media_type, is_active, created_by)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING id, is_active, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, a.Title, a.Content, a.MediaType, a.CreatedBy).
		Scan(&a.ID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert advertisement: %w", err)
	}
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (a *Advertisement, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrAdvertisementNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	a, err = scanAd(r.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM advertisements WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdvertisementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get advertisement: %w", err)
	}
	return a, nil
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, id string, u *Update) (a *Advertisement, err error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if uuid.Validate(id) != nil {
		return nil, ErrAdvertisementNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	// COALESCE keeps columns whose update field is absent.
	query := `
		UPDATE advertisements SET
			title = COALESCE($2, title),
			content = COALESCE($3, content),
			media_type = COALESCE($4, media_type),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + adColumns
	var mediaType *string
	if u.MediaType != nil {
		s := string(*u.MediaType)
		mediaType = &s
	}
	a, err = scanAd(r.db.QueryRowContext(ctx, query, id, u.Title, u.Content, mediaType, u.IsActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdvertisementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update advertisement: %w", err)
	}
	return a, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	if uuid.Validate(id) != nil {
		return ErrAdvertisementNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM advertisements WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("failed to delete advertisement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAdvertisementNotFound
	}
	return nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) (out []*Advertisement, total int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, db.ContainsPattern(s))
		n := strconv.Itoa(len(args))
		where = append(where, "(title ILIKE $"+n+" OR content ILIKE $"+n+")")
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, "is_active = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM advertisements`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count advertisements: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT ` + adColumns + ` FROM advertisements` + clause +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list advertisements: %w", err)
	}
	defer rows.Close()

	out = []*Advertisement{}
	for rows.Next() {
		a, scanErr := scanAd(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan advertisement: %w", scanErr)
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate advertisements: %w", err)
	}
	return out, total, nil
}

// SetMedia implements Repository.
func (r *PostgresRepository) SetMedia(ctx context.Context, id, key string, mediaType MediaType) (a *Advertisement, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrAdvertisementNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE advertisements SET media_key = $2, media_type = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + adColumns
	a, err = scanAd(r.db.QueryRowContext(ctx, query, id, key, mediaType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdvertisementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set advertisement media: %w", err)
	}
	return a, nil
}

// Deactivate implements Repository.
func (r *PostgresRepository) Deactivate(ctx context.Context, ids []string, at time.Time) (n int, err error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `
		UPDATE advertisements SET is_active = FALSE, updated_at = $2
		WHERE id = ANY($1::uuid[]) AND is_active
	`, pq.Array(valid), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate advertisements: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		r.logger.Info("advertisements deactivated", slog.Int64("count", affected))
	}
	return int(affected), nil
}
