package deliverylog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/tracing"
	"github.com/onnwee/beaconads/internal/validate"
)

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

// Append implements Repository.
func (r *PostgresRepository) Append(ctx context.Context, l *Log) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "advertisement_logs", tracing.DBOperationInsert)
	defer func() { end(err) }()

	var ts any
	if !l.Timestamp.IsZero() {
		ts = l.Timestamp.UTC()
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO advertisement_logs (beacon_id, advertisement_id, logged_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		RETURNING id, logged_at
	`, l.BeaconID, l.AdvertisementID, ts).Scan(&l.ID, &l.Timestamp)
	if db.IsForeignKeyViolation(err) {
		if strings.Contains(db.ConstraintName(err), "advertisement_id") {
			return validate.FieldErrors{"advertisement_id": "advertisement not found"}
		}
		return validate.FieldErrors{"beacon_id": "beacon not found"}
	}
	if err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	l.Timestamp = l.Timestamp.UTC()
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (l *Log, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrLogNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_logs", tracing.DBOperationQuery)
	defer func() { end(err) }()

	l = &Log{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, beacon_id, advertisement_id, logged_at FROM advertisement_logs WHERE id = $1
	`, id).Scan(&l.ID, &l.BeaconID, &l.AdvertisementID, &l.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	l.Timestamp = l.Timestamp.UTC()
	return l, nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) (out []*Log, total int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "advertisement_logs", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var (
		where []string
		args  []any
	)
	if f.BeaconID != "" {
		if uuid.Validate(f.BeaconID) != nil {
			return []*Log{}, 0, nil
		}
		args = append(args, f.BeaconID)
		where = append(where, "beacon_id = $"+strconv.Itoa(len(args)))
	}
	if f.AdvertisementID != "" {
		if uuid.Validate(f.AdvertisementID) != nil {
			return []*Log{}, 0, nil
		}
		args = append(args, f.AdvertisementID)
		where = append(where, "advertisement_id = $"+strconv.Itoa(len(args)))
	}
	if f.Since != nil {
		args = append(args, f.Since.UTC())
		where = append(where, "logged_at >= $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM advertisement_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery logs: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT id, beacon_id, advertisement_id, logged_at FROM advertisement_logs` + clause +
		` ORDER BY logged_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	defer rows.Close()

	out = []*Log{}
	for rows.Next() {
		var l Log
		if err = rows.Scan(&l.ID, &l.BeaconID, &l.AdvertisementID, &l.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		l.Timestamp = l.Timestamp.UTC()
		out = append(out, &l)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate delivery logs: %w", err)
	}
	return out, total, nil
}
