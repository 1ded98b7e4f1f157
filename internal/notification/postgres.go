package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/beaconads/internal/tracing"
)

const notificationColumns = `id, user_id, advertisement_id, message, is_read, created_at, read_at`

// PostgresRepository implements Repository using PostgreSQL. Fan-out is a
// single INSERT ... SELECT over users.
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

func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n      Notification
		adID   sql.NullString
		readAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.UserID, &adID, &n.Message, &n.IsRead, &n.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	if adID.Valid {
		n.AdvertisementID = &adID.String
	}
	if readAt.Valid {
		t := readAt.Time.UTC()
		n.ReadAt = &t
	}
	return &n, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// Fanout implements Repository.
func (r *PostgresRepository) Fanout(ctx context.Context, b Broadcast) (n int, err error) {
	if b.AdvertisementID != "" && uuid.Validate(b.AdvertisementID) != nil {
		return 0, fmt.Errorf("invalid advertisement id %q", b.AdvertisementID)
	}

	ctx, end := tracing.StartDBSpan(ctx, "notifications", tracing.DBOperationInsert)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, advertisement_id, message, created_at)
		SELECT id, $1::uuid, $2::text, $3::timestamptz FROM users
		WHERE $4::text = '' OR id::text <> $4
	`, nullableID(b.AdvertisementID), b.Message, b.CreatedAt.UTC(), b.ExcludeUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to fan out notifications: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return int(created), nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) (out []*Notification, total int, err error) {
	if uuid.Validate(f.UserID) != nil {
		return []*Notification{}, 0, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "notifications", tracing.DBOperationQuery)
	defer func() { end(err) }()

	clause := ` WHERE user_id = $1`
	if f.UnreadOnly {
		clause += ` AND NOT is_read`
	}

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+clause, f.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications`+clause+
		` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, f.UserID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out = []*Notification{}
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", scanErr)
		}
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, total, nil
}

// MarkRead implements Repository.
func (r *PostgresRepository) MarkRead(ctx context.Context, userID, id string, at time.Time) (n *Notification, err error) {
	if uuid.Validate(userID) != nil || uuid.Validate(id) != nil {
		return nil, ErrNotificationNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "notifications", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	n, err = scanNotification(r.db.QueryRowContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllRead implements Repository.
func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (n int, err error) {
	if uuid.Validate(userID) != nil {
		return 0, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "notifications", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE user_id = $1 AND NOT is_read
	`, userID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count read notifications: %w", err)
	}
	return int(changed), nil
}
