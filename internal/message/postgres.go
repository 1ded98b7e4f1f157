package message

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
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/tracing"
	"github.com/onnwee/beaconads/internal/validate"
)

const messageColumns = `id, beacon_id, content, type, sent_at, read_at`

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

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m      Message
		readAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.BeaconID, &m.Content, &m.Type, &m.SentAt, &readAt); err != nil {
		return nil, err
	}
	m.SentAt = m.SentAt.UTC()
	if readAt.Valid {
		t := readAt.Time.UTC()
		m.ReadAt = &t
	}
	return &m, nil
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, m *Message) (err error) {
	if err := m.Normalize(); err != nil {
		return err
	}
	if uuid.Validate(m.BeaconID) != nil {
		return validate.FieldErrors{"beacon_id": "beacon not found"}
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacon_messages", tracing.DBOperationInsert)
	defer func() { end(err) }()

	var sentAt any
	if !m.SentAt.IsZero() {
		sentAt = m.SentAt.UTC()
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO beacon_messages (beacon_id, content, type, sent_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		RETURNING id, sent_at
	`, m.BeaconID, m.Content, m.Type, sentAt).Scan(&m.ID, &m.SentAt)
	if db.IsForeignKeyViolation(err) {
		return validate.FieldErrors{"beacon_id": "beacon not found"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	m.SentAt = m.SentAt.UTC()
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (m *Message, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrMessageNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacon_messages", tracing.DBOperationQuery)
	defer func() { end(err) }()

	m, err = scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM beacon_messages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) (out []*Message, total int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "beacon_messages", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var (
		where []string
		args  []any
	)
	if f.BeaconID != "" {
		if uuid.Validate(f.BeaconID) != nil {
			return []*Message{}, 0, nil
		}
		args = append(args, f.BeaconID)
		where = append(where, "beacon_id = $"+strconv.Itoa(len(args)))
	}
	if f.Since != nil {
		args = append(args, f.Since.UTC())
		where = append(where, "sent_at >= $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM beacon_messages`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT ` + messageColumns + ` FROM beacon_messages` + clause +
		` ORDER BY sent_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out = []*Message{}
	for rows.Next() {
		m, scanErr := scanMessage(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", scanErr)
		}
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, total, nil
}

// MarkRead implements Repository.
func (r *PostgresRepository) MarkRead(ctx context.Context, id string, at time.Time) (m *Message, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrMessageNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacon_messages", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	m, err = scanMessage(r.db.QueryRowContext(ctx, `
		UPDATE beacon_messages SET read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+messageColumns, id, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}
	return m, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	if uuid.Validate(id) != nil {
		return ErrMessageNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacon_messages", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM beacon_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}
