package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/tracing"
)

const engagementColumns = `id, user_id, advertisement_id, kind, value, engaged_at, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL. The
// (user_id, advertisement_id, kind) unique constraint is what keeps
// concurrent first writes from creating two rows.
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

func scanEngagement(row rowScanner) (*Engagement, error) {
	var (
		e         Engagement
		engagedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.UserID, &e.AdvertisementID, &e.Kind, &e.Value, &engagedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if engagedAt.Valid {
		t := engagedAt.Time.UTC()
		e.EngagedAt = &t
	}
	return &e, nil
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if uuid.Validate(id) != nil {
			return false
		}
	}
	return true
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, userID, adID string, kind Kind, value bool, at time.Time) (e *Engagement, err error) {
	if !validIDs(userID, adID) {
		return nil, ErrEngagementNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "engagements", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE engagements SET
			value = $4,
			engaged_at = CASE WHEN $4 AND engaged_at IS NULL THEN $5 ELSE engaged_at END,
			updated_at = $5
		WHERE user_id = $1 AND advertisement_id = $2 AND kind = $3
		RETURNING ` + engagementColumns
	e, err = scanEngagement(r.db.QueryRowContext(ctx, query, userID, adID, kind, value, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEngagementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update engagement: %w", err)
	}
	return e, nil
}

// Insert implements Repository.
func (r *PostgresRepository) Insert(ctx context.Context, e *Engagement) (err error) {
	if !validIDs(e.UserID, e.AdvertisementID) {
		return ErrInvalidReference
	}

	ctx, end := tracing.StartDBSpan(ctx, "engagements", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO engagements (user_id, advertisement_id, kind, value, engaged_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query, e.UserID, e.AdvertisementID, e.Kind, e.Value, e.EngagedAt,
		e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert engagement: %w", err)
	}
	return nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, userID, adID string, kind Kind) (e *Engagement, err error) {
	if !validIDs(userID, adID) {
		return nil, ErrEngagementNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "engagements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	e, err = scanEngagement(r.db.QueryRowContext(ctx, `
		SELECT `+engagementColumns+` FROM engagements
		WHERE user_id = $1 AND advertisement_id = $2 AND kind = $3
	`, userID, adID, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEngagementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get engagement: %w", err)
	}
	return e, nil
}

// ListPositive implements Repository.
func (r *PostgresRepository) ListPositive(ctx context.Context, userID string, kind Kind) (out []*Engagement, err error) {
	out = []*Engagement{}
	if !validIDs(userID) {
		return out, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "engagements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+engagementColumns+` FROM engagements
		WHERE user_id = $1 AND kind = $2 AND value
		ORDER BY engaged_at DESC NULLS LAST, advertisement_id
	`, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list engagements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, scanErr := scanEngagement(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", scanErr)
		}
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate engagements: %w", err)
	}
	return out, nil
}

// CountByAdvertisement implements Repository.
func (r *PostgresRepository) CountByAdvertisement(ctx context.Context, adID string) (n int, err error) {
	if !validIDs(adID) {
		return 0, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "engagements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM engagements WHERE advertisement_id = $1`, adID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count engagements: %w", err)
	}
	return n, nil
}
