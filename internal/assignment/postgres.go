package assignment

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

const assignmentColumns = `id, beacon_id, advertisement_id, start_date, end_date, assigned_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(conn *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: conn, logger: logger, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.BeaconID, &a.AdvertisementID, &a.StartDate, &a.EndDate, &a.AssignedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.StartDate = a.StartDate.UTC()
	a.EndDate = a.EndDate.UTC()
	return &a, nil
}

// referenceError turns a foreign key violation on insert into a field error
// naming the missing side.
func referenceError(err error) error {
	if strings.Contains(db.ConstraintName(err), "advertisement_id") {
		return validate.FieldErrors{"advertisement_id": "advertisement not found"}
	}
	return validate.FieldErrors{"beacon_id": "beacon not found"}
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, a *Assignment) (err error) {
	if err := a.normalize(r.now().UTC()); err != nil {
		return err
	}
	if uuid.Validate(a.BeaconID) != nil {
		return validate.FieldErrors{"beacon_id": "beacon not found"}
	}
	if uuid.Validate(a.AdvertisementID) != nil {
		return validate.FieldErrors{"advertisement_id": "advertisement not found"}
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO advertisement_assignments (beacon_id, advertisement_id, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, assigned_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, a.BeaconID, a.AdvertisementID, a.StartDate, a.EndDate).
		Scan(&a.ID, &a.AssignedAt, &a.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicateAssignment
	case db.IsForeignKeyViolation(err):
		return referenceError(err)
	case err != nil:
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (a *Assignment, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrAssignmentNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationQuery)
	defer func() { end(err) }()

	a, err = scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM advertisement_assignments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, id string, u *Update) (a *Assignment, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrAssignmentNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback assignment update", slog.String("error", rbErr.Error()))
		}
	}()

	a, err = scanAssignment(tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM advertisement_assignments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}

	if applyErr := u.Apply(a); applyErr != nil {
		return nil, applyErr
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE advertisement_assignments SET start_date = $2, end_date = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.StartDate, a.EndDate).Scan(&a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assignment update: %w", err)
	}
	return a, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	if uuid.Validate(id) != nil {
		return ErrAssignmentNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM advertisement_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) (out []*Assignment, total int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var (
		where []string
		args  []any
	)
	// Unknown ids in a filter match nothing rather than failing the uuid cast.
	if f.BeaconID != "" {
		if uuid.Validate(f.BeaconID) != nil {
			return []*Assignment{}, 0, nil
		}
		args = append(args, f.BeaconID)
		where = append(where, "beacon_id = $"+strconv.Itoa(len(args)))
	}
	if f.AdvertisementID != "" {
		if uuid.Validate(f.AdvertisementID) != nil {
			return []*Assignment{}, 0, nil
		}
		args = append(args, f.AdvertisementID)
		where = append(where, "advertisement_id = $"+strconv.Itoa(len(args)))
	}
	if f.StartFrom != nil {
		args = append(args, f.StartFrom.UTC())
		where = append(where, "start_date >= $"+strconv.Itoa(len(args)))
	}
	if f.EndUntil != nil {
		args = append(args, f.EndUntil.UTC())
		where = append(where, "end_date <= $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM advertisement_assignments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assignments: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT ` + assignmentColumns + ` FROM advertisement_assignments` + clause +
		` ORDER BY start_date DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out = []*Assignment{}
	for rows.Next() {
		a, scanErr := scanAssignment(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan assignment: %w", scanErr)
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return out, total, nil
}

// Schedule implements Repository.
func (r *PostgresRepository) Schedule(ctx context.Context, beaconID string) (out []Scheduled, err error) {
	out = []Scheduled{}
	if uuid.Validate(beaconID) != nil {
		return out, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.start_date, s.end_date,
			a.id, a.title, a.content, a.media_key, a.media_type, a.is_active, a.created_by,
			a.created_at, a.updated_at
		FROM advertisement_assignments s
		JOIN advertisements a ON a.id = s.advertisement_id
		WHERE s.beacon_id = $1
		ORDER BY s.start_date DESC, s.id
	`, beaconID)
	if err != nil {
		return nil, fmt.Errorf("failed to load beacon schedule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s                   Scheduled
			ad                  = &s.Advertisement
			mediaKey, createdBy sql.NullString
		)
		if err = rows.Scan(&s.AssignmentID, &s.StartDate, &s.EndDate,
			&ad.ID, &ad.Title, &ad.Content, &mediaKey, &ad.MediaType, &ad.IsActive, &createdBy,
			&ad.CreatedAt, &ad.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan beacon schedule: %w", err)
		}
		if mediaKey.Valid {
			ad.MediaKey = &mediaKey.String
		}
		if createdBy.Valid {
			ad.CreatedBy = &createdBy.String
		}
		s.StartDate = s.StartDate.UTC()
		s.EndDate = s.EndDate.UTC()
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beacon schedule: %w", err)
	}
	return out, nil
}

// BeaconIDsForAdvertisement implements Repository.
func (r *PostgresRepository) BeaconIDsForAdvertisement(ctx context.Context, adID string) (out []string, err error) {
	out = []string{}
	if uuid.Validate(adID) != nil {
		return out, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT beacon_id FROM advertisement_assignments WHERE advertisement_id = $1 ORDER BY beacon_id
	`, adID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned beacons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assigned beacon: %w", err)
		}
		out = append(out, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assigned beacons: %w", err)
	}
	return out, nil
}

// ExpiredAdvertisementIDs implements Repository.
func (r *PostgresRepository) ExpiredAdvertisementIDs(ctx context.Context, now time.Time) (out []string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "advertisement_assignments", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id
		FROM advertisements a
		JOIN advertisement_assignments s ON s.advertisement_id = a.id
		WHERE a.is_active
		GROUP BY a.id
		HAVING MAX(s.end_date) < $1
		ORDER BY a.id
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to find expired advertisements: %w", err)
	}
	defer rows.Close()

	out = []string{}
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired advertisement: %w", err)
		}
		out = append(out, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired advertisements: %w", err)
	}
	return out, nil
}

var _ Repository = (*PostgresRepository)(nil)
