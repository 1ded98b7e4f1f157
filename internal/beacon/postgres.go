package beacon

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
)

const beaconColumns = `id, name, location_name, minor, major, signal_strength, battery_status,
	latitude, longitude, status, last_seen_at, created_at, updated_at`

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

func scanBeacon(row rowScanner) (*Beacon, error) {
	var (
		b                             Beacon
		minor, major, signal, battery sql.NullInt64
		lat, lng                      sql.NullFloat64
		lastSeen                      sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Name, &b.LocationName, &minor, &major, &signal, &battery,
		&lat, &lng, &b.Status, &lastSeen, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Minor = intPtr(minor)
	b.Major = intPtr(major)
	b.SignalStrength = intPtr(signal)
	b.BatteryStatus = intPtr(battery)
	b.Latitude = floatPtr(lat)
	b.Longitude = floatPtr(lng)
	if lastSeen.Valid {
		t := lastSeen.Time
		b.LastSeenAt = &t
	}
	return &b, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, b *Beacon) (err error) {
	if err := b.Normalize(); err != nil {
		return err
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO beacons (name, location_name, minor, major, signal_strength, battery_status,
			latitude, longitude, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		b.Name, b.LocationName, b.Minor, b.Major, b.SignalStrength, b.BatteryStatus,
		b.Latitude, b.Longitude, b.Status,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("failed to insert beacon: %w", err)
	}

	r.logger.Debug("beacon created", slog.String("beacon_id", b.ID), slog.String("name", b.Name))
	return nil
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (b *Beacon, err error) {
	if uuid.Validate(id) != nil {
		return nil, ErrBeaconNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationQuery)
	defer func() { end(err) }()

	b, err = scanBeacon(r.db.QueryRowContext(ctx,
		`SELECT `+beaconColumns+` FROM beacons WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBeaconNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get beacon: %w", err)
	}
	return b, nil
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, id string, u *Update) (b *Beacon, err error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	if uuid.Validate(id) != nil {
		return nil, ErrBeaconNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback beacon update", slog.String("error", rbErr.Error()))
		}
	}()

	b, err = scanBeacon(tx.QueryRowContext(ctx,
		`SELECT `+beaconColumns+` FROM beacons WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBeaconNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load beacon: %w", err)
	}

	u.Apply(b)

	query := `
		UPDATE beacons SET name = $2, location_name = $3, minor = $4, major = $5,
			signal_strength = $6, battery_status = $7, latitude = $8, longitude = $9,
			status = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRowContext(ctx, query, b.ID, b.Name, b.LocationName, b.Minor, b.Major,
		b.SignalStrength, b.BatteryStatus, b.Latitude, b.Longitude, b.Status).Scan(&b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicateName
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update beacon: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit beacon update: %w", err)
	}
	return b, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	if uuid.Validate(id) != nil {
		return ErrBeaconNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM beacons WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("failed to delete beacon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBeaconNotFound
	}
	return nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) (out []*Beacon, total int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, db.ContainsPattern(s))
		where = append(where, "location_name ILIKE $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM beacons`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count beacons: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT ` + beaconColumns + ` FROM beacons` + clause +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list beacons: %w", err)
	}
	defer rows.Close()

	out = []*Beacon{}
	for rows.Next() {
		b, scanErr := scanBeacon(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan beacon: %w", scanErr)
		}
		out = append(out, b)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate beacons: %w", err)
	}
	return out, total, nil
}

// UpdateTelemetry implements Repository.
func (r *PostgresRepository) UpdateTelemetry(ctx context.Context, id string, t Telemetry, at time.Time) (b *Beacon, err error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if uuid.Validate(id) != nil {
		return nil, ErrBeaconNotFound
	}

	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE beacons SET battery_status = $2, signal_strength = $3, last_seen_at = $4, updated_at = $4
		WHERE id = $1
		RETURNING ` + beaconColumns
	b, err = scanBeacon(r.db.QueryRowContext(ctx, query, id, *t.BatteryStatus, *t.SignalStrength, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBeaconNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update beacon telemetry: %w", err)
	}
	return b, nil
}

// Locations implements Repository.
func (r *PostgresRepository) Locations(ctx context.Context) (out []Location, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "beacons", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, location_name, latitude, longitude, status
		FROM beacons
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list beacon locations: %w", err)
	}
	defer rows.Close()

	out = []Location{}
	for rows.Next() {
		var l Location
		if err = rows.Scan(&l.ID, &l.Name, &l.LocationName, &l.Latitude, &l.Longitude, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan beacon location: %w", err)
		}
		out = append(out, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beacon locations: %w", err)
	}
	return out, nil
}
