package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/db"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/tracing"
)

// PostgresStore implements Store with aggregate SQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(conn *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: conn, logger: logger}
}

func (s *PostgresStore) count(ctx context.Context, table, query string, args ...any) (n int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, table, tracing.DBOperationQuery)
	defer func() { end(err) }()

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// CountBeacons implements Store.
func (s *PostgresStore) CountBeacons(ctx context.Context, status beacon.Status) (int, error) {
	if status == "" {
		return s.count(ctx, "beacons", `SELECT COUNT(*) FROM beacons`)
	}
	return s.count(ctx, "beacons", `SELECT COUNT(*) FROM beacons WHERE status = $1`, status)
}

// CountLocations implements Store.
func (s *PostgresStore) CountLocations(ctx context.Context) (int, error) {
	return s.count(ctx, "beacons",
		`SELECT COUNT(DISTINCT location_name) FROM beacons WHERE location_name <> ''`)
}

// CountLogsSince implements Store.
func (s *PostgresStore) CountLogsSince(ctx context.Context, since time.Time) (int, error) {
	return s.count(ctx, "advertisement_logs",
		`SELECT COUNT(*) FROM advertisement_logs WHERE logged_at >= $1`, since)
}

// PopularAdvertisements implements Store.
func (s *PostgresStore) PopularAdvertisements(ctx context.Context, since time.Time, search string, limit int) (out []RankedAdvertisement, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "advertisements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT a.id, a.title, a.content, a.media_key, a.media_type, a.is_active,
			a.created_by, a.created_at, a.updated_at, COUNT(e.id) AS score
		FROM advertisements a
		LEFT JOIN engagements e
			ON e.advertisement_id = a.id AND e.kind = $1 AND e.value AND e.engaged_at >= $2
		WHERE $3 = '' OR a.title ILIKE $4 OR a.content ILIKE $4
		GROUP BY a.id
		ORDER BY score DESC, a.created_at DESC, a.id
		LIMIT $5
	`
	search = strings.TrimSpace(search)
	rows, err := s.db.QueryContext(ctx, query, engagement.KindView, since, search, db.ContainsPattern(search), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank advertisements: %w", err)
	}
	defer rows.Close()

	out = []RankedAdvertisement{}
	for rows.Next() {
		var score int
		a, err := advertisement.ScanRow(scoreScanner{rows, &score})
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranked advertisement: %w", err)
		}
		out = append(out, RankedAdvertisement{Advertisement: *a, Score: score})
	}
	return out, rows.Err()
}

// scoreScanner appends the trailing score column to an advertisement scan.
type scoreScanner struct {
	rows  *sql.Rows
	score *int
}

func (s scoreScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.score)...)
}

// DailyEngagements implements Store.
func (s *PostgresStore) DailyEngagements(ctx context.Context, kind engagement.Kind, day *time.Time) (out []DailyCount, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "engagements", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT to_char((engaged_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM engagements
		WHERE kind = $1 AND value AND engaged_at IS NOT NULL
	`
	args := []any{kind}
	if day != nil {
		args = append(args, dayOf(*day))
		query += ` AND (engaged_at AT TIME ZONE 'UTC')::date = $2::date`
	}
	query += ` GROUP BY day ORDER BY day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count engagements per day: %w", err)
	}
	defer rows.Close()

	out = []DailyCount{}
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DailyMessages implements Store.
func (s *PostgresStore) DailyMessages(ctx context.Context, day *time.Time) (out []BeaconDailyMessages, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "beacon_messages", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT m.beacon_id, b.name,
			to_char((m.sent_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM beacon_messages m
		JOIN beacons b ON b.id = m.beacon_id
	`
	var args []any
	if day != nil {
		args = append(args, dayOf(*day))
		query += ` WHERE (m.sent_at AT TIME ZONE 'UTC')::date = $1::date`
	}
	query += ` GROUP BY m.beacon_id, b.name, day ORDER BY day, b.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages per day: %w", err)
	}
	defer rows.Close()

	out = []BeaconDailyMessages{}
	for rows.Next() {
		var c BeaconDailyMessages
		if err := rows.Scan(&c.BeaconID, &c.BeaconName, &c.Date, &c.TotalMessages); err != nil {
			return nil, fmt.Errorf("failed to scan daily messages: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
