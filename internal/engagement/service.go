package engagement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/stats"
)

// DefaultMaxAttempts bounds the update/insert rounds of one upsert.
const DefaultMaxAttempts = 3

// Service upserts engagements: update the existing row, or insert it, and
// when the insert loses a race to a concurrent writer, update again.
type Service struct {
	repo        Repository
	ads         advertisement.Repository
	stats       *stats.UpsertStats
	metrics     *Metrics
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService creates a Service. stats and metrics may be nil.
func NewService(repo Repository, ads advertisement.Repository, upserts *stats.UpsertStats, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if upserts == nil {
		upserts = stats.NewUpsertStats()
	}
	return &Service{
		repo:        repo,
		ads:         ads,
		stats:       upserts,
		metrics:     metrics,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

// Stats returns the service's upsert counters.
func (s *Service) Stats() *stats.UpsertStats {
	return s.stats
}

// Record sets the (user, ad, kind) flag to value and returns the row.
// The advertisement must exist; ErrAdvertisementNotFound otherwise.
func (s *Service) Record(ctx context.Context, userID, adID string, kind Kind, value bool) (*Engagement, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if _, err := s.ads.GetByID(ctx, adID); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		e, err := s.repo.Update(ctx, userID, adID, kind, value, at)
		if err == nil {
			s.stats.RecordUpdate()
			s.observe(kind, ResultUpdated)
			return e, nil
		}
		if !errors.Is(err, ErrEngagementNotFound) {
			s.observe(kind, ResultFailed)
			return nil, err
		}

		e = &Engagement{
			UserID:          userID,
			AdvertisementID: adID,
			Kind:            kind,
			CreatedAt:       at,
		}
		e.apply(value, at)
		err = s.repo.Insert(ctx, e)
		if err == nil {
			s.stats.RecordInsert()
			s.observe(kind, ResultInserted)
			return e, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			s.observe(kind, ResultFailed)
			return nil, err
		}

		s.stats.RecordConflict()
		if s.metrics != nil {
			s.metrics.IncConflicts(kind)
		}
		s.logger.Debug("engagement insert conflicted, retrying as update",
			slog.String("user_id", userID),
			slog.String("advertisement_id", adID),
			slog.String("kind", string(kind)),
			slog.Int("attempt", attempt),
		)
	}

	s.observe(kind, ResultFailed)
	return nil, ErrTooManyConflicts
}

// Get returns the user's row for (ad, kind).
func (s *Service) Get(ctx context.Context, userID, adID string, kind Kind) (*Engagement, error) {
	return s.repo.Get(ctx, userID, adID, kind)
}

func (s *Service) observe(kind Kind, result string) {
	if s.metrics != nil {
		s.metrics.IncUpserts(kind, result)
	}
}
