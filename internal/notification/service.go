package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
)

// Service fans out advertisement notifications and serves inbox reads.
type Service struct {
	repo    Repository
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. metrics may be nil.
func NewService(repo Repository, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, metrics: metrics, logger: logger, now: time.Now}
}

// AdvertisementCreated notifies every user except the creator of ad and
// returns how many notifications were created.
func (s *Service) AdvertisementCreated(ctx context.Context, ad *advertisement.Advertisement) (int, error) {
	b := Broadcast{
		AdvertisementID: ad.ID,
		Message:         "New advertisement posted: " + ad.Title,
		CreatedAt:       s.now().UTC(),
	}
	if ad.CreatedBy != nil {
		b.ExcludeUserID = *ad.CreatedBy
	}

	created, err := s.repo.Fanout(ctx, b)
	s.metrics.observeFanout(created, err)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(ctx, "advertisement notifications created",
		slog.String("advertisement_id", ad.ID),
		slog.Int("recipients", created),
	)
	return created, nil
}

// List returns one page of userID's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.List(ctx, Filter{UserID: userID, UnreadOnly: unreadOnly}, limit, offset)
}

// MarkRead marks one notification read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*Notification, error) {
	return s.repo.MarkRead(ctx, userID, id, s.now())
}

// MarkAllRead marks all of userID's unread notifications read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now())
}
