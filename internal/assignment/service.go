package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/cache"
	"github.com/onnwee/beaconads/internal/validate"
)

// ScheduleCacheName labels the schedule cache in metrics.
const ScheduleCacheName = "beacon_schedule"

// CacheKey is the cache key holding a beacon's joined schedule.
func CacheKey(beaconID string) string {
	return "beacon:" + beaconID + ":assignments"
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Assignments    Repository
	Beacons        beacon.Repository
	Advertisements advertisement.Repository
	// Cache holds joined schedules per beacon. Required.
	Cache  *cache.JSON[[]Scheduled]
	Logger *slog.Logger
}

// Service owns assignment writes, the cached active-advertisement query and
// the expiry sweep. Every write path invalidates the affected beacon keys.
type Service struct {
	repo    Repository
	beacons beacon.Repository
	ads     advertisement.Repository
	cache   *cache.JSON[[]Scheduled]
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:    cfg.Assignments,
		beacons: cfg.Beacons,
		ads:     cfg.Advertisements,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
}

// Create checks that both sides exist, stores the assignment and invalidates
// the beacon's schedule.
func (s *Service) Create(ctx context.Context, a *Assignment) error {
	fe := validate.FieldErrors{}
	if a.BeaconID != "" {
		if _, err := s.beacons.GetByID(ctx, a.BeaconID); errors.Is(err, beacon.ErrBeaconNotFound) {
			fe.Add("beacon_id", "beacon not found")
		} else if err != nil {
			return err
		}
	}
	if a.AdvertisementID != "" {
		if _, err := s.ads.GetByID(ctx, a.AdvertisementID); errors.Is(err, advertisement.ErrAdvertisementNotFound) {
			fe.Add("advertisement_id", "advertisement not found")
		} else if err != nil {
			return err
		}
	}
	if len(fe) > 0 {
		// Report window problems alongside missing references.
		if err := a.normalize(time.Now().UTC()); err != nil {
			return mergeFieldErrors(fe, err)
		}
		return fe
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	s.invalidate(ctx, a.BeaconID)
	return nil
}

// GetByID returns one assignment.
func (s *Service) GetByID(ctx context.Context, id string) (*Assignment, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of assignments and the total match count.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Assignment, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Update changes an assignment's window.
func (s *Service) Update(ctx context.Context, id string, u *Update) (*Assignment, error) {
	a, err := s.repo.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, a.BeaconID)
	return a, nil
}

// Delete removes an assignment.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, a.BeaconID)
	return nil
}

// ActiveAdvertisements returns the active advertisements scheduled on a beacon
// whose window contains at, ordered by start_date desc. The beacon's full
// schedule is cached; the time filter runs on every call.
func (s *Service) ActiveAdvertisements(ctx context.Context, beaconID string, at time.Time) ([]Scheduled, error) {
	if _, err := s.beacons.GetByID(ctx, beaconID); err != nil {
		return nil, err
	}

	schedule, err := s.cache.GetOrLoad(ctx, CacheKey(beaconID), func(ctx context.Context) ([]Scheduled, error) {
		return s.repo.Schedule(ctx, beaconID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load beacon schedule: %w", err)
	}

	out := []Scheduled{}
	for i := range schedule {
		if schedule[i].Advertisement.IsActive && schedule[i].IsValidAt(at) {
			out = append(out, schedule[i])
		}
	}
	return out, nil
}

// InvalidateAdvertisement drops the cached schedule of every beacon the
// advertisement is assigned to. Call it after changing or deleting an ad.
func (s *Service) InvalidateAdvertisement(ctx context.Context, adID string) {
	beaconIDs, err := s.repo.BeaconIDsForAdvertisement(ctx, adID)
	if err != nil {
		s.logger.Warn("failed to resolve beacons for cache invalidation",
			slog.String("advertisement_id", adID), slog.String("error", err.Error()))
		return
	}
	s.invalidate(ctx, beaconIDs...)
}

// DeactivateExpired marks inactive every active advertisement that has at
// least one assignment and whose latest end_date is before now. It returns
// the number of advertisements changed; a second run changes nothing.
func (s *Service) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ExpiredAdvertisementIDs(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	changed, err := s.ads.Deactivate(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.InvalidateAdvertisement(ctx, id)
	}

	s.logger.Info("expired advertisements deactivated",
		slog.Int("candidates", len(ids)),
		slog.Int("changed", changed),
	)
	return changed, nil
}

func (s *Service) invalidate(ctx context.Context, beaconIDs ...string) {
	if len(beaconIDs) == 0 {
		return
	}
	keys := make([]string, len(beaconIDs))
	for i, id := range beaconIDs {
		keys[i] = CacheKey(id)
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate beacon schedule cache",
			slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}
