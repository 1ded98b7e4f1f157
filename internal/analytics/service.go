package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/engagement"
)

// Service answers the dashboard queries.
type Service struct {
	store       Store
	engagements engagement.Repository
	ads         advertisement.Repository
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service. engagements and ads supply the per-user
// decorations of the popular and liked/saved views.
func NewService(store Store, engagements engagement.Repository, ads advertisement.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engagements: engagements, ads: ads, logger: logger, now: time.Now}
}

// BeaconCount returns the number of beacons.
func (s *Service) BeaconCount(ctx context.Context) (int, error) {
	return s.store.CountBeacons(ctx, "")
}

// ActiveBeaconCount returns the number of beacons with status Active.
func (s *Service) ActiveBeaconCount(ctx context.Context) (int, error) {
	return s.store.CountBeacons(ctx, beacon.StatusActive)
}

// LocationCount returns the number of distinct beacon locations.
func (s *Service) LocationCount(ctx context.Context) (int, error) {
	return s.store.CountLocations(ctx)
}

// RecentLogCount returns the delivery log entries of the last 24 hours and the
// start of that window.
func (s *Service) RecentLogCount(ctx context.Context) (int, time.Time, error) {
	since := s.now().UTC().Add(-RecentLogsWindow)
	n, err := s.store.CountLogsSince(ctx, since)
	return n, since, err
}

// PopularAdvertisements returns the top advertisements by views in the last
// 7 days, decorated with userID's own interactions. An empty userID leaves the
// flags unset.
func (s *Service) PopularAdvertisements(ctx context.Context, userID, search string) ([]PopularAdvertisement, error) {
	since := s.now().UTC().Add(-PopularWindow)
	ranked, err := s.store.PopularAdvertisements(ctx, since, search, PopularLimit)
	if err != nil {
		return nil, err
	}

	out := make([]PopularAdvertisement, 0, len(ranked))
	for _, r := range ranked {
		p := PopularAdvertisement{Advertisement: r.Advertisement, Score: r.Score}
		if userID != "" {
			if err := s.decorate(ctx, userID, &p); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) decorate(ctx context.Context, userID string, p *PopularAdvertisement) error {
	for _, kind := range engagement.Kinds {
		e, err := s.engagements.Get(ctx, userID, p.Advertisement.ID, kind)
		if errors.Is(err, engagement.ErrEngagementNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load %s engagement: %w", kind, err)
		}
		switch kind {
		case engagement.KindView:
			p.Viewed, p.ViewedAt = e.Value, e.EngagedAt
		case engagement.KindLike:
			p.Liked, p.LikedAt = e.Value, e.EngagedAt
		case engagement.KindClick:
			p.Clicked, p.ClickedAt = e.Value, e.EngagedAt
		case engagement.KindSave:
			p.Saved, p.SavedAt = e.Value, e.EngagedAt
		}
	}
	return nil
}

// ClicksPerDay counts positive clicks per UTC date.
func (s *Service) ClicksPerDay(ctx context.Context, day *time.Time) ([]DailyCount, error) {
	return s.store.DailyEngagements(ctx, engagement.KindClick, day)
}

// ImpressionsPerDay counts positive views per UTC date.
func (s *Service) ImpressionsPerDay(ctx context.Context, day *time.Time) ([]DailyCount, error) {
	return s.store.DailyEngagements(ctx, engagement.KindView, day)
}

// MessagesPerDay counts messages per beacon per UTC date.
func (s *Service) MessagesPerDay(ctx context.Context, day *time.Time) ([]BeaconDailyMessages, error) {
	return s.store.DailyMessages(ctx, day)
}

// LikedSaved merges the advertisements userID currently likes and saves into
// one row per advertisement. search narrows each side before the merge.
// Rows are ordered by their latest timestamp, newest first.
func (s *Service) LikedSaved(ctx context.Context, userID, search string) ([]LikedSaved, error) {
	merged := make(map[string]*LikedSaved)
	for _, kind := range []engagement.Kind{engagement.KindLike, engagement.KindSave} {
		rows, err := s.engagements.ListPositive(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		for _, e := range rows {
			ad, err := s.ads.GetByID(ctx, e.AdvertisementID)
			if errors.Is(err, advertisement.ErrAdvertisementNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !advertisement.MatchesSearch(ad, search) {
				continue
			}
			row, ok := merged[ad.ID]
			if !ok {
				row = &LikedSaved{AdvertisementID: ad.ID, Title: ad.Title, Content: ad.Content}
				merged[ad.ID] = row
			}
			if kind == engagement.KindLike {
				row.Liked, row.LikedAt = true, e.EngagedAt
			} else {
				row.Saved, row.SavedAt = true, e.EngagedAt
			}
		}
	}

	out := make([]LikedSaved, 0, len(merged))
	for _, row := range merged {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := latest(out[i]), latest(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].AdvertisementID < out[j].AdvertisementID
	})
	return out, nil
}

func latest(r LikedSaved) time.Time {
	var t time.Time
	for _, at := range []*time.Time{r.LikedAt, r.SavedAt} {
		if at != nil && at.After(t) {
			t = *at
		}
	}
	return t
}
