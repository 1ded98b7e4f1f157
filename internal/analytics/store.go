package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/message"
)

// Store runs the aggregate queries. A nil day means no date filter.
type Store interface {
	// CountBeacons counts beacons with the given status, or all when status is "".
	CountBeacons(ctx context.Context, status beacon.Status) (int, error)
	// CountLocations counts distinct non-empty location labels.
	CountLocations(ctx context.Context) (int, error)
	// CountLogsSince counts delivery log entries at or after since.
	CountLogsSince(ctx context.Context, since time.Time) (int, error)
	// PopularAdvertisements ranks advertisements matching search by the number
	// of positive views at or after since, newest first on ties.
	PopularAdvertisements(ctx context.Context, since time.Time, search string, limit int) ([]RankedAdvertisement, error)
	// DailyEngagements counts positive engagements of kind per UTC date of
	// their timestamp, ordered by date.
	DailyEngagements(ctx context.Context, kind engagement.Kind, day *time.Time) ([]DailyCount, error)
	// DailyMessages counts messages per beacon per UTC date, ordered by date.
	DailyMessages(ctx context.Context, day *time.Time) ([]BeaconDailyMessages, error)
}

// Sources used by MemoryStore; the in-memory repositories satisfy them.
type (
	BeaconSource        interface{ Snapshot() []beacon.Beacon }
	AdvertisementSource interface {
		Snapshot() []advertisement.Advertisement
	}
	EngagementSource interface{ Snapshot() []engagement.Engagement }
	LogSource        interface{ Snapshot() []deliverylog.Log }
	MessageSource    interface{ Snapshot() []message.Message }
)

// MemoryStore aggregates over snapshots of the in-memory repositories.
type MemoryStore struct {
	beacons     BeaconSource
	ads         AdvertisementSource
	engagements EngagementSource
	logs        LogSource
	messages    MessageSource
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore(beacons BeaconSource, ads AdvertisementSource, engagements EngagementSource,
	logs LogSource, messages MessageSource) *MemoryStore {
	return &MemoryStore{beacons: beacons, ads: ads, engagements: engagements, logs: logs, messages: messages}
}

// CountBeacons implements Store.
func (s *MemoryStore) CountBeacons(_ context.Context, status beacon.Status) (int, error) {
	n := 0
	for _, b := range s.beacons.Snapshot() {
		if status == "" || b.Status == status {
			n++
		}
	}
	return n, nil
}

// CountLocations implements Store.
func (s *MemoryStore) CountLocations(_ context.Context) (int, error) {
	seen := make(map[string]struct{})
	for _, b := range s.beacons.Snapshot() {
		if b.LocationName != "" {
			seen[b.LocationName] = struct{}{}
		}
	}
	return len(seen), nil
}

// CountLogsSince implements Store.
func (s *MemoryStore) CountLogsSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, l := range s.logs.Snapshot() {
		if !l.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// PopularAdvertisements implements Store.
func (s *MemoryStore) PopularAdvertisements(_ context.Context, since time.Time, search string, limit int) ([]RankedAdvertisement, error) {
	views := make(map[string]int)
	for _, e := range s.engagements.Snapshot() {
		if e.Kind == engagement.KindView && e.Value && e.EngagedAt != nil && !e.EngagedAt.Before(since) {
			views[e.AdvertisementID]++
		}
	}

	out := []RankedAdvertisement{}
	for _, a := range s.ads.Snapshot() {
		if !advertisement.MatchesSearch(&a, search) {
			continue
		}
		out = append(out, RankedAdvertisement{Advertisement: a, Score: views[a.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ai, aj := out[i].Advertisement, out[j].Advertisement
		if !ai.CreatedAt.Equal(aj.CreatedAt) {
			return ai.CreatedAt.After(aj.CreatedAt)
		}
		return ai.ID < aj.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DailyEngagements implements Store.
func (s *MemoryStore) DailyEngagements(_ context.Context, kind engagement.Kind, day *time.Time) ([]DailyCount, error) {
	counts := make(map[string]int)
	for _, e := range s.engagements.Snapshot() {
		if e.Kind != kind || !e.Value || e.EngagedAt == nil {
			continue
		}
		d := dayOf(*e.EngagedAt)
		if day != nil && d != dayOf(*day) {
			continue
		}
		counts[d]++
	}

	out := make([]DailyCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, DailyCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// DailyMessages implements Store.
func (s *MemoryStore) DailyMessages(_ context.Context, day *time.Time) ([]BeaconDailyMessages, error) {
	names := make(map[string]string)
	for _, b := range s.beacons.Snapshot() {
		names[b.ID] = b.Name
	}

	type bucket struct{ beacon, date string }
	counts := make(map[bucket]int)
	for _, m := range s.messages.Snapshot() {
		d := dayOf(m.SentAt)
		if day != nil && d != dayOf(*day) {
			continue
		}
		counts[bucket{m.BeaconID, d}]++
	}

	out := make([]BeaconDailyMessages, 0, len(counts))
	for k, n := range counts {
		out = append(out, BeaconDailyMessages{
			BeaconID:      k.beacon,
			BeaconName:    names[k.beacon],
			Date:          k.date,
			TotalMessages: n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].BeaconName < out[j].BeaconName
	})
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
