package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/cache"
	"github.com/onnwee/beaconads/internal/validate"
)

var day0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

type fixture struct {
	svc     *Service
	repo    *InMemoryRepository
	beacons *beacon.InMemoryRepository
	ads     *advertisement.InMemoryRepository
	store   *cache.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	beacons := beacon.NewInMemoryRepository(nil)
	ads := advertisement.NewInMemoryRepository(nil)
	repo := NewInMemoryRepository(ads, nil)
	store := cache.NewMemoryStore()
	svc := NewService(ServiceConfig{
		Assignments:    repo,
		Beacons:        beacons,
		Advertisements: ads,
		Cache:          cache.NewJSON[[]Scheduled](store, ScheduleCacheName, time.Minute, nil),
	})
	return &fixture{svc: svc, repo: repo, beacons: beacons, ads: ads, store: store}
}

func (f *fixture) beacon(t *testing.T, name string) *beacon.Beacon {
	t.Helper()
	b := &beacon.Beacon{Name: name}
	if err := f.beacons.Create(context.Background(), b); err != nil {
		t.Fatalf("create beacon: %v", err)
	}
	return b
}

func (f *fixture) ad(t *testing.T, title string) *advertisement.Advertisement {
	t.Helper()
	a := &advertisement.Advertisement{Title: title}
	if err := f.ads.Create(context.Background(), a); err != nil {
		t.Fatalf("create advertisement: %v", err)
	}
	return a
}

func (f *fixture) assign(t *testing.T, b *beacon.Beacon, a *advertisement.Advertisement, start, end time.Time) *Assignment {
	t.Helper()
	as := &Assignment{BeaconID: b.ID, AdvertisementID: a.ID, StartDate: start, EndDate: end}
	if err := f.svc.Create(context.Background(), as); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return as
}

func titles(list []Scheduled) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Advertisement.Title
	}
	return out
}

func TestIsValidAt_InclusiveBounds(t *testing.T) {
	a := &Assignment{StartDate: day(0), EndDate: day(10)}
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"at start", day(0), true},
		{"at end", day(10), true},
		{"second before start", day(0).Add(-time.Second), false},
		{"second after end", day(10).Add(time.Second), false},
		{"inside", day(5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.IsValidAt(tt.at); got != tt.want {
				t.Errorf("IsValidAt(%v) = %t, want %t", tt.at, got, tt.want)
			}
		})
	}
}

func TestActiveAdvertisements_OverlappingWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.beacon(t, "B")
	ad1 := f.ad(t, "Ad1")
	ad2 := f.ad(t, "Ad2")
	f.assign(t, b, ad1, day(0), day(10))
	f.assign(t, b, ad2, day(5), day(20))

	tests := []struct {
		at   time.Time
		want []string
	}{
		{day(7), []string{"Ad2", "Ad1"}},
		{day(12), []string{"Ad2"}},
		{day(25), []string{}},
	}
	for _, tt := range tests {
		got, err := f.svc.ActiveAdvertisements(ctx, b.ID, tt.at)
		if err != nil {
			t.Fatalf("ActiveAdvertisements() error = %v", err)
		}
		gotTitles := titles(got)
		if len(gotTitles) != len(tt.want) {
			t.Errorf("at %v: got %v, want %v", tt.at, gotTitles, tt.want)
			continue
		}
		for i := range tt.want {
			if gotTitles[i] != tt.want[i] {
				t.Errorf("at %v: got %v, want %v", tt.at, gotTitles, tt.want)
			}
		}
	}
}

func TestActiveAdvertisements_UnknownBeacon(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ActiveAdvertisements(context.Background(), "missing", day(0)); !errors.Is(err, beacon.ErrBeaconNotFound) {
		t.Errorf("expected ErrBeaconNotFound, got %v", err)
	}
}

func TestActiveAdvertisements_CacheAndInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.beacon(t, "B")
	ad1 := f.ad(t, "Ad1")
	f.assign(t, b, ad1, day(0), day(10))

	if got, _ := f.svc.ActiveAdvertisements(ctx, b.ID, day(1)); len(got) != 1 {
		t.Fatalf("expected one active ad, got %v", titles(got))
	}
	if _, ok, _ := f.store.Get(ctx, CacheKey(b.ID)); !ok {
		t.Fatal("expected the schedule to be cached")
	}

	// A write through the repository alone is not seen until invalidation.
	inactive := false
	if _, err := f.ads.Update(ctx, ad1.ID, &advertisement.Update{IsActive: &inactive}); err != nil {
		t.Fatalf("update ad: %v", err)
	}
	if got, _ := f.svc.ActiveAdvertisements(ctx, b.ID, day(1)); len(got) != 1 {
		t.Errorf("expected cached schedule, got %v", titles(got))
	}
	f.svc.InvalidateAdvertisement(ctx, ad1.ID)
	if got, _ := f.svc.ActiveAdvertisements(ctx, b.ID, day(1)); len(got) != 0 {
		t.Errorf("inactive ads must be excluded after invalidation, got %v", titles(got))
	}

	// Assignment writes invalidate the beacon key themselves.
	ad2 := f.ad(t, "Ad2")
	as := f.assign(t, b, ad2, day(0), day(3))
	if got, _ := f.svc.ActiveAdvertisements(ctx, b.ID, day(1)); len(got) != 1 || got[0].Advertisement.ID != ad2.ID {
		t.Errorf("expected new assignment visible, got %v", titles(got))
	}
	end := day(0).Add(time.Hour)
	if _, err := f.svc.Update(ctx, as.ID, &Update{EndDate: &end}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got, _ := f.svc.ActiveAdvertisements(ctx, b.ID, day(1)); len(got) != 0 {
		t.Errorf("expected shortened window to exclude the ad, got %v", titles(got))
	}
	if err := f.svc.Delete(ctx, as.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := f.store.Get(ctx, CacheKey(b.ID)); ok {
		t.Error("expected delete to invalidate the cache entry")
	}
}

// midLoadRepository runs during once, after Schedule has read the repository
// and before the result reaches the cache.
type midLoadRepository struct {
	*InMemoryRepository
	during func()
}

func (r *midLoadRepository) Schedule(ctx context.Context, beaconID string) ([]Scheduled, error) {
	out, err := r.InMemoryRepository.Schedule(ctx, beaconID)
	if r.during != nil {
		during := r.during
		r.during = nil
		during()
	}
	return out, err
}

func TestActiveAdvertisements_WriteDuringLoadIsVisible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.beacon(t, "B")
	ad := f.ad(t, "Ad")

	repo := &midLoadRepository{InMemoryRepository: f.repo}
	svc := NewService(ServiceConfig{
		Assignments:    repo,
		Beacons:        f.beacons,
		Advertisements: f.ads,
		Cache:          cache.NewJSON[[]Scheduled](f.store, ScheduleCacheName, time.Minute, nil),
	})
	repo.during = func() {
		a := &Assignment{BeaconID: b.ID, AdvertisementID: ad.ID, StartDate: day(0), EndDate: day(10)}
		if err := svc.Create(ctx, a); err != nil {
			t.Errorf("Create() error = %v", err)
		}
	}

	if got, err := svc.ActiveAdvertisements(ctx, b.ID, day(1)); err != nil || len(got) != 0 {
		t.Fatalf("expected the empty schedule read before the write, got %v %v", titles(got), err)
	}
	got, err := svc.ActiveAdvertisements(ctx, b.ID, day(1))
	if err != nil {
		t.Fatalf("ActiveAdvertisements() error = %v", err)
	}
	if len(got) != 1 || got[0].Advertisement.ID != ad.ID {
		t.Errorf("expected the assignment created during the load, got %v", titles(got))
	}
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.beacon(t, "B")
	a := f.ad(t, "A")

	tests := []struct {
		name   string
		as     Assignment
		fields []string
	}{
		{"end before start", Assignment{BeaconID: b.ID, AdvertisementID: a.ID, StartDate: day(5), EndDate: day(1)}, []string{"end_date"}},
		{"end equals start", Assignment{BeaconID: b.ID, AdvertisementID: a.ID, StartDate: day(5), EndDate: day(5)}, []string{"end_date"}},
		{"missing end", Assignment{BeaconID: b.ID, AdvertisementID: a.ID}, []string{"end_date"}},
		{"unknown references", Assignment{BeaconID: "nope", AdvertisementID: "nope", StartDate: day(0), EndDate: day(1)}, []string{"beacon_id", "advertisement_id"}},
		{"missing ids", Assignment{StartDate: day(0), EndDate: day(1)}, []string{"beacon_id", "advertisement_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := tt.as
			err := f.svc.Create(ctx, &as)
			var fe validate.FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			for _, field := range tt.fields {
				if _, ok := fe[field]; !ok {
					t.Errorf("expected error on %s, got %v", field, fe)
				}
			}
		})
	}
}

func TestCreate_DefaultsAndDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)
	f.repo.now = func() time.Time { return now }
	b := f.beacon(t, "B")
	a := f.ad(t, "A")

	as := &Assignment{BeaconID: b.ID, AdvertisementID: a.ID, EndDate: now.Add(time.Hour)}
	if err := f.svc.Create(ctx, as); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !as.StartDate.Equal(now) || !as.AssignedAt.Equal(now) {
		t.Errorf("expected start date and assigned_at to default to now, got %+v", as)
	}

	dup := &Assignment{BeaconID: b.ID, AdvertisementID: a.ID, EndDate: now.Add(2 * time.Hour)}
	if err := f.svc.Create(ctx, dup); !errors.Is(err, ErrDuplicateAssignment) {
		t.Errorf("expected ErrDuplicateAssignment, got %v", err)
	}

	if _, err := f.svc.Update(ctx, as.ID, &Update{EndDate: &now}); err == nil {
		t.Error("expected window validation on update")
	}
	got, _ := f.svc.GetByID(ctx, as.ID)
	if !got.EndDate.Equal(now.Add(time.Hour)) {
		t.Error("rejected update must not change the stored assignment")
	}
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b1, b2 := f.beacon(t, "B1"), f.beacon(t, "B2")
	a1, a2 := f.ad(t, "A1"), f.ad(t, "A2")
	f.assign(t, b1, a1, day(0), day(10))
	f.assign(t, b1, a2, day(5), day(20))
	f.assign(t, b2, a1, day(2), day(4))

	byBeacon, total, _ := f.svc.List(ctx, Filter{BeaconID: b1.ID}, 10, 0)
	if total != 2 || byBeacon[0].AdvertisementID != a2.ID {
		t.Errorf("expected b1 assignments newest start first, got %d", total)
	}

	from := day(2)
	_, total, _ = f.svc.List(ctx, Filter{StartFrom: &from}, 10, 0)
	if total != 2 {
		t.Errorf("expected 2 assignments starting on or after day 2, got %d", total)
	}

	until := day(10)
	_, total, _ = f.svc.List(ctx, Filter{AdvertisementID: a1.ID, EndUntil: &until}, 10, 0)
	if total != 2 {
		t.Errorf("expected 2 a1 assignments ending by day 10, got %d", total)
	}

	page, total, _ := f.svc.List(ctx, Filter{}, 10, 30)
	if total != 3 || len(page) != 0 {
		t.Errorf("expected empty page with total 3, got %d items, total %d", len(page), total)
	}
}

func TestDeactivateExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b1, b2 := f.beacon(t, "B1"), f.beacon(t, "B2")
	expired := f.ad(t, "expired")
	partly := f.ad(t, "partly")
	unassigned := f.ad(t, "unassigned")
	f.assign(t, b1, expired, day(0), day(5))
	f.assign(t, b2, expired, day(0), day(6))
	f.assign(t, b1, partly, day(0), day(5))
	f.assign(t, b2, partly, day(0), day(30))

	// Warm the cache so the sweep has something to invalidate.
	if got, _ := f.svc.ActiveAdvertisements(ctx, b1.ID, day(1)); len(got) != 2 {
		t.Fatalf("expected two active ads before the sweep, got %v", titles(got))
	}

	n, err := f.svc.DeactivateExpired(ctx, day(10))
	if err != nil || n != 1 {
		t.Fatalf("DeactivateExpired() = %d, %v; want 1", n, err)
	}
	for _, tc := range []struct {
		ad   *advertisement.Advertisement
		want bool
	}{{expired, false}, {partly, true}, {unassigned, true}} {
		got, _ := f.ads.GetByID(ctx, tc.ad.ID)
		if got.IsActive != tc.want {
			t.Errorf("%s: is_active = %t, want %t", got.Title, got.IsActive, tc.want)
		}
	}

	if got, _ := f.svc.ActiveAdvertisements(ctx, b1.ID, day(1)); len(got) != 1 || got[0].Advertisement.ID != partly.ID {
		t.Errorf("sweep must invalidate cached schedules, got %v", titles(got))
	}

	again, err := f.svc.DeactivateExpired(ctx, day(10))
	if err != nil || again != 0 {
		t.Errorf("second sweep = %d, %v; want 0", again, err)
	}

	// The latest end date is inclusive: an ad ending exactly now is not expired.
	if n, _ := f.svc.DeactivateExpired(ctx, day(30)); n != 0 {
		t.Errorf("ad whose window ends now must stay active, changed %d", n)
	}
}
