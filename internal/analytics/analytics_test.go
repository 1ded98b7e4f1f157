package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/engagement"
	"github.com/onnwee/beaconads/internal/message"
)

type beacons []beacon.Beacon

func (b beacons) Snapshot() []beacon.Beacon { return b }

type ads []advertisement.Advertisement

func (a ads) Snapshot() []advertisement.Advertisement { return a }

type engagements []engagement.Engagement

func (e engagements) Snapshot() []engagement.Engagement { return e }

type logs []deliverylog.Log

func (l logs) Snapshot() []deliverylog.Log { return l }

type messages []message.Message

func (m messages) Snapshot() []message.Message { return m }

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func view(user, ad string, when time.Time, value bool) engagement.Engagement {
	return engagement.Engagement{UserID: user, AdvertisementID: ad, Kind: engagement.KindView, Value: value, EngagedAt: at(when)}
}

func TestMemoryStore_Counts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(
		beacons{
			{ID: "b1", Name: "Lobby", LocationName: "Main Hall", Status: beacon.StatusActive},
			{ID: "b2", Name: "Door", LocationName: "Main Hall", Status: beacon.StatusInactive},
			{ID: "b3", Name: "Cafe", LocationName: "Cafeteria", Status: beacon.StatusActive},
			{ID: "b4", Name: "Spare", Status: beacon.StatusInactive},
		},
		ads{}, engagements{},
		logs{
			{ID: "l1", Timestamp: now.Add(-RecentLogsWindow - time.Second)},
			{ID: "l2", Timestamp: now.Add(-RecentLogsWindow)},
			{ID: "l3", Timestamp: now.Add(-time.Minute)},
		},
		messages{},
	)

	if n, _ := store.CountBeacons(ctx, ""); n != 4 {
		t.Errorf("CountBeacons(all) = %d, want 4", n)
	}
	if n, _ := store.CountBeacons(ctx, beacon.StatusActive); n != 2 {
		t.Errorf("CountBeacons(Active) = %d, want 2", n)
	}
	if n, _ := store.CountLocations(ctx); n != 2 {
		t.Errorf("CountLocations() = %d, want 2", n)
	}
	if n, _ := store.CountLogsSince(ctx, now.Add(-RecentLogsWindow)); n != 2 {
		t.Errorf("CountLogsSince() = %d, want 2 (window start is inclusive)", n)
	}

	empty := NewMemoryStore(beacons{}, ads{}, engagements{}, logs{}, messages{})
	if n, err := empty.CountLocations(ctx); err != nil || n != 0 {
		t.Errorf("empty CountLocations() = %d, %v", n, err)
	}
}

func TestMemoryStore_PopularWindow(t *testing.T) {
	ctx := context.Background()
	since := now.Add(-PopularWindow)
	store := NewMemoryStore(beacons{},
		ads{
			{ID: "old", Title: "Old view", CreatedAt: now.Add(-30 * 24 * time.Hour)},
			{ID: "recent", Title: "Recent view", CreatedAt: now.Add(-30 * 24 * time.Hour)},
		},
		engagements{
			view("u1", "old", now.Add(-8*24*time.Hour), true),
			view("u1", "recent", now.Add(-6*24*time.Hour), true),
		},
		logs{}, messages{},
	)

	ranked, err := store.PopularAdvertisements(ctx, since, "", PopularLimit)
	if err != nil {
		t.Fatalf("PopularAdvertisements() error = %v", err)
	}
	scores := map[string]int{}
	for _, r := range ranked {
		scores[r.Advertisement.ID] = r.Score
	}
	if scores["old"] != 0 || scores["recent"] != 1 {
		t.Errorf("unexpected scores: %v", scores)
	}
	if ranked[0].Advertisement.ID != "recent" {
		t.Errorf("expected recent first, got %s", ranked[0].Advertisement.ID)
	}
}

func TestMemoryStore_PopularOrdering(t *testing.T) {
	ctx := context.Background()
	var catalog ads
	for i := 0; i < 12; i++ {
		catalog = append(catalog, advertisement.Advertisement{
			ID:        string(rune('a' + i)),
			Title:     "Ad",
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}
	catalog[11].Title = "Winter sale"
	store := NewMemoryStore(beacons{}, catalog,
		engagements{
			view("u1", "l", now.Add(-time.Hour), true),
			view("u2", "l", now.Add(-time.Hour), true),
			view("u1", "f", now.Add(-time.Hour), true),
			view("u2", "f", now.Add(-time.Hour), false),
			{UserID: "u3", AdvertisementID: "f", Kind: engagement.KindLike, Value: true, EngagedAt: at(now)},
		},
		logs{}, messages{},
	)

	ranked, _ := store.PopularAdvertisements(ctx, now.Add(-PopularWindow), "", PopularLimit)
	if len(ranked) != PopularLimit {
		t.Fatalf("expected %d ads, got %d", PopularLimit, len(ranked))
	}
	want := []string{"l", "f", "a", "b", "c"}
	for i, id := range want {
		if ranked[i].Advertisement.ID != id {
			t.Errorf("rank %d = %s, want %s", i, ranked[i].Advertisement.ID, id)
		}
	}
	if ranked[0].Score != 2 || ranked[1].Score != 1 {
		t.Errorf("unexpected scores %d, %d", ranked[0].Score, ranked[1].Score)
	}

	filtered, _ := store.PopularAdvertisements(ctx, now.Add(-PopularWindow), "WINTER", PopularLimit)
	if len(filtered) != 1 || filtered[0].Advertisement.ID != "l" {
		t.Errorf("search should narrow candidates, got %+v", filtered)
	}
}

func TestMemoryStore_DailyBuckets(t *testing.T) {
	ctx := context.Background()
	plus2 := time.FixedZone("UTC+2", 2*60*60)
	click := func(user string, when time.Time) engagement.Engagement {
		return engagement.Engagement{UserID: user, AdvertisementID: "a", Kind: engagement.KindClick, Value: true, EngagedAt: at(when)}
	}
	store := NewMemoryStore(beacons{{ID: "b1", Name: "Lobby"}, {ID: "b2", Name: "Door"}}, ads{},
		engagements{
			click("u1", time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC)),
			click("u2", time.Date(2026, 10, 1, 23, 55, 0, 0, time.UTC)),
			// 2026-10-02 01:00 at +02:00 is still October 1st in UTC.
			click("u3", time.Date(2026, 10, 2, 1, 0, 0, 0, plus2)),
			click("u4", time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)),
			{UserID: "u5", AdvertisementID: "a", Kind: engagement.KindClick, Value: false, EngagedAt: at(now)},
			view("u1", "a", time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), true),
		},
		logs{},
		messages{
			{BeaconID: "b1", SentAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)},
			{BeaconID: "b1", SentAt: time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)},
			{BeaconID: "b2", SentAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
			{BeaconID: "b1", SentAt: time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)},
		},
	)

	clicks, err := store.DailyEngagements(ctx, engagement.KindClick, nil)
	if err != nil {
		t.Fatalf("DailyEngagements() error = %v", err)
	}
	want := []DailyCount{{"2026-10-01", 3}, {"2026-10-02", 1}}
	if len(clicks) != len(want) {
		t.Fatalf("got %+v, want %+v", clicks, want)
	}
	for i := range want {
		if clicks[i] != want[i] {
			t.Errorf("bucket %d = %+v, want %+v", i, clicks[i], want[i])
		}
	}

	day, _ := ParseDate("2026-10-02")
	filtered, _ := store.DailyEngagements(ctx, engagement.KindClick, &day)
	if len(filtered) != 1 || filtered[0].Count != 1 {
		t.Errorf("date filter: got %+v", filtered)
	}
	missing, _ := ParseDate("2020-01-01")
	if none, _ := store.DailyEngagements(ctx, engagement.KindClick, &missing); none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", none)
	}

	msgs, _ := store.DailyMessages(ctx, nil)
	wantMsgs := []BeaconDailyMessages{
		{"b2", "Door", "2026-10-01", 1},
		{"b1", "Lobby", "2026-10-01", 2},
		{"b1", "Lobby", "2026-10-03", 1},
	}
	if len(msgs) != len(wantMsgs) {
		t.Fatalf("got %+v, want %+v", msgs, wantMsgs)
	}
	for i := range wantMsgs {
		if msgs[i] != wantMsgs[i] {
			t.Errorf("row %d = %+v, want %+v", i, msgs[i], wantMsgs[i])
		}
	}
}

type serviceFixture struct {
	svc         *Service
	ads         *advertisement.InMemoryRepository
	engagements *engagement.InMemoryRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	adRepo := advertisement.NewInMemoryRepository(nil)
	engRepo := engagement.NewInMemoryRepository()
	store := NewMemoryStore(beacon.NewInMemoryRepository(nil), adRepo, engRepo,
		deliverylog.NewInMemoryRepository(), message.NewInMemoryRepository())
	svc := NewService(store, engRepo, adRepo, nil)
	svc.now = func() time.Time { return now }
	return &serviceFixture{svc: svc, ads: adRepo, engagements: engRepo}
}

func (f *serviceFixture) ad(t *testing.T, title string) *advertisement.Advertisement {
	t.Helper()
	a := &advertisement.Advertisement{Title: title, Content: title + " content"}
	if err := f.ads.Create(context.Background(), a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return a
}

func (f *serviceFixture) engage(t *testing.T, user, adID string, kind engagement.Kind, value bool, when time.Time) {
	t.Helper()
	e := &engagement.Engagement{UserID: user, AdvertisementID: adID, Kind: kind, Value: value, CreatedAt: when, UpdatedAt: when}
	if value {
		e.EngagedAt = at(when)
	}
	if err := f.engagements.Insert(context.Background(), e); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}

func TestService_PopularAdvertisements(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	a := f.ad(t, "Coffee")
	b := f.ad(t, "Tea")
	f.engage(t, "u1", a.ID, engagement.KindView, true, now.Add(-time.Hour))
	f.engage(t, "u2", a.ID, engagement.KindView, true, now.Add(-2*time.Hour))
	f.engage(t, "u1", a.ID, engagement.KindLike, true, now.Add(-30*time.Minute))
	f.engage(t, "u1", a.ID, engagement.KindSave, false, now)

	got, err := f.svc.PopularAdvertisements(ctx, "u1", "")
	if err != nil {
		t.Fatalf("PopularAdvertisements() error = %v", err)
	}
	if len(got) != 2 || got[0].Advertisement.ID != a.ID || got[1].Advertisement.ID != b.ID {
		t.Fatalf("unexpected ranking: %+v", got)
	}
	top := got[0]
	if top.Score != 2 || !top.Viewed || !top.Liked || top.Clicked || top.Saved {
		t.Errorf("unexpected decoration: %+v", top)
	}
	if top.ViewedAt == nil || !top.ViewedAt.Equal(now.Add(-time.Hour)) || top.ClickedAt != nil || top.SavedAt != nil {
		t.Errorf("unexpected timestamps: %+v", top)
	}

	anon, _ := f.svc.PopularAdvertisements(ctx, "", "")
	if anon[0].Viewed || anon[0].Liked {
		t.Errorf("anonymous callers get no flags: %+v", anon[0])
	}
}

func TestService_LikedSaved(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	coffee := f.ad(t, "Coffee")
	tea := f.ad(t, "Tea")
	cake := f.ad(t, "Cake")
	f.engage(t, "u1", coffee.ID, engagement.KindLike, true, now.Add(-3*time.Hour))
	f.engage(t, "u1", coffee.ID, engagement.KindSave, true, now.Add(-2*time.Hour))
	f.engage(t, "u1", tea.ID, engagement.KindSave, true, now.Add(-time.Hour))
	f.engage(t, "u1", cake.ID, engagement.KindLike, false, now)
	f.engage(t, "u2", cake.ID, engagement.KindLike, true, now)

	rows, err := f.svc.LikedSaved(ctx, "u1", "")
	if err != nil {
		t.Fatalf("LikedSaved() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 merged rows, got %+v", rows)
	}
	if rows[0].AdvertisementID != tea.ID || rows[0].Liked || rows[0].LikedAt != nil || !rows[0].Saved {
		t.Errorf("unexpected tea row: %+v", rows[0])
	}
	if rows[1].AdvertisementID != coffee.ID || !rows[1].Liked || !rows[1].Saved || rows[1].LikedAt == nil {
		t.Errorf("unexpected coffee row: %+v", rows[1])
	}

	filtered, _ := f.svc.LikedSaved(ctx, "u1", "coff")
	if len(filtered) != 1 || filtered[0].AdvertisementID != coffee.ID {
		t.Errorf("search should narrow both sides, got %+v", filtered)
	}
	if none, _ := f.svc.LikedSaved(ctx, "nobody", ""); none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", none)
	}
}

func TestService_CountsAndDaily(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	a := f.ad(t, "Coffee")
	f.engage(t, "u1", a.ID, engagement.KindClick, true, now.Add(-24*time.Hour))
	f.engage(t, "u2", a.ID, engagement.KindClick, true, now)
	f.engage(t, "u1", a.ID, engagement.KindView, true, now)

	if n, err := f.svc.BeaconCount(ctx); err != nil || n != 0 {
		t.Errorf("BeaconCount() = %d, %v", n, err)
	}
	if n, err := f.svc.ActiveBeaconCount(ctx); err != nil || n != 0 {
		t.Errorf("ActiveBeaconCount() = %d, %v", n, err)
	}
	if n, since, err := f.svc.RecentLogCount(ctx); err != nil || n != 0 || !since.Equal(now.Add(-RecentLogsWindow)) {
		t.Errorf("RecentLogCount() = %d, %v, %v", n, since, err)
	}
	clicks, _ := f.svc.ClicksPerDay(ctx, nil)
	if len(clicks) != 2 {
		t.Errorf("ClicksPerDay() = %+v", clicks)
	}
	views, _ := f.svc.ImpressionsPerDay(ctx, nil)
	if len(views) != 1 || views[0].Date != "2026-10-18" {
		t.Errorf("ImpressionsPerDay() = %+v", views)
	}
	if msgs, err := f.svc.MessagesPerDay(ctx, nil); err != nil || len(msgs) != 0 {
		t.Errorf("MessagesPerDay() = %+v, %v", msgs, err)
	}
}
