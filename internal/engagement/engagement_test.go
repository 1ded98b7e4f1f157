package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fixture struct {
	svc     *Service
	repo    *InMemoryRepository
	ads     *advertisement.InMemoryRepository
	ad      *advertisement.Advertisement
	metrics *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ads := advertisement.NewInMemoryRepository(nil)
	ad := &advertisement.Advertisement{Title: "Coffee"}
	if err := ads.Create(context.Background(), ad); err != nil {
		t.Fatalf("create advertisement: %v", err)
	}
	repo := NewInMemoryRepository()
	metrics := NewMetrics()
	return &fixture{
		svc:     NewService(repo, ads, nil, metrics, nil),
		repo:    repo,
		ads:     ads,
		ad:      ad,
		metrics: metrics,
	}
}

func rowsFor(repo *InMemoryRepository, user, ad string, kind Kind) int {
	n := 0
	for _, e := range repo.Snapshot() {
		if e.UserID == user && e.AdvertisementID == ad && e.Kind == kind {
			n++
		}
	}
	return n
}

func TestRecord_RepeatedWritesKeepOneRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, kind := range Kinds {
		for i := 0; i < 5; i++ {
			if _, err := f.svc.Record(ctx, "u1", f.ad.ID, kind, true); err != nil {
				t.Fatalf("Record(%s) error = %v", kind, err)
			}
		}
		if n := rowsFor(f.repo, "u1", f.ad.ID, kind); n != 1 {
			t.Errorf("%s: expected exactly one row, got %d", kind, n)
		}
	}

	if got := f.svc.Stats().Inserted(); got != 4 {
		t.Errorf("expected 4 inserts (one per kind), got %d", got)
	}
	if got := f.svc.Stats().Updated(); got != 16 {
		t.Errorf("expected 16 updates, got %d", got)
	}
	if got := testutil.ToFloat64(f.metrics.upserts.WithLabelValues("like", ResultUpdated)); got != 4 {
		t.Errorf("expected 4 like updates in metrics, got %v", got)
	}
}

func TestRecord_ToggleKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t1 := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	clock := t1
	f.svc.now = func() time.Time { return clock }

	liked, err := f.svc.Record(ctx, "u1", f.ad.ID, KindLike, true)
	if err != nil {
		t.Fatalf("like error = %v", err)
	}
	if !liked.Value || liked.EngagedAt == nil || !liked.EngagedAt.Equal(t1) {
		t.Fatalf("unexpected first like: %+v", liked)
	}

	clock = t1.Add(time.Hour)
	unliked, _ := f.svc.Record(ctx, "u1", f.ad.ID, KindLike, false)
	if unliked.Value || unliked.EngagedAt == nil || !unliked.EngagedAt.Equal(t1) {
		t.Errorf("unlike must clear the flag and keep the timestamp: %+v", unliked)
	}

	clock = t1.Add(2 * time.Hour)
	again, _ := f.svc.Record(ctx, "u1", f.ad.ID, KindLike, true)
	if !again.Value || !again.EngagedAt.Equal(t1) {
		t.Errorf("relike must keep liked_at = first like, got %+v", again)
	}
	if !again.UpdatedAt.Equal(clock) {
		t.Errorf("updated_at should track the last write, got %v", again.UpdatedAt)
	}
	if n := rowsFor(f.repo, "u1", f.ad.ID, KindLike); n != 1 {
		t.Errorf("expected one row after toggling, got %d", n)
	}
	if again.ID != liked.ID {
		t.Error("toggle must mutate the same row")
	}
}

func TestRecord_FalseFirstWriteHasNoTimestamp(t *testing.T) {
	f := newFixture(t)
	e, err := f.svc.Record(context.Background(), "u1", f.ad.ID, KindSave, false)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.Value || e.EngagedAt != nil {
		t.Errorf("expected unset row, got %+v", e)
	}
}

func TestRecord_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Record(ctx, "u1", "missing", KindView, true); !errors.Is(err, advertisement.ErrAdvertisementNotFound) {
		t.Errorf("expected ErrAdvertisementNotFound, got %v", err)
	}
	if _, err := f.svc.Record(ctx, "u1", f.ad.ID, Kind("share"), true); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
	if len(f.repo.Snapshot()) != 0 {
		t.Error("failed records must not write rows")
	}
}

func TestRecord_ConcurrentFirstWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const writers = 32
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Record(ctx, "u1", f.ad.ID, KindView, true); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Record() error = %v", err)
	}
	if n := rowsFor(f.repo, "u1", f.ad.ID, KindView); n != 1 {
		t.Errorf("expected one row after concurrent writes, got %d", n)
	}
	if got := f.svc.Stats().Total(); got != writers {
		t.Errorf("expected %d recorded writes, got %d", writers, got)
	}
}

// racingRepo simulates another writer inserting the row between this
// writer's Update miss and its Insert.
type racingRepo struct {
	*InMemoryRepository
	raced bool
}

func (r *racingRepo) Insert(ctx context.Context, e *Engagement) error {
	if !r.raced {
		r.raced = true
		other := *e
		if err := r.InMemoryRepository.Insert(ctx, &other); err != nil {
			return err
		}
	}
	return r.InMemoryRepository.Insert(ctx, e)
}

func TestRecord_ConflictRetriedAsUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := &racingRepo{InMemoryRepository: f.repo}
	f.svc.repo = repo

	e, err := f.svc.Record(ctx, "u1", f.ad.ID, KindClick, true)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !e.Value {
		t.Errorf("expected the retried update to set the flag, got %+v", e)
	}
	if f.svc.Stats().Conflicts() != 1 || f.svc.Stats().Updated() != 1 || f.svc.Stats().Inserted() != 0 {
		t.Errorf("unexpected stats: %s", f.svc.Stats())
	}
	if got := testutil.ToFloat64(f.metrics.conflicts.WithLabelValues("click")); got != 1 {
		t.Errorf("expected one conflict metric, got %v", got)
	}
	if n := rowsFor(f.repo, "u1", f.ad.ID, KindClick); n != 1 {
		t.Errorf("expected one row, got %d", n)
	}
}

// alwaysConflicting never finds the row and never manages to insert it.
type alwaysConflicting struct{ *InMemoryRepository }

func (alwaysConflicting) Update(context.Context, string, string, Kind, bool, time.Time) (*Engagement, error) {
	return nil, ErrEngagementNotFound
}

func (alwaysConflicting) Insert(context.Context, *Engagement) error { return ErrDuplicate }

func TestRecord_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.svc.repo = alwaysConflicting{f.repo}

	if _, err := f.svc.Record(context.Background(), "u1", f.ad.ID, KindView, true); !errors.Is(err, ErrTooManyConflicts) {
		t.Errorf("expected ErrTooManyConflicts, got %v", err)
	}
	if got := f.svc.Stats().Conflicts(); got != DefaultMaxAttempts {
		t.Errorf("expected %d conflicts, got %d", DefaultMaxAttempts, got)
	}
}

func TestRepository_ListPositiveAndCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	second := &advertisement.Advertisement{Title: "Tea"}
	if err := f.ads.Create(ctx, second); err != nil {
		t.Fatalf("create advertisement: %v", err)
	}

	f.svc.now = func() time.Time { return base }
	_, _ = f.svc.Record(ctx, "u1", f.ad.ID, KindLike, true)
	f.svc.now = func() time.Time { return base.Add(time.Minute) }
	_, _ = f.svc.Record(ctx, "u1", second.ID, KindLike, true)
	_, _ = f.svc.Record(ctx, "u1", second.ID, KindSave, false)
	_, _ = f.svc.Record(ctx, "u2", f.ad.ID, KindLike, true)

	liked, err := f.repo.ListPositive(ctx, "u1", KindLike)
	if err != nil {
		t.Fatalf("ListPositive() error = %v", err)
	}
	if len(liked) != 2 || liked[0].AdvertisementID != second.ID {
		t.Errorf("expected two likes, most recent first, got %+v", liked)
	}
	saved, _ := f.repo.ListPositive(ctx, "u1", KindSave)
	if len(saved) != 0 {
		t.Errorf("false rows must not be listed, got %+v", saved)
	}

	if n, _ := f.repo.CountByAdvertisement(ctx, second.ID); n != 2 {
		t.Errorf("expected 2 rows for the second ad, got %d", n)
	}
	if _, err := f.svc.Get(ctx, "u3", second.ID, KindLike); !errors.Is(err, ErrEngagementNotFound) {
		t.Errorf("expected ErrEngagementNotFound, got %v", err)
	}
}

func TestPostgresRepository_MalformedIDsSkipQuery(t *testing.T) {
	repo := NewPostgresRepository(nil, nil)
	ctx := context.Background()
	adID := "5f0c6a8e-3d6b-4c1e-9a43-2b7f1d9e0c11"

	if _, err := repo.Update(ctx, "not-a-uuid", adID, KindLike, true, time.Now()); !errors.Is(err, ErrEngagementNotFound) {
		t.Errorf("Update: expected ErrEngagementNotFound, got %v", err)
	}
	err := repo.Insert(ctx, &Engagement{UserID: "not-a-uuid", AdvertisementID: adID, Kind: KindLike, Value: true})
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Insert: expected ErrInvalidReference, got %v", err)
	}
}
