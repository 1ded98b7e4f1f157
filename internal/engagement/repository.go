package engagement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines engagement persistence. Update and Insert are the two
// halves of an upsert; the Service combines them.
type Repository interface {
	// Update sets the flag of an existing row. Returns ErrEngagementNotFound
	// when the row does not exist yet.
	Update(ctx context.Context, userID, adID string, kind Kind, value bool, at time.Time) (*Engagement, error)

	// Insert creates the row. Returns ErrDuplicate when a concurrent writer
	// created it first.
	Insert(ctx context.Context, e *Engagement) error

	// Get returns the row for (user, ad, kind) or ErrEngagementNotFound.
	Get(ctx context.Context, userID, adID string, kind Kind) (*Engagement, error)

	// ListPositive returns the user's rows of one kind whose flag is true,
	// most recently engaged first.
	ListPositive(ctx context.Context, userID string, kind Kind) ([]*Engagement, error)

	// CountByAdvertisement counts rows of any kind referencing an ad.
	CountByAdvertisement(ctx context.Context, adID string) (int, error)
}

type rowKey struct {
	user, ad string
	kind     Kind
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	rows map[rowKey]*Engagement
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{rows: make(map[rowKey]*Engagement)}
}

func copyEngagement(e *Engagement) *Engagement {
	c := *e
	if e.EngagedAt != nil {
		t := *e.EngagedAt
		c.EngagedAt = &t
	}
	return &c
}

// Update implements Repository.
func (r *InMemoryRepository) Update(_ context.Context, userID, adID string, kind Kind, value bool, at time.Time) (*Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rows[rowKey{userID, adID, kind}]
	if !ok {
		return nil, ErrEngagementNotFound
	}
	e.apply(value, at)
	return copyEngagement(e), nil
}

// Insert implements Repository.
func (r *InMemoryRepository) Insert(_ context.Context, e *Engagement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rowKey{e.UserID, e.AdvertisementID, e.Kind}
	if _, exists := r.rows[key]; exists {
		return ErrDuplicate
	}
	e.ID = uuid.NewString()
	r.rows[key] = copyEngagement(e)
	return nil
}

// Get implements Repository.
func (r *InMemoryRepository) Get(_ context.Context, userID, adID string, kind Kind) (*Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rows[rowKey{userID, adID, kind}]
	if !ok {
		return nil, ErrEngagementNotFound
	}
	return copyEngagement(e), nil
}

// ListPositive implements Repository.
func (r *InMemoryRepository) ListPositive(_ context.Context, userID string, kind Kind) ([]*Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Engagement{}
	for key, e := range r.rows {
		if key.user == userID && key.kind == kind && e.Value {
			out = append(out, copyEngagement(e))
		}
	}
	sortByEngagedAt(out)
	return out, nil
}

// CountByAdvertisement implements Repository.
func (r *InMemoryRepository) CountByAdvertisement(_ context.Context, adID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.rows {
		if key.ad == adID {
			n++
		}
	}
	return n, nil
}

// Snapshot returns copies of every row, for in-memory aggregation.
func (r *InMemoryRepository) Snapshot() []Engagement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Engagement, 0, len(r.rows))
	for _, e := range r.rows {
		out = append(out, *copyEngagement(e))
	}
	return out
}

func sortByEngagedAt(list []*Engagement) {
	sort.Slice(list, func(i, j int) bool {
		ti, tj := list[i].EngagedAt, list[j].EngagedAt
		switch {
		case ti == nil && tj == nil:
			return list[i].AdvertisementID < list[j].AdvertisementID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		}
		return list[i].AdvertisementID < list[j].AdvertisementID
	})
}
