package assignment

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/beaconads/internal/advertisement"
)

// Repository defines assignment persistence.
type Repository interface {
	// Create stores a validated assignment. Returns ErrDuplicateAssignment when
	// the (beacon, advertisement) pair is already scheduled.
	Create(ctx context.Context, a *Assignment) error

	// GetByID returns ErrAssignmentNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Assignment, error)

	// Update changes the window of an assignment.
	Update(ctx context.Context, id string, u *Update) (*Assignment, error)

	// Delete removes an assignment.
	Delete(ctx context.Context, id string) error

	// List returns one page ordered by start_date desc, id, and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Assignment, int, error)

	// Schedule returns every assignment of a beacon joined with its
	// advertisement, ordered by start_date desc, id. No time filter is applied.
	Schedule(ctx context.Context, beaconID string) ([]Scheduled, error)

	// BeaconIDsForAdvertisement lists the beacons an advertisement is assigned to.
	BeaconIDsForAdvertisement(ctx context.Context, adID string) ([]string, error)

	// ExpiredAdvertisementIDs lists active advertisements that have at least
	// one assignment and whose latest end_date is before now.
	ExpiredAdvertisementIDs(ctx context.Context, now time.Time) ([]string, error)
}

// InMemoryRepository is an in-memory implementation of Repository. It joins
// against an advertisement repository for Schedule.
type InMemoryRepository struct {
	mu          sync.RWMutex
	assignments map[string]*Assignment
	pairs       map[[2]string]string // (beacon, ad) -> assignment id
	ads         advertisement.Repository
	logger      *slog.Logger
	now         func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository(ads advertisement.Repository, logger *slog.Logger) *InMemoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryRepository{
		assignments: make(map[string]*Assignment),
		pairs:       make(map[[2]string]string),
		ads:         ads,
		logger:      logger,
		now:         time.Now,
	}
}

func copyAssignment(a *Assignment) *Assignment {
	c := *a
	return &c
}

func sortAssignments(list []*Assignment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartDate.Equal(list[j].StartDate) {
			return list[i].StartDate.After(list[j].StartDate)
		}
		return list[i].ID < list[j].ID
	})
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, a *Assignment) error {
	now := r.now().UTC()
	if err := a.normalize(now); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pair := [2]string{a.BeaconID, a.AdvertisementID}
	if _, exists := r.pairs[pair]; exists {
		return ErrDuplicateAssignment
	}

	a.ID = uuid.NewString()
	a.AssignedAt = now
	a.UpdatedAt = now
	r.assignments[a.ID] = copyAssignment(a)
	r.pairs[pair] = a.ID
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	return copyAssignment(a), nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(_ context.Context, id string, u *Update) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	updated := copyAssignment(a)
	if err := u.Apply(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = r.now().UTC()
	r.assignments[id] = updated
	return copyAssignment(updated), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[id]
	if !ok {
		return ErrAssignmentNotFound
	}
	delete(r.pairs, [2]string{a.BeaconID, a.AdvertisementID})
	delete(r.assignments, id)
	return nil
}

// List implements Repository.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Assignment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Assignment
	for _, a := range r.assignments {
		if f.Matches(a) {
			matched = append(matched, a)
		}
	}
	sortAssignments(matched)

	out := []*Assignment{}
	if offset >= 0 && offset < len(matched) {
		end := len(matched)
		if limit > 0 && limit < end-offset {
			end = offset + limit
		}
		for _, a := range matched[offset:end] {
			out = append(out, copyAssignment(a))
		}
	}
	return out, len(matched), nil
}

// Schedule implements Repository.
func (r *InMemoryRepository) Schedule(ctx context.Context, beaconID string) ([]Scheduled, error) {
	r.mu.RLock()
	var mine []*Assignment
	for _, a := range r.assignments {
		if a.BeaconID == beaconID {
			mine = append(mine, copyAssignment(a))
		}
	}
	r.mu.RUnlock()

	sortAssignments(mine)

	out := []Scheduled{}
	for _, a := range mine {
		ad, err := r.ads.GetByID(ctx, a.AdvertisementID)
		if errors.Is(err, advertisement.ErrAdvertisementNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Scheduled{
			AssignmentID:  a.ID,
			StartDate:     a.StartDate,
			EndDate:       a.EndDate,
			Advertisement: *ad,
		})
	}
	return out, nil
}

// BeaconIDsForAdvertisement implements Repository.
func (r *InMemoryRepository) BeaconIDsForAdvertisement(_ context.Context, adID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []string{}
	for _, a := range r.assignments {
		if a.AdvertisementID == adID {
			out = append(out, a.BeaconID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ExpiredAdvertisementIDs implements Repository.
func (r *InMemoryRepository) ExpiredAdvertisementIDs(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.RLock()
	latest := make(map[string]time.Time)
	for _, a := range r.assignments {
		if end, ok := latest[a.AdvertisementID]; !ok || a.EndDate.After(end) {
			latest[a.AdvertisementID] = a.EndDate
		}
	}
	r.mu.RUnlock()

	out := []string{}
	for adID, end := range latest {
		if !end.Before(now) {
			continue
		}
		ad, err := r.ads.GetByID(ctx, adID)
		if errors.Is(err, advertisement.ErrAdvertisementNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ad.IsActive {
			out = append(out, adID)
		}
	}
	sort.Strings(out)
	return out, nil
}
