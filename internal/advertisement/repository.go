package advertisement

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines advertisement persistence.
type Repository interface {
	// Create validates and stores a; new advertisements are active.
	Create(ctx context.Context, a *Advertisement) error

	// GetByID returns ErrAdvertisementNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Advertisement, error)

	// Update applies a validated partial update.
	Update(ctx context.Context, id string, u *Update) (*Advertisement, error)

	// Delete removes an advertisement. Callers check references first.
	Delete(ctx context.Context, id string) error

	// List returns one page ordered by created_at desc, id, and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Advertisement, int, error)

	// SetMedia records the object key and media type of an uploaded attachment.
	SetMedia(ctx context.Context, id, key string, mediaType MediaType) (*Advertisement, error)

	// Deactivate sets is_active=false on the given ids and returns how many
	// were active before. Unknown ids are ignored.
	Deactivate(ctx context.Context, ids []string, at time.Time) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	ads    map[string]*Advertisement
	logger *slog.Logger
	now    func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository(logger *slog.Logger) *InMemoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryRepository{
		ads:    make(map[string]*Advertisement),
		logger: logger,
		now:    time.Now,
	}
}

func copyAd(a *Advertisement) *Advertisement {
	c := *a
	return &c
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, a *Advertisement) error {
	if err := a.Normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	a.ID = uuid.NewString()
	a.IsActive = true
	a.CreatedAt = now
	a.UpdatedAt = now
	r.ads[a.ID] = copyAd(a)
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Advertisement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.ads[id]
	if !ok {
		return nil, ErrAdvertisementNotFound
	}
	return copyAd(a), nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(_ context.Context, id string, u *Update) (*Advertisement, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.ads[id]
	if !ok {
		return nil, ErrAdvertisementNotFound
	}
	u.Apply(a)
	a.UpdatedAt = r.now().UTC()
	return copyAd(a), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ads[id]; !ok {
		return ErrAdvertisementNotFound
	}
	delete(r.ads, id)
	return nil
}

// List implements Repository.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Advertisement, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Advertisement
	for _, a := range r.ads {
		if f.Active != nil && a.IsActive != *f.Active {
			continue
		}
		if !MatchesSearch(a, f.Search) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	out := []*Advertisement{}
	if offset >= 0 && offset < len(matched) {
		end := len(matched)
		if limit > 0 && limit < end-offset {
			end = offset + limit
		}
		for _, a := range matched[offset:end] {
			out = append(out, copyAd(a))
		}
	}
	return out, len(matched), nil
}

// MatchesSearch reports whether search is a case-insensitive substring of the
// title or content. An empty search matches everything.
func MatchesSearch(a *Advertisement, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Title), search) ||
		strings.Contains(strings.ToLower(a.Content), search)
}

// SetMedia implements Repository.
func (r *InMemoryRepository) SetMedia(_ context.Context, id, key string, mediaType MediaType) (*Advertisement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.ads[id]
	if !ok {
		return nil, ErrAdvertisementNotFound
	}
	a.MediaKey = &key
	a.MediaType = mediaType
	a.UpdatedAt = r.now().UTC()
	return copyAd(a), nil
}

// Deactivate implements Repository.
func (r *InMemoryRepository) Deactivate(_ context.Context, ids []string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, id := range ids {
		a, ok := r.ads[id]
		if !ok || !a.IsActive {
			continue
		}
		a.IsActive = false
		a.UpdatedAt = at.UTC()
		changed++
	}
	if changed > 0 {
		r.logger.Info("advertisements deactivated", slog.Int("count", changed))
	}
	return changed, nil
}

// Snapshot returns copies of every advertisement, for in-memory aggregation.
func (r *InMemoryRepository) Snapshot() []Advertisement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Advertisement, 0, len(r.ads))
	for _, a := range r.ads {
		out = append(out, *a)
	}
	return out
}
