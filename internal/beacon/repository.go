package beacon

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines beacon persistence.
type Repository interface {
	// Create validates and stores b, filling ID and timestamps.
	// Returns ErrDuplicateName when the name is taken.
	Create(ctx context.Context, b *Beacon) error

	// GetByID returns ErrBeaconNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Beacon, error)

	// Update applies a validated partial update.
	Update(ctx context.Context, id string, u *Update) (*Beacon, error)

	// Delete removes a beacon. Callers check references first; the Postgres
	// implementation also maps a foreign key violation to ErrInUse.
	Delete(ctx context.Context, id string) error

	// List returns one page ordered by created_at desc, id, and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Beacon, int, error)

	// UpdateTelemetry stores battery and signal readings and sets last_seen_at.
	UpdateTelemetry(ctx context.Context, id string, t Telemetry, at time.Time) (*Beacon, error)

	// Locations lists beacons that have both coordinates.
	Locations(ctx context.Context) ([]Location, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; returned beacons are copies.
type InMemoryRepository struct {
	mu      sync.RWMutex
	beacons map[string]*Beacon
	names   map[string]string // name -> id
	logger  *slog.Logger
	now     func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository(logger *slog.Logger) *InMemoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryRepository{
		beacons: make(map[string]*Beacon),
		names:   make(map[string]string),
		logger:  logger,
		now:     time.Now,
	}
}

func copyBeacon(b *Beacon) *Beacon {
	c := *b
	return &c
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, b *Beacon) error {
	if err := b.Normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[b.Name]; taken {
		return ErrDuplicateName
	}

	now := r.now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now

	r.beacons[b.ID] = copyBeacon(b)
	r.names[b.Name] = b.ID

	r.logger.Debug("beacon created", slog.String("beacon_id", b.ID), slog.String("name", b.Name))
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Beacon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.beacons[id]
	if !ok {
		return nil, ErrBeaconNotFound
	}
	return copyBeacon(b), nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(_ context.Context, id string, u *Update) (*Beacon, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[id]
	if !ok {
		return nil, ErrBeaconNotFound
	}
	if u.Name != nil && *u.Name != b.Name {
		if _, taken := r.names[*u.Name]; taken {
			return nil, ErrDuplicateName
		}
		delete(r.names, b.Name)
		r.names[*u.Name] = id
	}

	u.Apply(b)
	b.UpdatedAt = r.now().UTC()
	return copyBeacon(b), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[id]
	if !ok {
		return ErrBeaconNotFound
	}
	delete(r.names, b.Name)
	delete(r.beacons, id)
	return nil
}

// List implements Repository.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Beacon, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []*Beacon
	for _, b := range r.beacons {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.LocationName), search) {
			continue
		}
		matched = append(matched, b)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return pageOf(matched, limit, offset), total, nil
}

func pageOf(all []*Beacon, limit, offset int) []*Beacon {
	out := []*Beacon{}
	if offset < 0 || offset >= len(all) {
		return out
	}
	end := len(all)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	for _, b := range all[offset:end] {
		out = append(out, copyBeacon(b))
	}
	return out
}

// UpdateTelemetry implements Repository.
func (r *InMemoryRepository) UpdateTelemetry(_ context.Context, id string, t Telemetry, at time.Time) (*Beacon, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[id]
	if !ok {
		return nil, ErrBeaconNotFound
	}
	battery, signal := *t.BatteryStatus, *t.SignalStrength
	seen := at.UTC()
	b.BatteryStatus = &battery
	b.SignalStrength = &signal
	b.LastSeenAt = &seen
	b.UpdatedAt = seen
	return copyBeacon(b), nil
}

// Locations implements Repository.
func (r *InMemoryRepository) Locations(_ context.Context) ([]Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Location{}
	for _, b := range r.beacons {
		if b.Latitude == nil || b.Longitude == nil {
			continue
		}
		out = append(out, Location{
			ID:           b.ID,
			Name:         b.Name,
			LocationName: b.LocationName,
			Latitude:     *b.Latitude,
			Longitude:    *b.Longitude,
			Status:       b.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Snapshot returns copies of every beacon, for in-memory aggregation.
func (r *InMemoryRepository) Snapshot() []Beacon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Beacon, 0, len(r.beacons))
	for _, b := range r.beacons {
		out = append(out, *b)
	}
	return out
}
