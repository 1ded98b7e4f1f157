package deliverylog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines delivery log persistence. There is no update or delete.
type Repository interface {
	// Append stores l, filling ID and, when zero, Timestamp.
	Append(ctx context.Context, l *Log) error

	// GetByID returns ErrLogNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Log, error)

	// List returns one page ordered by timestamp desc, id, and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Log, int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs []*Log
	byID map[string]*Log
	now  func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID: make(map[string]*Log),
		now:  time.Now,
	}
}

// Append implements Repository.
func (r *InMemoryRepository) Append(_ context.Context, l *Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l.ID = uuid.NewString()
	if l.Timestamp.IsZero() {
		l.Timestamp = r.now()
	}
	l.Timestamp = l.Timestamp.UTC()

	stored := *l
	r.logs = append(r.logs, &stored)
	r.byID[l.ID] = &stored
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byID[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	c := *l
	return &c, nil
}

// List implements Repository.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Log, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Log
	for _, l := range r.logs {
		if f.Matches(l) {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID < matched[j].ID
	})

	out := []*Log{}
	if offset >= 0 && offset < len(matched) {
		end := len(matched)
		if limit > 0 && limit < end-offset {
			end = offset + limit
		}
		for _, l := range matched[offset:end] {
			c := *l
			out = append(out, &c)
		}
	}
	return out, len(matched), nil
}

// Snapshot returns copies of every entry in append order, for in-memory aggregation.
func (r *InMemoryRepository) Snapshot() []Log {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Log, len(r.logs))
	for i, l := range r.logs {
		out[i] = *l
	}
	return out
}
