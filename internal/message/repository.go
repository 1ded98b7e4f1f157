package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines message persistence.
type Repository interface {
	// Create validates and stores m; SentAt defaults to now.
	Create(ctx context.Context, m *Message) error

	// GetByID returns ErrMessageNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Message, error)

	// List returns one page ordered by sent_at desc, id, and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Message, int, error)

	// MarkRead sets read_at to at unless it is already set.
	MarkRead(ctx context.Context, id string, at time.Time) (*Message, error)

	// Delete removes a message.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	messages map[string]*Message
	now      func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		messages: make(map[string]*Message),
		now:      time.Now,
	}
}

func copyMessage(m *Message) *Message {
	c := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, m *Message) error {
	if err := m.Normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m.ID = uuid.NewString()
	if m.SentAt.IsZero() {
		m.SentAt = r.now()
	}
	m.SentAt = m.SentAt.UTC()
	r.messages[m.ID] = copyMessage(m)
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return copyMessage(m), nil
}

// List implements Repository.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Message, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Message
	for _, m := range r.messages {
		if f.Matches(m) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SentAt.Equal(matched[j].SentAt) {
			return matched[i].SentAt.After(matched[j].SentAt)
		}
		return matched[i].ID < matched[j].ID
	})

	out := []*Message{}
	if offset >= 0 && offset < len(matched) {
		end := len(matched)
		if limit > 0 && limit < end-offset {
			end = offset + limit
		}
		for _, m := range matched[offset:end] {
			out = append(out, copyMessage(m))
		}
	}
	return out, len(matched), nil
}

// MarkRead implements Repository.
func (r *InMemoryRepository) MarkRead(_ context.Context, id string, at time.Time) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if m.ReadAt == nil {
		t := at.UTC()
		m.ReadAt = &t
	}
	return copyMessage(m), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[id]; !ok {
		return ErrMessageNotFound
	}
	delete(r.messages, id)
	return nil
}

// Snapshot returns copies of every message, for in-memory aggregation.
func (r *InMemoryRepository) Snapshot() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Message, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, *copyMessage(m))
	}
	return out
}
