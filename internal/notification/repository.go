package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines notification persistence.
type Repository interface {
	// Fanout creates one unread notification per recipient and returns how
	// many were created.
	Fanout(ctx context.Context, b Broadcast) (int, error)

	// List returns one page of a user's notifications ordered by created_at
	// desc, id, and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, int, error)

	// MarkRead marks one of userID's notifications read. The first read time
	// is kept.
	MarkRead(ctx context.Context, userID, id string, at time.Time) (*Notification, error)

	// MarkAllRead marks every unread notification of userID and returns how
	// many changed.
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
}

// Recipients lists the users a fan-out reaches.
type Recipients interface {
	UserIDs(ctx context.Context) ([]string, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	recipients    Recipients
}

// NewInMemoryRepository creates an empty repository that fans out to
// recipients.
func NewInMemoryRepository(recipients Recipients) *InMemoryRepository {
	return &InMemoryRepository{
		notifications: make(map[string]*Notification),
		recipients:    recipients,
	}
}

func copyNotification(n *Notification) *Notification {
	c := *n
	if n.AdvertisementID != nil {
		id := *n.AdvertisementID
		c.AdvertisementID = &id
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// Fanout implements Repository.
func (r *InMemoryRepository) Fanout(ctx context.Context, b Broadcast) (int, error) {
	userIDs, err := r.recipients.UserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recipients: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := 0
	for _, userID := range userIDs {
		if userID == b.ExcludeUserID {
			continue
		}
		n := &Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			Message:   b.Message,
			CreatedAt: b.CreatedAt.UTC(),
		}
		if b.AdvertisementID != "" {
			adID := b.AdvertisementID
			n.AdvertisementID = &adID
		}
		r.notifications[n.ID] = n
		created++
	}
	return created, nil
}

// List implements Repository.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Notification
	for _, n := range r.notifications {
		if f.Matches(n) {
			matched = append(matched, n)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	out := []*Notification{}
	if offset >= 0 && offset < len(matched) {
		end := len(matched)
		if limit > 0 && limit < end-offset {
			end = offset + limit
		}
		for _, n := range matched[offset:end] {
			out = append(out, copyNotification(n))
		}
	}
	return out, len(matched), nil
}

// MarkRead implements Repository.
func (r *InMemoryRepository) MarkRead(_ context.Context, userID, id string, at time.Time) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	n.markRead(at)
	return copyNotification(n), nil
}

// MarkAllRead implements Repository.
func (r *InMemoryRepository) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, n := range r.notifications {
		if n.UserID == userID && n.markRead(at) {
			changed++
		}
	}
	return changed, nil
}
