package user

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines user and reset code persistence.
type Repository interface {
	// Create stores u. Returns ErrDuplicateUsername or ErrDuplicateEmail.
	Create(ctx context.Context, u *User) error

	// GetByID, GetByEmail and GetByUsername return ErrUserNotFound when absent.
	// Email and username lookups are case-insensitive.
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)

	// SetPasswordHash replaces a user's password hash.
	SetPasswordHash(ctx context.Context, id, hash string) error

	// CreateResetCode stores a new reset code.
	CreateResetCode(ctx context.Context, c *ResetCode) error

	// ConsumeResetCode marks used the latest unused, unexpired code of userID
	// equal to code. Returns ErrInvalidResetCode when there is none.
	ConsumeResetCode(ctx context.Context, userID, code string, now time.Time) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	codes []*ResetCode
	now   func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*User),
		now:   time.Now,
	}
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}

	now := r.now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	c := *u
	r.users[u.ID] = &c
	return nil
}

// UserIDs returns the ids of all users, sorted.
func (r *InMemoryRepository) UserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// GetByEmail implements Repository.
func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

// GetByUsername implements Repository.
func (r *InMemoryRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	return r.find(func(u *User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *InMemoryRepository) find(match func(*User) bool) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

// SetPasswordHash implements Repository.
func (r *InMemoryRepository) SetPasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.now().UTC()
	return nil
}

// CreateResetCode implements Repository.
func (r *InMemoryRepository) CreateResetCode(_ context.Context, c *ResetCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	stored := *c
	r.codes = append(r.codes, &stored)
	return nil
}

// ConsumeResetCode implements Repository.
func (r *InMemoryRepository) ConsumeResetCode(_ context.Context, userID, code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *ResetCode
	for _, c := range r.codes {
		if c.UserID != userID || c.Code != code || c.Used || !now.Before(c.ExpiresAt) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return ErrInvalidResetCode
	}
	latest.Used = true
	return nil
}
