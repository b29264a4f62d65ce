package user

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository stores accounts in process memory.
type MemoryRepository struct {
	now func() time.Time

	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(opts ...Option) *MemoryRepository {
	o := buildOptions(opts)
	return &MemoryRepository{
		now:     o.now,
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (m *MemoryRepository) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	u, err := Build(in, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[u.Email]; taken {
		return nil, ErrDuplicateEmail
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return u.Clone(), nil
}

func (m *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return ErrInvalidUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byEmail[NormalizeEmail(email)]
	return ok, nil
}

// Put stores u as-is, replacing any account with the same id. Intended for seeding.
func (m *MemoryRepository) Put(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := u.Clone()
	c.Email = NormalizeEmail(c.Email)
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c.ID
}
