package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in process memory. It is the reference backend
// and suits tests and single-instance deployments.
type MemoryRepository struct {
	hasher *Hasher
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]*Record
	byUser  map[string]map[string]struct{}
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(h *Hasher, opts ...Option) *MemoryRepository {
	o := buildOptions(opts)
	return &MemoryRepository{
		hasher:  h,
		now:     o.now,
		records: make(map[string]*Record),
		byUser:  make(map[string]map[string]struct{}),
	}
}

func (m *MemoryRepository) Insert(ctx context.Context, token string, params InsertParams) error {
	rec, err := NewRecord(m.hasher, token, params, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = rec
	ids, ok := m.byUser[rec.UserID]
	if !ok {
		ids = make(map[string]struct{})
		m.byUser[rec.UserID] = ids
	}
	ids[rec.ID] = struct{}{}
	return nil
}

func (m *MemoryRepository) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	id := m.hasher.Hash(token)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || !rec.Live(now) {
		return false, nil
	}
	revokedAt := now.UTC()
	rec.RevokedAt = &revokedAt
	return true, nil
}

func (m *MemoryRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id := range m.byUser[userID] {
		rec := m.records[id]
		if !rec.Live(now) {
			continue
		}
		revokedAt := now.UTC()
		rec.RevokedAt = &revokedAt
		count++
	}
	return count, nil
}

func (m *MemoryRepository) GetUserID(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	id := m.hasher.Hash(token)
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok || !rec.Live(now) {
		return "", false, nil
	}
	return rec.UserID, true, nil
}

// CleanupExpired drops expired and revoked records.
func (m *MemoryRepository) CleanupExpired(ctx context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.records {
		if rec.Live(now) {
			continue
		}
		delete(m.records, id)
		if ids, ok := m.byUser[rec.UserID]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(m.byUser, rec.UserID)
			}
		}
		removed++
	}
	return removed, nil
}

func (m *MemoryRepository) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for id := range m.byUser[userID] {
		if m.records[id].Live(now) {
			count++
		}
	}
	return count, nil
}

// Len reports how many records are held, live or not.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
