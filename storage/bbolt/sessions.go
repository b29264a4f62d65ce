package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/MrEthical07/goSession/session"
)

// SessionRepository implements session.Repository on a Store.
type SessionRepository struct {
	store  *Store
	hasher *session.Hasher
}

var _ session.Repository = (*SessionRepository)(nil)

func NewSessionRepository(s *Store, h *session.Hasher) *SessionRepository {
	return &SessionRepository{store: s, hasher: h}
}

func decodeRecord(data []byte) (*session.Record, error) {
	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCorrupt, err)
	}
	return &rec, nil
}

func (r *SessionRepository) Insert(ctx context.Context, token string, params session.InsertParams) error {
	rec, err := session.NewRecord(r.hasher, token, params, r.store.now())
	if err != nil {
		return err
	}
	return r.store.update(ctx, "insert session", func(tx *bbolt.Tx) error {
		if err := putJSON(tx.Bucket(sessionsBucket), rec.ID, rec); err != nil {
			return err
		}
		return tx.Bucket(sessionIndexBucket).Put(indexKey(rec.UserID, rec.ID), nil)
	})
}

func (r *SessionRepository) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	id := r.hasher.Hash(token)
	now := r.store.now()

	revoked := false
	err := r.store.update(ctx, "revoke session", func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if !rec.Live(now) {
			return nil
		}
		at := now.UTC()
		rec.RevokedAt = &at
		revoked = true
		return putJSON(b, id, rec)
	})
	return revoked, err
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	now := r.store.now()

	count := 0
	err := r.store.update(ctx, "revoke user sessions", func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		return forEachIndexed(tx.Bucket(sessionIndexBucket), userID, func(id string) error {
			data := b.Get([]byte(id))
			if data == nil {
				return nil
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if !rec.Live(now) {
				return nil
			}
			at := now.UTC()
			rec.RevokedAt = &at
			count++
			return putJSON(b, id, rec)
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SessionRepository) GetUserID(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	id := r.hasher.Hash(token)
	now := r.store.now()

	var rec *session.Record
	err := r.store.view(ctx, "get session", func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return "", false, err
	}
	if !rec.Live(now) {
		return "", false, nil
	}
	return rec.UserID, true, nil
}

// CleanupExpired deletes expired and revoked records with their index entries.
func (r *SessionRepository) CleanupExpired(ctx context.Context) (int, error) {
	now := r.store.now()

	removed := 0
	err := r.store.update(ctx, "cleanup sessions", func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		idx := tx.Bucket(sessionIndexBucket)

		var dead []*session.Record
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if !rec.Live(now) {
				dead = append(dead, rec)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, rec := range dead {
			if err := b.Delete([]byte(rec.ID)); err != nil {
				return err
			}
			if err := idx.Delete(indexKey(rec.UserID, rec.ID)); err != nil {
				return err
			}
		}
		removed = len(dead)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *SessionRepository) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	now := r.store.now()

	count := 0
	err := r.store.view(ctx, "count sessions", func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		return forEachIndexed(tx.Bucket(sessionIndexBucket), userID, func(id string) error {
			data := b.Get([]byte(id))
			if data == nil {
				return nil
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if rec.Live(now) {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
