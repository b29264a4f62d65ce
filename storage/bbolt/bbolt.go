// Package bbolt implements session.Repository and user.Repository on a single
// bbolt file. Records are JSON values; every mutation runs in one read-write
// transaction, which bbolt serialises, so check-and-set operations are atomic.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/MrEthical07/goSession/storage"
)

var (
	sessionsBucket     = []byte("sessions")
	sessionIndexBucket = []byte("sessions_by_user")
	usersBucket        = []byte("users")
	emailsBucket       = []byte("users_by_email")
)

// Store owns the bbolt database shared by both repositories.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps db and creates the buckets.
func NewStore(db *bbolt.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, sessionIndexBucket, usersBucket, emailsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens the database file at path and returns a Store over it.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) view(ctx context.Context, op string, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable(op, err)
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, op string, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable(op, err)
	}
	return s.db.Update(fn)
}

func indexKey(owner, id string) []byte {
	key := make([]byte, 0, len(owner)+1+len(id))
	key = append(key, owner...)
	key = append(key, 0)
	return append(key, id...)
}

func indexPrefix(owner string) []byte {
	return append([]byte(owner), 0)
}

// forEachIndexed calls fn with every id indexed under owner.
func forEachIndexed(b *bbolt.Bucket, owner string, fn func(id string) error) error {
	prefix := indexPrefix(owner)
	c := b.Cursor()
	var ids []string
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		ids = append(ids, string(k[len(prefix):]))
	}
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
