package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/sessiontest"
	"github.com/MrEthical07/goSession/user"
	"github.com/MrEthical07/goSession/user/usertest"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "gosession.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testHasher(t *testing.T) *session.Hasher {
	t.Helper()
	h, err := session.NewHasher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return h
}

func TestSessionRepositoryConformance(t *testing.T) {
	h := testHasher(t)
	sessiontest.Run(t, func(t *testing.T, now func() time.Time) session.Repository {
		return NewSessionRepository(openTestDB(t), h, WithClock(now))
	})
}

func TestUserRepositoryConformance(t *testing.T) {
	usertest.Run(t, func(t *testing.T) user.Repository {
		return NewUserRepository(openTestDB(t))
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gosession.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	require.NoError(t, err)
	repo := NewUserRepository(db)
	_, err = repo.CreateUser(ctx, user.NewUser{Email: "keep@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	exists, err := NewUserRepository(db).EmailExists(ctx, "keep@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTimestampsRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.UTC)
	repo := NewUserRepository(openTestDB(t), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, user.NewUser{Email: "ts@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.UpdatedAt.Equal(now))
}
