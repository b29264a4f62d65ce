package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h, err := NewHasher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, h, WithKeyPrefix("gs")), mr, rdb
}

func TestRedisStoreKeysNeverContainPlaintext(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	tok, _ := NewToken()
	if err := store.Insert(ctx, tok, InsertParams{UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for _, key := range mr.Keys() {
		if strings.Contains(key, tok) {
			t.Fatalf("plaintext token in key %q", key)
		}
	}
	if !mr.Exists("gs:s:" + store.hasher.Hash(tok)) {
		t.Fatal("expected hashed session key")
	}
}

func TestRedisStoreSetsTTL(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	tok, _ := NewToken()
	if err := store.Insert(ctx, tok, InsertParams{UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ttl := mr.TTL("gs:s:" + store.hasher.Hash(tok))
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, err := store.GetUserID(ctx, tok); err != nil || ok {
		t.Fatalf("evicted session resolved: ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	mr.Close()

	_, _, err := store.GetUserID(context.Background(), "anything")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestRedisStoreScriptsDeclareEveryKey(t *testing.T) {
	call := regexp.MustCompile(`redis\.call\("[A-Z]+",\s*([^,)]+)`)
	matches := call.FindAllStringSubmatch(revokeSessionScript, -1)
	if len(matches) == 0 {
		t.Fatal("no redis.call found in script")
	}
	for _, m := range matches {
		if strings.TrimSpace(m[1]) != "KEYS[1]" {
			t.Fatalf("script addresses %q instead of a declared key", m[1])
		}
	}
}

func TestRedisStoreRevokeMaintainsUserIndex(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	keep, _ := NewToken()
	drop, _ := NewToken()
	for _, tok := range []string{keep, drop} {
		if err := store.Insert(ctx, tok, InsertParams{UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ok, err := store.Revoke(ctx, drop)
	if err != nil || !ok {
		t.Fatalf("Revoke: ok=%v err=%v", ok, err)
	}
	members, err := mr.Members("gs:u:u-1")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0] != store.hasher.Hash(keep) {
		t.Fatalf("index members = %v, want only the live session", members)
	}
	if mr.Exists("gs:s:" + store.hasher.Hash(drop)) {
		t.Fatal("revoked session key still present")
	}
}

func TestRedisStoreToleratesStaleIndexEntries(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	live, _ := NewToken()
	gone, _ := NewToken()
	for _, tok := range []string{live, gone} {
		if err := store.Insert(ctx, tok, InsertParams{UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	// Simulates a revocation whose index update never landed.
	mr.Del("gs:s:" + store.hasher.Hash(gone))

	if n, err := store.ActiveSessionCount(ctx, "u-1"); err != nil || n != 1 {
		t.Fatalf("ActiveSessionCount = %d, %v; want 1", n, err)
	}
	removed, err := store.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	n, err := store.RevokeAllForUser(ctx, "u-1")
	if err != nil || n != 1 {
		t.Fatalf("RevokeAllForUser = %d, %v; want 1", n, err)
	}
	if mr.Exists("gs:u:u-1") {
		t.Fatal("emptied index key still present")
	}
}
