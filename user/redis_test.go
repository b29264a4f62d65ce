package user

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

func TestRedisRepositoryKeysShareClusterSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRedisRepository(rdb, WithKeyPrefix("test"))

	u, err := repo.CreateUser(context.Background(), NewUser{Email: "a@example.com", PasswordHash: "$argon2id$stub"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	userKey, emailKey := repo.userKey(u.ID), repo.emailKey(u.Email)
	if !mr.Exists(userKey) || !mr.Exists(emailKey) {
		t.Fatalf("expected %q and %q to be written", userKey, emailKey)
	}
	if hashTag(userKey) != hashTag(emailKey) {
		t.Fatalf("keys %q and %q land on different cluster slots", userKey, emailKey)
	}
}
