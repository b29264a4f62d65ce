package session_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/sessiontest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testHasher(t *testing.T) *session.Hasher {
	t.Helper()
	h, err := session.NewHasher(testSecret)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestMemoryRepositoryContract(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T, now func() time.Time) session.Repository {
		return session.NewMemoryRepository(testHasher(t), session.WithClock(now))
	})
}

func TestRedisStoreContract(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T, now func() time.Time) session.Repository {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			rdb.Close()
			mr.Close()
		})
		return session.NewStore(rdb, testHasher(t), session.WithClock(now), session.WithKeyPrefix("test"))
	})
}

func TestRedisStoreContractClusterClient(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T, now func() time.Time) session.Repository {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{mr.Addr()}})
		t.Cleanup(func() {
			rdb.Close()
			mr.Close()
		})
		return session.NewStore(rdb, testHasher(t), session.WithClock(now), session.WithKeyPrefix("test"))
	})
}

// REDIS_CLUSTER_ADDRS (comma separated) runs the contract against a real cluster,
// where a script touching an undeclared key fails with a slot error.
func TestRedisStoreContractRealCluster(t *testing.T) {
	addrs := os.Getenv("REDIS_CLUSTER_ADDRS")
	if addrs == "" {
		t.Skip("REDIS_CLUSTER_ADDRS not set")
	}
	sessiontest.Run(t, func(t *testing.T, now func() time.Time) session.Repository {
		rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: strings.Split(addrs, ",")})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			t.Skipf("cannot connect to Redis cluster: %v", err)
		}
		t.Cleanup(func() { rdb.Close() })
		prefix := "test" + strings.ReplaceAll(t.Name(), "/", "-")
		return session.NewStore(rdb, testHasher(t), session.WithClock(now), session.WithKeyPrefix(prefix))
	})
}
