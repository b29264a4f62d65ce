package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokeSessionScript deletes KEYS[1] and returns {user_id, live}. Every script in
// this file touches only the key it declares, so the store runs on Redis Cluster; the
// per-user index is maintained with separate single-key commands.
const revokeSessionScript = `
local fields = redis.call("HMGET", KEYS[1], "user_id", "expires_at")
if not fields[1] then
  return {"", 0}
end
redis.call("DEL", KEYS[1])
if tonumber(fields[2]) <= tonumber(ARGV[1]) then
  return {fields[1], 0}
end
return {fields[1], 1}
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisStore persists sessions as Redis hashes keyed by token hash, with a per-user
// index set. Session keys carry a TTL so Redis evicts them at expiry; CleanupExpired
// prunes the index sets.
//
// A session key and its user index may live on different cluster slots. Revocation
// is atomic on the session key; index entries left behind by a partial failure point
// at missing keys and are ignored by reads and removed by CleanupExpired.
type RedisStore struct {
	redis  redis.UniversalClient
	hasher *Hasher
	prefix string
	now    func() time.Time
}

var _ Repository = (*RedisStore)(nil)

// NewStore creates a Redis-backed session repository.
func NewStore(client redis.UniversalClient, h *Hasher, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{
		redis:  client,
		hasher: h,
		prefix: o.prefix,
		now:    o.now,
	}
}

func (s *RedisStore) sessionPrefix() string {
	return s.prefix + ":s:"
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) key(id string) string {
	return s.sessionPrefix() + id
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Insert writes the session hash, its TTL and the user index entry in one MULTI/EXEC.
func (s *RedisStore) Insert(ctx context.Context, token string, params InsertParams) error {
	now := s.now()
	rec, err := NewRecord(s.hasher, token, params, now)
	if err != nil {
		return err
	}
	ttl := rec.ExpiresAt.Sub(now)

	remember := "0"
	if rec.Remember {
		remember = "1"
	}

	key := s.key(rec.ID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", rec.UserID,
			"created_at", rec.CreatedAt.UnixMilli(),
			"expires_at", rec.ExpiresAt.UnixMilli(),
			"remember", remember,
			"ip", rec.IP,
			"user_agent", rec.UserAgent,
			"rotated_from", rec.RotatedFrom,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// The session is written first so an index entry never precedes its key.
	if err := s.redis.SAdd(ctx, s.userKey(rec.UserID), rec.ID).Err(); err != nil {
		s.redis.Del(ctx, key)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	id := s.hasher.Hash(token)

	res, err := revokeSessionLua.Run(ctx, s.redis, []string{s.key(id)}, s.now().UnixMilli()).Slice()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	userID, live, err := parseRevokeResult(res)
	if err != nil {
		return false, err
	}
	if userID != "" {
		// Index cleanup is best effort once the session key is gone.
		_ = s.redis.SRem(ctx, s.userKey(userID), id).Err()
	}
	return live, nil
}

func parseRevokeResult(res []interface{}) (string, bool, error) {
	if len(res) != 2 {
		return "", false, ErrCorrupt
	}
	userID, _ := res[0].(string)
	live, _ := res[1].(int64)
	return userID, live == 1, nil
}

// RevokeAllForUser deletes every session in the user's index. Each deletion is a
// single-key command, so sessions inserted concurrently stay indexed and live.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	indexKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	nowMillis := s.now().UnixMilli()
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.Cmd, len(ids))
	for i, id := range ids {
		cmds[i] = revokeSessionLua.Eval(ctx, pipe, []string{s.key(id)}, nowMillis)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, cmd := range cmds {
		res, err := cmd.Slice()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if _, live, err := parseRevokeResult(res); err == nil && live {
			revoked++
		}
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.redis.SRem(ctx, indexKey, members...).Err(); err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return revoked, nil
}

func (s *RedisStore) GetUserID(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	vals, err := s.redis.HMGet(ctx, s.key(s.hasher.Hash(token)), "user_id", "expires_at").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return "", false, nil
	}

	userID, _ := vals[0].(string)
	rawExp, _ := vals[1].(string)
	expMillis, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil || userID == "" {
		return "", false, ErrCorrupt
	}
	if expMillis <= s.now().UnixMilli() {
		return "", false, nil
	}
	return userID, true, nil
}

// CleanupExpired walks every user index and removes entries whose session is gone,
// expired or revoked. It returns the number of entries removed.
func (s *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	var removed int
	nowMillis := s.now().UnixMilli()

	err := s.scanIndexKeys(ctx, func(ctx context.Context, key string) error {
		n, err := s.pruneIndex(ctx, key, nowMillis)
		removed += n
		return err
	})
	return removed, err
}

// scanIndexKeys calls fn for every user index key. A cluster client is scanned
// master by master since SCAN only covers the node it is sent to.
func (s *RedisStore) scanIndexKeys(ctx context.Context, fn func(context.Context, string) error) error {
	var mu sync.Mutex
	scan := func(ctx context.Context, client redis.Cmdable) error {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, s.userPrefix()+"*", 100).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			for _, key := range keys {
				mu.Lock()
				err := fn(ctx, key)
				mu.Unlock()
				if err != nil {
					return err
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	}

	if cluster, ok := s.redis.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scan(ctx, node)
		})
	}
	return scan(ctx, s.redis)
}

func (s *RedisStore) pruneIndex(ctx context.Context, indexKey string, nowMillis int64) (int, error) {
	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.key(id), "expires_at")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var (
		dead  []interface{}
		stale []string
	)
	for i, cmd := range cmds {
		exp, err := cmd.Int64()
		if err != nil || exp <= nowMillis {
			dead = append(dead, ids[i])
		}
		if err == nil && exp <= nowMillis {
			stale = append(stale, s.key(ids[i]))
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}
	if len(stale) > 0 {
		pipe := s.redis.Pipeline()
		for _, key := range stale {
			pipe.Del(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	n, err := s.redis.SRem(ctx, indexKey, dead...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

func (s *RedisStore) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.key(id), "expires_at")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowMillis := s.now().UnixMilli()
	count := 0
	for _, cmd := range cmds {
		exp, err := cmd.Int64()
		if err != nil {
			continue
		}
		if exp > nowMillis {
			count++
		}
	}
	return count, nil
}
