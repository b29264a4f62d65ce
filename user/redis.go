package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const createUserScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
return 1
`

const updatePasswordScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`

var (
	createUserLua     = redis.NewScript(createUserScript)
	updatePasswordLua = redis.NewScript(updatePasswordScript)
)

// RedisRepository stores accounts as JSON documents with an email → id index.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Repository = (*RedisRepository)(nil)

func NewRedisRepository(client redis.UniversalClient, opts ...Option) *RedisRepository {
	o := buildOptions(opts)
	return &RedisRepository{redis: client, prefix: o.prefix, now: o.now}
}

// Documents and the email index share one hash tag: CreateUser claims an email and
// writes a document in a single script, which on a cluster requires one slot.
func (r *RedisRepository) userKey(id string) string {
	return r.prefix + ":{users}:user:" + id
}

func (r *RedisRepository) emailKey(email string) string {
	return r.prefix + ":{users}:email:" + email
}

func (r *RedisRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	id, err := r.redis.Get(ctx, r.emailKey(NormalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*User, error) {
	raw, err := r.redis.Get(ctx, r.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &u, nil
}

// CreateUser claims the email index key and writes the document in one script, so
// concurrent registrations for one email cannot both succeed.
func (r *RedisRepository) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	u, err := Build(in, r.now())
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}

	created, err := createUserLua.Run(ctx, r.redis,
		[]string{r.emailKey(u.Email), r.userKey(u.ID)},
		u.ID, doc,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return nil, ErrDuplicateEmail
	}
	return u, nil
}

func (r *RedisRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return ErrInvalidUser
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = r.now().UTC()

	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}
	updated, err := updatePasswordLua.Run(ctx, r.redis, []string{r.userKey(id)}, doc).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.emailKey(NormalizeEmail(email))).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}
