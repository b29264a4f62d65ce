package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
)

// SessionRepository implements session.Repository on SQLite.
type SessionRepository struct {
	db      *sql.DB
	hasher  *session.Hasher
	now     func() time.Time
	builder squirrel.StatementBuilderType
}

var _ session.Repository = (*SessionRepository)(nil)

func NewSessionRepository(db *sql.DB, h *session.Hasher, opts ...Option) *SessionRepository {
	o := buildOptions(opts)
	return &SessionRepository{db: db, hasher: h, now: o.now, builder: statementBuilder()}
}

func (r *SessionRepository) Insert(ctx context.Context, token string, params session.InsertParams) error {
	rec, err := session.NewRecord(r.hasher, token, params, r.now())
	if err != nil {
		return err
	}

	query, args, err := r.builder.Insert(sessionsTable).
		Columns("id", "user_id", "created_at", "expires_at", "remember", "ip", "user_agent", "rotated_from").
		Values(rec.ID, rec.UserID, unixNano(rec.CreatedAt), unixNano(rec.ExpiresAt), rec.Remember, rec.IP, rec.UserAgent, rec.RotatedFrom).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Unavailable("insert session", err)
	}
	return nil
}

func (r *SessionRepository) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	now := unixNano(r.now())

	n, err := r.update(ctx, "revoke session", r.builder.Update(sessionsTable).
		Set("revoked_at", now).
		Where(squirrel.Eq{"id": r.hasher.Hash(token), "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": now}))
	return n == 1, err
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	now := unixNano(r.now())

	n, err := r.update(ctx, "revoke user sessions", r.builder.Update(sessionsTable).
		Set("revoked_at", now).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": now}))
	return int(n), err
}

func (r *SessionRepository) update(ctx context.Context, op string, b squirrel.UpdateBuilder) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s sql: %w", op, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Unavailable(op, err)
	}
	return n, nil
}

func (r *SessionRepository) GetUserID(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	query, args, err := r.builder.Select("user_id").
		From(sessionsTable).
		Where(squirrel.Eq{"id": r.hasher.Hash(token), "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": unixNano(r.now())}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build get session sql: %w", err)
	}

	var userID string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, storage.Unavailable("get session", err)
	}
	return userID, true, nil
}

func (r *SessionRepository) CleanupExpired(ctx context.Context) (int, error) {
	query, args, err := r.builder.Delete(sessionsTable).
		Where(squirrel.Or{
			squirrel.LtOrEq{"expires_at": unixNano(r.now())},
			squirrel.NotEq{"revoked_at": nil},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup sql: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Unavailable("cleanup sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Unavailable("cleanup sessions", err)
	}
	return int(n), nil
}

func (r *SessionRepository) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	query, args, err := r.builder.Select("COUNT(*)").
		From(sessionsTable).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": unixNano(r.now())}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count sessions sql: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, storage.Unavailable("count sessions", err)
	}
	return count, nil
}
