package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
)

// SessionRepository implements session.Repository backed by PostgreSQL.
//
// Revocation stamps revoked_at; CleanupExpired deletes revoked and expired rows.
type SessionRepository struct {
	exec    Executor
	hasher  *session.Hasher
	now     func() time.Time
	builder squirrel.StatementBuilderType
}

var _ session.Repository = (*SessionRepository)(nil)

// NewSessionRepository builds a repository over exec. Tokens are hashed with h
// before they reach the database.
func NewSessionRepository(exec Executor, h *session.Hasher, opts ...Option) *SessionRepository {
	o := buildOptions(opts)
	return &SessionRepository{
		exec:    exec,
		hasher:  h,
		now:     o.now,
		builder: statementBuilder(),
	}
}

func (r *SessionRepository) Insert(ctx context.Context, token string, params session.InsertParams) error {
	rec, err := session.NewRecord(r.hasher, token, params, r.now())
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert(sessionsTable).
		Columns("id", "user_id", "created_at", "expires_at", "remember", "ip", "user_agent", "rotated_from").
		Values(rec.ID, rec.UserID, rec.CreatedAt, rec.ExpiresAt, rec.Remember, rec.IP, rec.UserAgent, rec.RotatedFrom).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return storage.Unavailable("insert session", err)
	}
	return nil
}

func (r *SessionRepository) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	now := r.now().UTC()

	sql, args, err := r.builder.Update(sessionsTable).
		Set("revoked_at", now).
		Where(squirrel.Eq{"id": r.hasher.Hash(token), "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": now}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke session sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, storage.Unavailable("revoke session", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	now := r.now().UTC()

	sql, args, err := r.builder.Update(sessionsTable).
		Set("revoked_at", now).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user sessions sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storage.Unavailable("revoke user sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *SessionRepository) GetUserID(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	sql, args, err := r.builder.Select("user_id").
		From(sessionsTable).
		Where(squirrel.Eq{"id": r.hasher.Hash(token), "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": r.now().UTC()}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build get session sql: %w", err)
	}

	var userID string
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, storage.Unavailable("get session", err)
	}
	return userID, true, nil
}

func (r *SessionRepository) CleanupExpired(ctx context.Context) (int, error) {
	sql, args, err := r.builder.Delete(sessionsTable).
		Where(squirrel.Or{
			squirrel.LtOrEq{"expires_at": r.now().UTC()},
			squirrel.NotEq{"revoked_at": nil},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storage.Unavailable("cleanup sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *SessionRepository) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	sql, args, err := r.builder.Select("COUNT(*)").
		From(sessionsTable).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": r.now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count sessions sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, storage.Unavailable("count sessions", err)
	}
	return int(count), nil
}
