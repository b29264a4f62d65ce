package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/MrEthical07/goSession/storage"
	"github.com/MrEthical07/goSession/user"
)

var userColumns = []string{
	"id", "email", "password_hash", "name", "role", "email_verified", "active", "created_at", "updated_at",
}

// UserRepository implements user.Repository on SQLite.
type UserRepository struct {
	db      *sql.DB
	now     func() time.Time
	builder squirrel.StatementBuilderType
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository(db *sql.DB, opts ...Option) *UserRepository {
	o := buildOptions(opts)
	return &UserRepository{db: db, now: o.now, builder: statementBuilder()}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": user.NormalizeEmail(email)})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*user.User, error) {
	query, args, err := r.builder.Select(userColumns...).From(usersTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get user sql: %w", err)
	}

	var (
		u                user.User
		created, updated int64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.EmailVerified, &u.Active, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, storage.Unavailable("get user", err)
	}
	u.CreatedAt = fromUnixNano(created)
	u.UpdatedAt = fromUnixNano(updated)
	return &u, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, in user.NewUser) (*user.User, error) {
	u, err := user.Build(in, r.now())
	if err != nil {
		return nil, err
	}

	query, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.EmailVerified, u.Active, unixNano(u.CreatedAt), unixNano(u.UpdatedAt)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, storage.Unavailable("insert user", err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return user.ErrInvalidUser
	}

	query, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("updated_at", unixNano(r.now())).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Unavailable("update password", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("update password", err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query, args, err := r.builder.Select("1").
		From(usersTable).
		Where(squirrel.Eq{"email": user.NormalizeEmail(email)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build email exists sql: %w", err)
	}

	var one int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, storage.Unavailable("email exists", err)
	}
	return true, nil
}
