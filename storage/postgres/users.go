package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/goSession/storage"
	"github.com/MrEthical07/goSession/user"
)

var userColumns = []string{
	"id", "email", "password_hash", "name", "role", "email_verified", "active", "created_at", "updated_at",
}

// UserRepository implements user.Repository backed by PostgreSQL. Email
// uniqueness is enforced by the gs_users_email_key index.
type UserRepository struct {
	exec    Executor
	now     func() time.Time
	builder squirrel.StatementBuilderType
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository builds a repository over exec.
func NewUserRepository(exec Executor, opts ...Option) *UserRepository {
	o := buildOptions(opts)
	return &UserRepository{exec: exec, now: o.now, builder: statementBuilder()}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": user.NormalizeEmail(email)})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*user.User, error) {
	sql, args, err := r.builder.Select(userColumns...).From(usersTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get user sql: %w", err)
	}

	var u user.User
	err = r.exec.QueryRow(ctx, sql, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.EmailVerified, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, storage.Unavailable("get user", err)
	}
	return &u, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, in user.NewUser) (*user.User, error) {
	u, err := user.Build(in, r.now())
	if err != nil {
		return nil, err
	}

	sql, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.EmailVerified, u.Active, u.CreatedAt, u.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
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

	sql, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return storage.Unavailable("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	sql, args, err := r.builder.Select("1").
		From(usersTable).
		Where(squirrel.Eq{"email": user.NormalizeEmail(email)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build email exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, storage.Unavailable("email exists", err)
	}
	return true, nil
}
