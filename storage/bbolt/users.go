package bbolt

import (
	"context"
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/MrEthical07/goSession/user"
)

// UserRepository implements user.Repository on a Store. The email index
// bucket maps a normalised address to the account id.
type UserRepository struct {
	store *Store
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{store: s}
}

func getUser(tx *bbolt.Tx, id string) (*user.User, error) {
	data := tx.Bucket(usersBucket).Get([]byte(id))
	if data == nil {
		return nil, user.ErrNotFound
	}
	var u user.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u *user.User
	err := r.store.view(ctx, "get user", func(tx *bbolt.Tx) error {
		id := tx.Bucket(emailsBucket).Get([]byte(user.NormalizeEmail(email)))
		if id == nil {
			return user.ErrNotFound
		}
		var err error
		u, err = getUser(tx, string(id))
		return err
	})
	return u, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var u *user.User
	err := r.store.view(ctx, "get user", func(tx *bbolt.Tx) error {
		var err error
		u, err = getUser(tx, id)
		return err
	})
	return u, err
}

func (r *UserRepository) CreateUser(ctx context.Context, in user.NewUser) (*user.User, error) {
	u, err := user.Build(in, r.store.now())
	if err != nil {
		return nil, err
	}
	err = r.store.update(ctx, "create user", func(tx *bbolt.Tx) error {
		emails := tx.Bucket(emailsBucket)
		if emails.Get([]byte(u.Email)) != nil {
			return user.ErrDuplicateEmail
		}
		if err := putJSON(tx.Bucket(usersBucket), u.ID, u); err != nil {
			return err
		}
		return emails.Put([]byte(u.Email), []byte(u.ID))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return user.ErrInvalidUser
	}
	return r.store.update(ctx, "update password", func(tx *bbolt.Tx) error {
		u, err := getUser(tx, id)
		if err != nil {
			return err
		}
		u.PasswordHash = passwordHash
		u.UpdatedAt = r.store.now().UTC()
		return putJSON(tx.Bucket(usersBucket), u.ID, u)
	})
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	exists := false
	err := r.store.view(ctx, "email exists", func(tx *bbolt.Tx) error {
		exists = tx.Bucket(emailsBucket).Get([]byte(user.NormalizeEmail(email))) != nil
		return nil
	})
	return exists, err
}
