// Package usertest provides a conformance suite for user.Repository implementations.
package usertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goSession/user"
)

// Factory builds a fresh, empty repository.
type Factory func(t *testing.T) user.Repository

// Run exercises the repository contract against factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("CreateAndLookup", func(t *testing.T) { testCreateAndLookup(t, factory(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicate(t, factory(t)) })
	t.Run("ConcurrentCreateSameEmail", func(t *testing.T) { testConcurrentCreate(t, factory(t)) })
	t.Run("UpdatePasswordHash", func(t *testing.T) { testUpdatePassword(t, factory(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, factory(t)) })
}

func testCreateAndLookup(t *testing.T, repo user.Repository) {
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, user.NewUser{
		Email:        "  Alice@Example.COM ",
		PasswordHash: "$argon2id$placeholder",
		Name:         "Alice",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID == "" || created.ID == created.Email {
		t.Fatalf("id must be opaque and distinct from email, got %q", created.ID)
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("email not normalised: %q", created.Email)
	}
	if created.Role != user.DefaultRole || !created.Active {
		t.Fatalf("unexpected defaults: role=%q active=%v", created.Role, created.Active)
	}

	byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("GetByEmail id mismatch: %q != %q", byEmail.ID, created.ID)
	}

	byID, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.Email != "alice@example.com" || byID.PasswordHash != "$argon2id$placeholder" {
		t.Fatalf("unexpected record %+v", byID)
	}

	exists, err := repo.EmailExists(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if !exists {
		t.Fatal("expected email to exist")
	}
	exists, err = repo.EmailExists(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if exists {
		t.Fatal("unexpected email")
	}
}

func testDuplicate(t *testing.T, repo user.Repository) {
	ctx := context.Background()

	if _, err := repo.CreateUser(ctx, user.NewUser{Email: "dup@example.com", PasswordHash: "h1"}); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	_, err := repo.CreateUser(ctx, user.NewUser{Email: "DUP@example.com", PasswordHash: "h2"})
	if !errors.Is(err, user.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if _, err := repo.CreateUser(ctx, user.NewUser{Email: "", PasswordHash: "h"}); !errors.Is(err, user.ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser for empty email, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, repo user.Repository) {
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes atomic.Int64
		dupes     atomic.Int64
		others    atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.CreateUser(ctx, user.NewUser{Email: "race@example.com", PasswordHash: "h"})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, user.ErrDuplicateEmail):
				dupes.Add(1)
			default:
				others.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one successful create, got %d", successes.Load())
	}
	if dupes.Load() != workers-1 || others.Load() != 0 {
		t.Fatalf("expected %d duplicates and no other errors, got %d / %d", workers-1, dupes.Load(), others.Load())
	}
}

func testUpdatePassword(t *testing.T, repo user.Repository) {
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, user.NewUser{Email: "pw@example.com", PasswordHash: "old"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := repo.UpdatePasswordHash(ctx, u.ID, "new"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PasswordHash != "new" {
		t.Fatalf("expected updated hash, got %q", got.PasswordHash)
	}

	if err := repo.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testNotFound(t *testing.T, repo user.Repository) {
	ctx := context.Background()

	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("GetByEmail: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("GetByID: expected ErrNotFound, got %v", err)
	}
}
