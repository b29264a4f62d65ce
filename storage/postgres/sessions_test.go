package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockSessions(t *testing.T) (pgxmock.PgxPoolIface, *SessionRepository, *session.Hasher) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	h, err := session.NewHasher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return mock, NewSessionRepository(mock, h, WithClock(func() time.Time { return fixedNow })), h
}

func TestSessionRepository_InsertStoresHashOnly(t *testing.T) {
	mock, repo, h := newMockSessions(t)

	mock.ExpectExec(`INSERT INTO gs_sessions`).
		WithArgs(h.Hash("tok-1"), "user-1", pgxmock.AnyArg(), pgxmock.AnyArg(), true, "203.0.113.7", "ua", h.Hash("tok-0")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Insert(context.Background(), "tok-1", session.InsertParams{
		UserID:      "user-1",
		ExpiresAt:   fixedNow.Add(time.Hour),
		Remember:    true,
		IP:          "203.0.113.7",
		UserAgent:   "ua",
		RotatedFrom: "tok-0",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_InsertRejectsInvalid(t *testing.T) {
	_, repo, _ := newMockSessions(t)

	err := repo.Insert(context.Background(), "tok", session.InsertParams{UserID: "u", ExpiresAt: fixedNow})
	if !errors.Is(err, session.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessionRepository_Revoke(t *testing.T) {
	mock, repo, h := newMockSessions(t)

	mock.ExpectExec(`UPDATE gs_sessions SET revoked_at = \$1 WHERE id = \$2 AND revoked_at IS NULL AND expires_at > \$3`).
		WithArgs(pgxmock.AnyArg(), h.Hash("tok"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE gs_sessions`).
		WithArgs(pgxmock.AnyArg(), h.Hash("tok"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.Revoke(context.Background(), "tok")
	if err != nil || !ok {
		t.Fatalf("first Revoke = %v, %v", ok, err)
	}
	ok, err = repo.Revoke(context.Background(), "tok")
	if err != nil || ok {
		t.Fatalf("second Revoke = %v, %v; want false, nil", ok, err)
	}

	ok, err = repo.Revoke(context.Background(), "")
	if err != nil || ok {
		t.Fatalf("empty token Revoke = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetUserID(t *testing.T) {
	mock, repo, h := newMockSessions(t)

	mock.ExpectQuery(`SELECT user_id FROM gs_sessions WHERE id = \$1 AND revoked_at IS NULL AND expires_at > \$2`).
		WithArgs(h.Hash("live"), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectQuery(`SELECT user_id FROM gs_sessions`).
		WithArgs(h.Hash("gone"), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))

	id, ok, err := repo.GetUserID(context.Background(), "live")
	if err != nil || !ok || id != "user-1" {
		t.Fatalf("GetUserID(live) = %q, %v, %v", id, ok, err)
	}
	id, ok, err = repo.GetUserID(context.Background(), "gone")
	if err != nil || ok || id != "" {
		t.Fatalf("GetUserID(gone) = %q, %v, %v", id, ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_DriverErrorIsUnavailable(t *testing.T) {
	mock, repo, _ := newMockSessions(t)

	mock.ExpectQuery(`SELECT user_id FROM gs_sessions`).
		WillReturnError(errors.New("connection reset"))

	_, _, err := repo.GetUserID(context.Background(), "tok")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSessionRepository_RevokeAllAndCleanup(t *testing.T) {
	mock, repo, _ := newMockSessions(t)

	mock.ExpectExec(`UPDATE gs_sessions SET revoked_at = \$1 WHERE revoked_at IS NULL AND user_id = \$2 AND expires_at > \$3`).
		WithArgs(pgxmock.AnyArg(), "user-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`DELETE FROM gs_sessions WHERE \(expires_at <= \$1 OR revoked_at IS NOT NULL\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM gs_sessions`).
		WithArgs("user-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))

	n, err := repo.RevokeAllForUser(context.Background(), "user-1")
	if err != nil || n != 3 {
		t.Fatalf("RevokeAllForUser = %d, %v", n, err)
	}
	n, err = repo.CleanupExpired(context.Background())
	if err != nil || n != 5 {
		t.Fatalf("CleanupExpired = %d, %v", n, err)
	}
	n, err = repo.ActiveSessionCount(context.Background(), "user-1")
	if err != nil || n != 0 {
		t.Fatalf("ActiveSessionCount = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
