package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type reportedEvent struct {
	Kind     goSession.AuditKind
	Subject  string
	Metadata map[string]string
}

type fakeReporter struct {
	mu     sync.Mutex
	events []reportedEvent
}

func (f *fakeReporter) ReportSecurityEvent(_ context.Context, kind goSession.AuditKind, subject string, metadata map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, reportedEvent{Kind: kind, Subject: subject, Metadata: metadata})
}

func (f *fakeReporter) kinds() []goSession.AuditKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]goSession.AuditKind, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Kind)
	}
	return out
}

func testEngine(t *testing.T) *goSession.Engine {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Session.SecretKey = testSecret
	cfg.Password.Time = 2
	cfg.Password.Parallelism = 1
	cfg.Redirect.AllowedHosts = []string{"app.example"}

	engine, err := goSession.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withIdentity(r *http.Request, userID string) *http.Request {
	if userID == "" {
		return r
	}
	// The guard only checks presence of a user.
	id := goSession.Identity{User: newUser(userID)}
	return r.WithContext(goSession.WithIdentity(r.Context(), id))
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}
