package goSession

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedEngine(t *testing.T) (*testEngine, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	te := newTestEngine(t, nil, func(b *Builder) { b.WithTracerProvider(tp) })
	return te, recorder
}

func spanNamed(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func hasAttr(s sdktrace.ReadOnlySpan, kv attribute.KeyValue) bool {
	for _, a := range s.Attributes() {
		if a == kv {
			return true
		}
	}
	return false
}

func TestSpansCoverLoginFlow(t *testing.T) {
	te, recorder := newTracedEngine(t)
	ctx := context.Background()
	id := te.register(t, testEmail)

	u, err := te.Authenticate(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	token, err := te.Login(ctx, u.ID, LoginOptions{Remember: true})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := te.ResolveIdentity(ctx, token); got.UserID() != id {
		t.Fatalf("ResolveIdentity: expected %s, got %q", id, got.UserID())
	}

	spans := recorder.Ended()
	for _, name := range []string{"goSession.Register", "goSession.Authenticate", "goSession.Login", "goSession.ResolveIdentity"} {
		if spanNamed(spans, name) == nil {
			t.Fatalf("span %q not recorded", name)
		}
	}

	userAttr := attribute.String("gosession.user_id", id)
	if s := spanNamed(spans, "goSession.Authenticate"); !hasAttr(s, userAttr) {
		t.Fatalf("authenticate span missing user attribute: %v", s.Attributes())
	}
	if s := spanNamed(spans, "goSession.Login"); !hasAttr(s, attribute.Bool("gosession.remember", true)) {
		t.Fatalf("login span missing remember attribute: %v", s.Attributes())
	}
	if s := spanNamed(spans, "goSession.ResolveIdentity"); !hasAttr(s, userAttr) {
		t.Fatalf("resolve span missing user attribute: %v", s.Attributes())
	}
}

func TestAuthenticateFailureMarksSpanError(t *testing.T) {
	te, recorder := newTracedEngine(t)
	te.register(t, testEmail)

	_, err := te.Authenticate(context.Background(), testEmail, "wrong-password-entirely")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	s := spanNamed(recorder.Ended(), "goSession.Authenticate")
	if s == nil {
		t.Fatal("authenticate span not recorded")
	}
	if s.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", s.Status())
	}
}
