package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Kind enumerates security events.
type Kind string

const (
	KindLoginSuccess        Kind = "login_success"
	KindLoginFailure        Kind = "login_failure"
	KindLogout              Kind = "logout"
	KindSessionCreated      Kind = "session_created"
	KindSessionRevoked      Kind = "session_revoked"
	KindSessionRotated      Kind = "session_rotated"
	KindSessionsRevokedAll  Kind = "sessions_revoked_all"
	KindAccountCreated      Kind = "account_created"
	KindAccountLocked       Kind = "account_locked"
	KindAccountUnlocked     Kind = "account_unlocked"
	KindPasswordChanged     Kind = "password_changed"
	KindRateLimitExceeded   Kind = "rate_limit_exceeded"
	KindRedirectRejected    Kind = "redirect_rejected"
	KindCSRFViolation       Kind = "csrf_violation"
	KindInfrastructureError Kind = "infrastructure_error"
)

// Anonymous is the Subject of events with no known user.
const Anonymous = "anonymous"

// Event is an immutable security fact. It never carries credentials or tokens.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      Kind              `json:"kind"`
	Subject   string            `json:"subject"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
