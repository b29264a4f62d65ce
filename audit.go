package goSession

import (
	"io"

	"github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is an immutable security fact. It never carries credentials or tokens.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

// AuditKind enumerates security events.
type AuditKind = audit.Kind

const (
	AuditLoginSuccess        = audit.KindLoginSuccess
	AuditLoginFailure        = audit.KindLoginFailure
	AuditLogout              = audit.KindLogout
	AuditSessionCreated      = audit.KindSessionCreated
	AuditSessionRevoked      = audit.KindSessionRevoked
	AuditSessionRotated      = audit.KindSessionRotated
	AuditSessionsRevokedAll  = audit.KindSessionsRevokedAll
	AuditAccountCreated      = audit.KindAccountCreated
	AuditAccountLocked       = audit.KindAccountLocked
	AuditAccountUnlocked     = audit.KindAccountUnlocked
	AuditPasswordChanged     = audit.KindPasswordChanged
	AuditRateLimitExceeded   = audit.KindRateLimitExceeded
	AuditRedirectRejected    = audit.KindRedirectRejected
	AuditCSRFViolation       = audit.KindCSRFViolation
	AuditInfrastructureError = audit.KindInfrastructureError
)

// AuditSubjectAnonymous is the Subject of events with no known user.
const AuditSubjectAnonymous = audit.Anonymous

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink writes audit events into a buffered channel. Useful in tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink = audit.JSONWriterSink

// MultiSink fans events out to several sinks in order.
type MultiSink = audit.MultiSink

// KafkaAuditSink publishes events to a Kafka topic.
type KafkaAuditSink = audit.KafkaSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapAuditSink logs events through logger, at warn for failures and info otherwise.
func NewZapAuditSink(logger *zap.Logger) AuditSink {
	return audit.NewZapSink(logger)
}

// NewKafkaAuditSink builds a sink publishing JSON events keyed by subject to topic.
// Close the returned sink on shutdown, after Engine.Close.
func NewKafkaAuditSink(brokers []string, topic string, logger *zap.Logger) *KafkaAuditSink {
	return audit.NewKafkaSink(audit.NewKafkaWriter(brokers, topic), logger)
}
