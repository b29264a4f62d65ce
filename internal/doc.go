// Package internal groups the helpers that are private to goSession.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher plus zap, JSON and Kafka sinks)
//   - flows: pure-function orchestrators behind Authenticate, Register and ChangePassword
//   - httpapi: the reference chi router served by cmd/gosession
//   - limiters: account lockout and per-IP login limiting
//   - logger: zap construction and PII masking
//   - rate: Redis and in-process fixed-window counters
//   - security: configuration posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
