// Package goSession provides server-side session management for web applications:
// password authentication with timing-uniform verification, per-account lockout,
// per-source rate limiting, opaque session tokens stored only as keyed hashes,
// and request identity resolution.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([Identity], [LoginOptions], [MetricsSnapshot]). Storage contracts live in the session and
// user packages; flow orchestration, lockout, rate limiting and audit dispatch live under
// internal/ and are never exported directly.
//
// # Concurrency discipline
//
// Every repository, lockout and limiter operation is a synchronous method taking a
// context.Context. net/http serves each request on its own goroutine, so a blocking
// storage call only stalls the request that issued it. Mutations run detached from
// request cancellation and are bounded by Session.OperationTimeout instead.
//
// # What this package must NOT do
//
//   - Store or log plaintext session tokens or passwords.
//   - Reveal whether an email exists, or why a session stopped resolving.
//   - Hold process-wide mutable state. Everything hangs off an Engine.
package goSession
