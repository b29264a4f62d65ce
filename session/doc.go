// Package session defines the session repository contract and its in-memory and
// Redis backends.
//
// # Token handling
//
// Clients hold an opaque token produced by [NewToken]. Repositories never persist
// that token: every backend derives the storage key with a keyed [Hasher]
// (HMAC-SHA256 over the session secret) before touching storage, and the same
// applies to the rotated-from back-reference.
//
// # Concurrency
//
// All [Repository] methods are synchronous and safe for concurrent use. A
// completed [Repository.Revoke] is linearizable with later
// [Repository.GetUserID] calls for the same token.
//
// # What this package must NOT do
//
//   - Import goSession or middleware (no upward imports).
//   - Log or return plaintext tokens.
//   - Decide authentication policy (lockout, rate limits, redirects).
package session
