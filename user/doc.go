// Package user defines the account repository contract used by goSession, the
// User model, and in-memory and Redis backends.
//
// Identifiers are random UUIDs and never derived from the email address. Emails are
// normalised with [NormalizeEmail] before every lookup and write, and every backend
// enforces email uniqueness atomically, reporting [ErrDuplicateEmail] when a
// concurrent registration wins the race.
package user
