// Package storage holds what the durable session and account backends share.
//
// The backends themselves live in subpackages: postgres (pgx and squirrel),
// sqlite (modernc.org/sqlite through database/sql) and bbolt (an embedded
// key/value file). Each implements session.Repository and user.Repository and
// passes the sessiontest and usertest suites.
package storage

import (
	"errors"
	"fmt"
)

// ErrUnavailable wraps transport and driver failures from a durable backend.
var ErrUnavailable = errors.New("storage unavailable")

// Unavailable wraps err so callers can match it with errors.Is(err, ErrUnavailable).
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
