// Package password implements the credential store (Argon2id hashing and
// verification) and password/email input policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsRehash] reports hashes produced with weaker parameters so the caller
// can re-hash on the next successful login.
//
// # Error classification
//
// [Argon2.Verify] returns false for a mismatch and for a malformed hash. Only
// infrastructure failures surface as errors ([ErrHashUnavailable]).
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goSession package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
