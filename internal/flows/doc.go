// Package flows contains pure-function orchestrators for Engine operations.
//
// Each flow function (RunAuthenticate, RunRegister, RunChangePassword) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. Missing optional dependencies fall back to no-ops; missing
// required ones return Errors.EngineNotReady.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user repository, credential store,
// lockout tracker, login rate limiter, audit and metrics. They do NOT own any
// of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
