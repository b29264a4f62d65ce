// Package rate provides per-source request throttling.
//
// # Window semantics
//
//   - [RedisWindow]: fixed window. INCR plus PEXPIRE on the first hit, executed
//     as one script so a counter never outlives its window. Key: <prefix>:rl:<key>.
//   - [TokenBucket]: in-process token bucket on golang.org/x/time/rate. Refills
//     Requests per Window, capacity Burst.
//
// Both return a [Result] rather than an error for a rejection; errors are reserved
// for backend failures.
//
// # What this package must NOT do
//
//   - Know about HTTP or accounts. Keys are opaque (an IP, a route, a user id).
//   - Be imported outside the goSession module.
package rate
