// Package limiters implements the account lockout tracker.
//
// Failures are counted per account over a sliding window. Reaching the
// threshold locks the account for BaseDuration * 2^(failures-threshold),
// capped at MaxDuration. Locks expire on their own or are cleared by Reset.
//
// # Backends
//
//   - [MemoryLockout]: mutex-guarded map, idle entries swept periodically.
//   - [RedisLockout]: sorted set of failure timestamps plus a lock key, one Lua
//     script per transition. Keys carry TTLs so abandoned accounts expire.
//
// A disabled config makes every method a no-op that reports Unlocked.
//
// # What this package must NOT do
//
//   - Verify credentials or decide the response; the authenticate flow does that.
//   - Import goSession or any sibling internal package.
package limiters
