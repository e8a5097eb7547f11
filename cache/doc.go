// Package cache stores the auth service's public keys per project so that
// tokens can be verified locally across a key rotation.
//
// A project maps key ids to CachedKey entries. An entry is served only while
// both its cache expiry and the key's own expiry are in the future; expired
// entries are dropped when read or by CleanupExpired. When a new project
// arrives and the cache already holds Policy.MaxSize projects, the project
// inserted first is evicted.
//
// MemoryKeyCache keeps everything in process. RedisKeyCache shares the same
// semantics across processes. Janitor runs CleanupExpired on an interval.
package cache
