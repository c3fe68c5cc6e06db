// Package store provides the Backend Store abstraction that every other
// agentstate primitive builds on: a flat keyspace with get/set/delete and
// optional TTL, plus the atomic operations (set-if-absent, increment, set
// membership) the higher layers need. Two implementations exist: RedisStore,
// backed by a remote Redis server, and MemoryStore, an in-process fallback.
//
// The fallback provides the same contract with weaker guarantees: all
// operations are serialized through one process-wide mutex, so atomicity
// holds within a single process only. Cross-process callers sharing state
// must use the Redis backend.
package store
