// Package storage provides value store and run store implementations.
//
// Implementations:
//   - redis: Redis with JSON value envelopes, SETNX write-once and TTL
//   - memory: In-memory, one value store per run
package storage
