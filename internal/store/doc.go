// Package store keeps audit packs durable and findable: one directory
// per audit id under a root, plus a SQLite index holding a denormalized
// row per manifest for fast listing and search.
//
// The pack directories are the source of truth. The index is derived
// and disposable: Reindex rebuilds it from disk, and prune treats index
// deletion as best-effort so a wedged index can never block retention.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// The schema version lives in PRAGMA user_version. Opening an index
// written by a newer schema fails with SchemaVersionError rather than
// guessing at columns; migrations only ever run upward.
//
// Manifest loads go through a TTL cache. Packs are immutable once
// committed, so cached manifests only need invalidating on Delete and
// CopyIn.
package store
