// Package store provides SQLite-backed durable storage for build
// artifacts.
//
// Artifacts are content-addressed: the 64-hex library fingerprint is the
// primary key, and a write for an existing fingerprint is a no-op (ON
// CONFLICT DO NOTHING), never an overwrite. Session id and creation time
// ride along as audit metadata and are excluded from identity.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Fingerprints are computed by ir.Fingerprint using RFC 8785 canonical
// JSON and SHA-256 with domain separation.
package store
