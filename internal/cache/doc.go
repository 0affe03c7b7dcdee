// Package cache memoizes expensive build artifacts (rendered netlists,
// simulation inputs) keyed by library fingerprint.
//
// Keys are content hashes (ir.Fingerprint), never call order, so two
// structurally identical libraries built independently hit the same entry.
// Concurrent requests for one uncached fingerprint share a single in-flight
// computation; requests for distinct fingerprints proceed fully in
// parallel. Failed computations are never cached. Cancellation is
// per-caller: an abandoned request returns the caller's context error while
// a computation shared with other requesters runs to completion and
// populates the cache.
package cache
