// Package engine orchestrates the inference pipeline: it ingests evidence
// and timeline events, recomputes a user's trait scores, life contexts, and
// behavioral patterns from the full stored timeline, and answers queries
// over the results.
//
// Recomputation is deterministic over the stored timeline, so re-running it
// is always safe: evidence upserts by natural key, pattern observations
// deduplicate by pair, and every mutable record moves through a
// compare-and-swap upsert. Concurrent recomputes for the same user are
// serialized by a per-user lock; cross-user work proceeds in parallel.
package engine
