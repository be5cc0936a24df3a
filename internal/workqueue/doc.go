// Package workqueue implements the claim-based work distribution core.
//
// A Queue hands out exclusive, time-bounded claims over backlog items so many
// workers can compete for the same backlog without losing or duplicating
// work. Claims are implemented as a single conditional update whose predicate
// ("unclaimed, or prior claim expired") is evaluated and committed atomically,
// so at most one caller wins per item while a claim is live. A claimed item
// that is neither completed nor failed becomes reclaimable after the
// configured expiry window; that expiry is the correctness mechanism, not the
// Handle, which only warns when discarded unconsumed.
//
// Two backends ship: a SQLite store (shared across processes, WAL mode) and
// an in-memory queue for tests and single-process runs. Both are polling
// backends: the requeue flag on Fail is accepted and ignored, and failed
// items become eligible again after the filter's retry interval.
//
// The database is transient storage for in-flight work rather than a
// long-term archive. Schema changes bump the version in schema.go; operators
// clear the database to adopt the new schema.
package workqueue
