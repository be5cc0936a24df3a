// Package ratelimit implements adaptive per-domain request throttling.
//
// Every domain carries a current delay that widens multiplicatively when the
// remote site pushes back (429, Retry-After, or a burst of 403s across
// distinct URLs) and, while backed off, narrows again after a run of
// consecutive successes.
// Domain state lives behind a Backend so multiple workers can share it; the
// in-memory backend serves single-process runs and the SQLite backend
// coordinates workers on one host. The limiter layers a token bucket on top
// of the adaptive delay so bursts never bypass the per-domain pacing.
//
// Rate limiter trouble is never allowed to stop acquisition: when the
// backend is unreachable the limiter logs a warning and falls back to the
// configured base delay.
package ratelimit
