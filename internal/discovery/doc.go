// Package discovery finds documents at remote sources and retrieves them.
//
// A Source lists documents worth acquiring; the enqueuer folds those lists
// into the fetch backlog. A Fetcher downloads one document, paced by the
// per-domain rate limiter, and stores the raw bytes under the document
// directory.
package discovery
