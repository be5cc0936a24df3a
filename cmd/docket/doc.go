// Package main hosts the docket CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into one-shot
// pipeline passes, queue maintenance operations, rate limiter inspection, and
// configuration scaffolding. Commands operate directly on the shared SQLite
// databases; WAL mode keeps that safe alongside a running docketd.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
