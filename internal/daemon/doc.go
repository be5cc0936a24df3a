// Package daemon hosts the long-running docketd process: a single-instance
// lock, cron-scheduled pipeline passes over the backlog, and a status
// surface for the CLI.
package daemon
