// Package services holds cross-cutting helpers shared by stage and pipeline
// code, primarily context annotation for item keys, stage names, remote
// domains, and correlation IDs. The logging package reads these annotations
// to tag log lines automatically.
package services
