// Package documents defines the document model flowing through the
// acquisition pipeline: what a document is, which work types it passes
// through, and how titles and storage paths are normalized.
package documents
