package ocr

import "context"

// Result is the outcome of recognizing one document.
type Result struct {
	// Text is the recognized plain text.
	Text string
	// Pages is the page count when the engine reports one; zero otherwise.
	Pages int
}

// Engine recognizes text in a stored document file.
type Engine interface {
	// Name identifies the engine in logs and health output.
	Name() string

	// Available reports whether the engine can run on this host.
	Available() bool

	// Recognize extracts text from the file at path.
	Recognize(ctx context.Context, path string) (Result, error)
}
