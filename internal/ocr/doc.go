// Package ocr turns stored document images into plain text.
//
// The Engine interface is the boundary: the shipped engine shells out to
// tesseract, and tests substitute fakes. The stage handler wires an engine
// into the pipeline's ocr work type, writing recognized text next to the
// raw document.
package ocr
