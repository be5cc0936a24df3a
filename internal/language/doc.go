// Package language normalizes language identifiers for OCR.
//
// Configuration accepts languages as ISO 639-1 codes, ISO 639-2 codes, or
// English names; tesseract wants ISO 639-2. All mapping between those forms
// lives here.
package language
