package deps

// DefaultRequirements lists the external tools the pipeline may invoke.
// Only the OCR engine is mandatory; text extraction falls back to the OCR
// path when pdftotext is missing.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{
			Name:        "Tesseract",
			Command:     "tesseract",
			Description: "OCR engine for scanned documents",
		},
		{
			Name:        "pdftotext",
			Command:     "pdftotext",
			Description: "Fast text extraction from born-digital PDFs",
			Optional:    true,
		},
	}
}
