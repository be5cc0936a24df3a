package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"docket/internal/language"
)

// TesseractEngine runs the tesseract binary on document images. Output goes
// to stdout so no scratch files are left behind.
type TesseractEngine struct {
	command   string
	languages []string
}

// NewTesseractEngine builds an engine around the given binary, defaulting
// to "tesseract" on PATH. Languages accept ISO 639 codes or English names
// and are mapped to the three-letter codes tesseract expects.
func NewTesseractEngine(command string, languages ...string) *TesseractEngine {
	if strings.TrimSpace(command) == "" {
		command = "tesseract"
	}
	var codes []string
	for _, lang := range language.NormalizeList(languages) {
		codes = append(codes, language.ToISO3(lang))
	}
	return &TesseractEngine{command: command, languages: codes}
}

var _ Engine = (*TesseractEngine)(nil)

func (e *TesseractEngine) Name() string { return "tesseract" }

// Available reports whether the binary resolves on PATH.
func (e *TesseractEngine) Available() bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

// Recognize shells out to tesseract with stdout output.
func (e *TesseractEngine) Recognize(ctx context.Context, path string) (Result, error) {
	args := []string{path, "stdout"}
	if len(e.languages) > 0 {
		args = append(args, "-l", strings.Join(e.languages, "+"))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return Result{}, fmt.Errorf("tesseract %s: %w: %s", path, err, detail)
		}
		return Result{}, fmt.Errorf("tesseract %s: %w", path, err)
	}
	return Result{Text: stdout.String()}, nil
}
