package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"docket/internal/textutil"
)

// mimeExtensions maps the media types the sources actually serve. Unknown
// types fall back to .bin rather than trusting the URL.
var mimeExtensions = map[string]string{
	"application/pdf": ".pdf",
	"text/html":       ".html",
	"text/plain":      ".txt",
	"image/tiff":      ".tiff",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// ExtensionForMime returns the storage extension for a media type.
func ExtensionForMime(mimeType string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// StoragePath builds the deterministic on-disk location for a fetched
// document: <base>/<source>/<title-slug>-<id-hash><ext>. The hash suffix
// keeps documents with identical titles from colliding.
func StoragePath(baseDir string, doc Document) string {
	slug := textutil.SanitizeToken(textutil.SanitizeFileName(doc.Title))
	if len(slug) > 80 {
		slug = slug[:80]
	}
	sum := sha256.Sum256([]byte(doc.ID))
	name := slug + "-" + hex.EncodeToString(sum[:6]) + ExtensionForMime(doc.MimeType)
	return filepath.Join(baseDir, textutil.SanitizeToken(doc.SourceID), name)
}

// TextStoragePath is where extracted or recognized plain text lives for a
// document, alongside the raw file.
func TextStoragePath(baseDir string, doc Document) string {
	raw := StoragePath(baseDir, doc)
	ext := filepath.Ext(raw)
	return raw[:len(raw)-len(ext)] + ".txt"
}
