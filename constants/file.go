package constants

import (
	"path/filepath"
	"strings"
)

// PDFMimeType is the only content type accepted for uploads.
const PDFMimeType = "application/pdf"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDFPath reports whether path has a .pdf extension.
func IsPDFPath(path string) bool {
	return NormalizeExt(filepath.Ext(path)) == "pdf"
}

// LooksLikePDF checks the %PDF- magic header.
func LooksLikePDF(head []byte) bool {
	return len(head) >= 5 && string(head[:5]) == "%PDF-"
}
