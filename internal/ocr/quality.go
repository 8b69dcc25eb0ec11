package ocr

import (
	"strings"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

// Verdict explains why a text layer was rejected.
type Verdict struct {
	Broken   bool // unresolved glyph IDs such as "(cid:3)"
	TooShort bool // fewer than constants.OCRMinTextChars after trimming
}

// NeedsOCR reports whether either heuristic tripped.
func (v Verdict) NeedsOCR() bool { return v.Broken || v.TooShort }

// Assess runs the broken-output heuristics over a direct-extraction transcript.
func Assess(text string) Verdict {
	return Verdict{
		Broken:   strings.Contains(text, constants.CIDMarker),
		TooShort: len(strings.TrimSpace(text)) < constants.OCRMinTextChars,
	}
}

// NeedsOCR is shorthand for Assess(text).NeedsOCR().
func NeedsOCR(text string) bool {
	return Assess(text).NeedsOCR()
}
