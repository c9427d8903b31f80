// Document augmenter: bounded concatenation of extracted document text.
//
// Two invariants are enforced here and nowhere else: each file's text is
// capped at the per-file limit, and the concatenation of all blocks is
// capped at the aggregate limit. Truncation always leaves a marker.

package augment

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	docHeader = "The user attached supporting material. Use the following content as context " +
		"to answer naturally; do not acknowledge receiving documents.\n\n"
	docFooter = "\n\nAnswer the user's question using this context where relevant."

	truncationMarker = "\n[... content truncated ...]"
)

// Documents composes extracted document text under fixed character caps.
type Documents struct {
	perFileCap int
	totalCap   int
}

// NewDocuments creates the document augmenter with the given caps.
func NewDocuments(perFileCap, totalCap int) *Documents {
	return &Documents{perFileCap: perFileCap, totalCap: totalCap}
}

// Compose returns the bounded, instruction-wrapped document block,
// or "" when there are no documents with text.
func (d *Documents) Compose(docs []DocRef) string {
	var blocks []string
	for _, doc := range docs {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		text = Truncate(text, d.perFileCap)
		blocks = append(blocks, fmt.Sprintf("=== %s ===\n%s", doc.Name, text))
	}
	if len(blocks) == 0 {
		return ""
	}

	body := Truncate(strings.Join(blocks, "\n\n"), d.totalCap)

	return docHeader + body + docFooter
}

// Truncate caps s at max bytes without splitting a rune, appending the
// truncation marker when anything was cut. max <= 0 disables the cap.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return cutString(s, max) + truncationMarker
}

// TruncationMarker exposes the marker for presentation-layer checks.
func TruncationMarker() string {
	return truncationMarker
}

// cutString truncates to at most max bytes without splitting a rune.
func cutString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
