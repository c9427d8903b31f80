// In-band search directive grammar.
//
// The model may answer a turn with a single-line command asking the
// orchestrator to search the web on its behalf. The grammar is a closed
// set of label patterns evaluated in a fixed priority order; a match is
// a typed Directive, never a bare string.

package turn

import "strings"

// Directive is a search command extracted from a finished answer.
type Directive struct {
	Query string
}

// directivePatterns are tried in order per line; first match wins.
var directivePatterns = []string{
	"SEARCH:",
	"BUSCAR:",
	"BÚSQUEDA:",
	"WEB SEARCH:",
}

// fallbackUnavailable replaces the answer when the model asked for a
// search but the search returned nothing usable. The raw directive text
// must never reach the user.
const fallbackUnavailable = "I tried to look this up on the web but could not retrieve " +
	"any results right now. Please try again in a moment."

// DetectDirective scans a finished answer for a search directive. Lines
// are scanned top to bottom and patterns tried in order; the first match
// wins. The label and trailing punctuation are stripped from the query.
func DetectDirective(answer string) (Directive, bool) {
	for _, line := range strings.Split(answer, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, pattern := range directivePatterns {
			if len(trimmed) <= len(pattern) {
				continue
			}
			if !strings.EqualFold(trimmed[:len(pattern)], pattern) {
				continue
			}
			query := strings.TrimSpace(trimmed[len(pattern):])
			query = strings.TrimRight(query, ".!?,;:\"'¡¿")
			query = strings.TrimSpace(query)
			if query == "" {
				continue
			}
			return Directive{Query: query}, true
		}
	}
	return Directive{}, false
}
