// Package turn runs one conversational turn end to end: validate the
// input, assemble augmented context, stream the chat completion, run the
// single permitted search fallback round, and persist the exchange.
package turn

import (
	"strings"

	"github.com/richinex/oraculo/augment"
	"github.com/richinex/oraculo/llm"
)

// Compose builds the outbound message list for a turn: the prior
// conversation followed by the final user message with its context
// blocks appended. Concatenation order is fixed (user text, vision,
// search, extraction, documents) and must not vary run to run. Prior
// messages are never mutated.
//
// Each vision/search/extraction block is independently capped at
// perBlock characters (the document block arrives already budgeted by
// its augmenter) and the assembled message is capped at total. The user
// text leads, so the global cap trims context, never the question.
func Compose(history []llm.ChatMessage, userText, visionText, searchText, extractText, docText string, perBlock, total int) []llm.ChatMessage {
	parts := make([]string, 0, 5)
	if strings.TrimSpace(userText) != "" {
		parts = append(parts, userText)
	}
	for _, block := range []string{visionText, searchText, extractText} {
		if strings.TrimSpace(block) != "" {
			parts = append(parts, augment.Truncate(block, perBlock))
		}
	}
	if strings.TrimSpace(docText) != "" {
		parts = append(parts, docText)
	}
	content := augment.Truncate(strings.Join(parts, "\n\n"), total)

	out := make([]llm.ChatMessage, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, llm.UserMessage(content))
	return out
}
