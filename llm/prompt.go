// System prompt assembly: a fixed persona/identity template plus
// tone, detail and language directives from configuration.

package llm

import (
	"fmt"
	"strings"

	"github.com/richinex/oraculo/config"
)

// noSearchDirective is the loop-breaker appended for fallback rounds.
// It tells the model it already received search results so the fallback
// never recurses.
const noSearchDirective = "You have already received web search results for this question. " +
	"Answer with the information provided. Do NOT ask to search again and do NOT " +
	"emit any SEARCH directive."

// SystemPrompt builds the system prompt from the persona template and
// the configured style directives.
func SystemPrompt(cfg config.PromptConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a helpful conversational assistant.\n", cfg.AssistantName)
	b.WriteString("You can reason over text, described images, document excerpts and web search context supplied in the conversation.\n")
	b.WriteString("When supporting context is present, use it naturally; never mention that you received documents or search results unless the user asks.\n")
	b.WriteString("If you need fresh information from the web to answer and none was provided, reply with a single line: SEARCH: <query>\n")

	fmt.Fprintf(&b, "Tone: %s.\n", cfg.Tone)
	fmt.Fprintf(&b, "Level of detail: %s.\n", cfg.Detail)
	fmt.Fprintf(&b, "Language: %s.\n", cfg.Language)

	return b.String()
}

// AmendNoSearch returns the prompt with the fallback loop-breaker appended.
func AmendNoSearch(prompt string) string {
	return prompt + "\n" + noSearchDirective
}
