// Web augmenter: URL extraction and web search triggers.
//
// Three independent triggers may fire for the same turn:
//  1. URL extraction: the input contains absolute URLs AND an
//     inspect/analyze-this-link hint phrase
//  2. explicit search: the caller enabled web search for the turn
//  3. realtime heuristic: the input contains a realtime keyword
//
// The extraction and search sub-triggers run concurrently. A failed or
// empty collaborator call contributes an empty block; nothing raises
// past this boundary.

package augment

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/web"
)

// Fixed context block headers. The model is prompted against these
// exact markers, so they must not vary.
const (
	SearchHeader  = "[WEB SEARCH CONTEXT]"
	ExtractHeader = "[EXTRACTED URL CONTENT]"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// WebResult is the web augmenter's contribution to a turn.
type WebResult struct {
	SearchText  string // "" when the search trigger did not fire or failed
	Source      string // provider name, for citation display
	RawResult   string // unwrapped search result text
	ExtractText string // "" when the extraction trigger did not fire or failed
}

// Web evaluates the search and extraction triggers for a turn.
type Web struct {
	searcher  web.Searcher
	extractor web.Extractor
	triggers  config.TriggerConfig
	logger    log.Logger
}

// NewWeb creates the web augmenter.
func NewWeb(searcher web.Searcher, extractor web.Extractor, triggers config.TriggerConfig, logger log.Logger) *Web {
	return &Web{
		searcher:  searcher,
		extractor: extractor,
		triggers:  triggers,
		logger:    logger,
	}
}

// Augment evaluates all triggers against the user text. Sub-triggers
// that fire run concurrently; each degrades to an empty contribution on
// failure.
func (w *Web) Augment(ctx context.Context, userText string, searchEnabled bool) WebResult {
	var result WebResult
	var wg sync.WaitGroup

	urls := urlPattern.FindAllString(userText, -1)
	if len(urls) > 0 && w.hasHintPhrase(userText) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.ExtractText = w.runExtraction(ctx, urls)
		}()
	}

	if searchEnabled || w.matchesRealtime(userText) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.SearchText, result.Source, result.RawResult = w.SearchWith(ctx, userText)
		}()
	}

	wg.Wait()
	return result
}

// SearchWith performs a search with an explicit query, bypassing the
// trigger heuristics. Used directly by the fallback runner. Returns the
// wrapped context block, the provider name, and the raw result text;
// all empty when the search failed or returned nothing usable.
func (w *Web) SearchWith(ctx context.Context, query string) (searchText, source, raw string) {
	res, err := w.searcher.Search(ctx, query)
	if err != nil {
		w.logger.Warn("web search degraded to empty", "error", err)
		return "", "", ""
	}
	if !res.Success || strings.TrimSpace(res.Result) == "" {
		return "", "", ""
	}
	return SearchHeader + "\n" + res.Result, res.Source, res.Result
}

func (w *Web) runExtraction(ctx context.Context, urls []string) string {
	res, err := w.extractor.Extract(ctx, urls)
	if err != nil {
		w.logger.Warn("url extraction degraded to empty", "error", err)
		return ""
	}
	if !res.Success || strings.TrimSpace(res.Result) == "" {
		return ""
	}
	return ExtractHeader + "\n" + res.Result
}

// hasHintPhrase reports whether the text contains any configured
// inspect/analyze-this-link phrase.
func (w *Web) hasHintPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range w.triggers.URLHintPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// matchesRealtime reports whether any realtime keyword appears as a
// whole word. Token matching avoids false positives like "now" inside
// "know".
func (w *Web) matchesRealtime(text string) bool {
	tokens := tokenize(text)
	for _, keyword := range w.triggers.RealtimeKeywords {
		lower := strings.ToLower(keyword)
		if strings.ContainsAny(lower, " ") {
			if strings.Contains(strings.ToLower(text), lower) {
				return true
			}
			continue
		}
		if _, ok := tokens[lower]; ok {
			return true
		}
	}
	return false
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		tokens[field] = struct{}{}
	}
	return tokens
}
