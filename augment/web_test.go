package augment

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/web"
)

type fakeSearcher struct {
	calls  atomic.Int32
	result web.SearchResult
	err    error
}

func (s *fakeSearcher) Search(ctx context.Context, query string) (web.SearchResult, error) {
	s.calls.Add(1)
	return s.result, s.err
}

type fakeExtractor struct {
	calls  atomic.Int32
	result web.ExtractResult
	err    error
}

func (e *fakeExtractor) Extract(ctx context.Context, urls []string) (web.ExtractResult, error) {
	e.calls.Add(1)
	return e.result, e.err
}

func testTriggers() config.TriggerConfig {
	return config.TriggerConfig{
		RealtimeKeywords: []string{"hoy", "tiempo", "weather", "now"},
		URLHintPhrases:   []string{"analiza", "resume", "summarize"},
	}
}

func newTestWeb(s web.Searcher, e web.Extractor) *Web {
	return NewWeb(s, e, testTriggers(), log.NewNop())
}

func TestAugmentNoTriggers(t *testing.T) {
	searcher := &fakeSearcher{}
	extractor := &fakeExtractor{}
	w := newTestWeb(searcher, extractor)

	result := w.Augment(context.Background(), "Hola", false)

	if result.SearchText != "" || result.ExtractText != "" {
		t.Errorf("expected empty result, got %+v", result)
	}
	if searcher.calls.Load() != 0 || extractor.calls.Load() != 0 {
		t.Error("no collaborator calls expected when no trigger fires")
	}
}

func TestAugmentRealtimeHeuristic(t *testing.T) {
	searcher := &fakeSearcher{result: web.SearchResult{Success: true, Result: "sunny", Source: "prov"}}
	w := newTestWeb(searcher, &fakeExtractor{})

	result := w.Augment(context.Background(), "¿qué tiempo hace hoy en Madrid?", false)

	if searcher.calls.Load() != 1 {
		t.Fatalf("expected exactly one search call, got %d", searcher.calls.Load())
	}
	if !strings.HasPrefix(result.SearchText, SearchHeader) {
		t.Errorf("expected search text under %s, got %q", SearchHeader, result.SearchText)
	}
	if result.Source != "prov" || result.RawResult != "sunny" {
		t.Errorf("expected provenance recorded, got %+v", result)
	}
}

func TestAugmentRealtimeWholeWordOnly(t *testing.T) {
	searcher := &fakeSearcher{result: web.SearchResult{Success: true, Result: "x"}}
	w := newTestWeb(searcher, &fakeExtractor{})

	// "know" contains "now" but must not trigger.
	w.Augment(context.Background(), "Do you know Go?", false)

	if searcher.calls.Load() != 0 {
		t.Errorf("substring of a word must not trigger the heuristic, got %d calls", searcher.calls.Load())
	}
}

func TestAugmentExplicitSearch(t *testing.T) {
	searcher := &fakeSearcher{result: web.SearchResult{Success: true, Result: "r", Source: "s"}}
	w := newTestWeb(searcher, &fakeExtractor{})

	result := w.Augment(context.Background(), "tell me about Go", true)

	if searcher.calls.Load() != 1 {
		t.Errorf("expected search when explicitly enabled, got %d calls", searcher.calls.Load())
	}
	if result.SearchText == "" {
		t.Error("expected search text")
	}
}

func TestAugmentURLExtractionNeedsHint(t *testing.T) {
	extractor := &fakeExtractor{result: web.ExtractResult{Success: true, Result: "page text", URLCount: 1}}
	w := newTestWeb(&fakeSearcher{}, extractor)

	// URL without a hint phrase: no extraction.
	w.Augment(context.Background(), "mira https://example.com/post", false)
	if extractor.calls.Load() != 0 {
		t.Fatalf("expected no extraction without hint phrase, got %d calls", extractor.calls.Load())
	}

	// URL plus hint phrase: extraction fires.
	result := w.Augment(context.Background(), "resume https://example.com/post por favor", false)
	if extractor.calls.Load() != 1 {
		t.Fatalf("expected one extraction call, got %d", extractor.calls.Load())
	}
	if !strings.HasPrefix(result.ExtractText, ExtractHeader) {
		t.Errorf("expected extract text under %s, got %q", ExtractHeader, result.ExtractText)
	}
}

func TestAugmentBothTriggersSameTurn(t *testing.T) {
	searcher := &fakeSearcher{result: web.SearchResult{Success: true, Result: "sr", Source: "p"}}
	extractor := &fakeExtractor{result: web.ExtractResult{Success: true, Result: "er", URLCount: 1}}
	w := newTestWeb(searcher, extractor)

	result := w.Augment(context.Background(), "analiza https://example.com y dime qué tiempo hace hoy", false)

	if result.SearchText == "" || result.ExtractText == "" {
		t.Errorf("expected both contributions, got %+v", result)
	}
}

func TestAugmentFailuresDegradeToEmpty(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("search down")}
	extractor := &fakeExtractor{err: errors.New("extract down")}
	w := newTestWeb(searcher, extractor)

	result := w.Augment(context.Background(), "analiza https://example.com qué tiempo hace hoy", false)

	if result.SearchText != "" || result.ExtractText != "" || result.Source != "" {
		t.Errorf("failures must degrade to empty contributions, got %+v", result)
	}
}

func TestSearchWithBypassesHeuristics(t *testing.T) {
	searcher := &fakeSearcher{result: web.SearchResult{Success: true, Result: "answer", Source: "p"}}
	w := newTestWeb(searcher, &fakeExtractor{})

	searchText, source, raw := w.SearchWith(context.Background(), "precio del oro hoy")

	if searcher.calls.Load() != 1 {
		t.Fatalf("expected one search call, got %d", searcher.calls.Load())
	}
	if !strings.HasPrefix(searchText, SearchHeader) {
		t.Errorf("expected wrapped search text, got %q", searchText)
	}
	if source != "p" || raw != "answer" {
		t.Errorf("expected provenance, got source=%q raw=%q", source, raw)
	}
}

func TestSearchWithUnsuccessfulResult(t *testing.T) {
	searcher := &fakeSearcher{result: web.SearchResult{Success: false}}
	w := newTestWeb(searcher, &fakeExtractor{})

	searchText, source, raw := w.SearchWith(context.Background(), "anything")
	if searchText != "" || source != "" || raw != "" {
		t.Error("unsuccessful search must contribute nothing")
	}
}
