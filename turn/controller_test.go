package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/oraculo/augment"
	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/llm"
	"github.com/richinex/oraculo/storage"
	"github.com/richinex/oraculo/vision"
	"github.com/richinex/oraculo/web"
)

// scriptedStreamer plays back one scripted response per Stream call and
// records every request it sees.
type scriptedStreamer struct {
	mu     sync.Mutex
	calls  []llm.Request
	script []streamStep
}

type streamStep struct {
	deltas []string
	err    error
}

func (s *scriptedStreamer) Stream(ctx context.Context, req llm.Request, chunks chan<- string) (string, error) {
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if idx >= len(s.script) {
		return "", errors.New("unexpected stream call")
	}
	step := s.script[idx]

	var b strings.Builder
	for _, d := range step.deltas {
		select {
		case chunks <- d:
			b.WriteString(d)
		case <-ctx.Done():
			return b.String(), ctx.Err()
		}
	}
	return b.String(), step.err
}

func (s *scriptedStreamer) requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// scriptedSearcher records queries and returns a fixed result.
type scriptedSearcher struct {
	mu      sync.Mutex
	queries []string
	result  web.SearchResult
	err     error
}

func (s *scriptedSearcher) Search(ctx context.Context, query string) (web.SearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	return s.result, s.err
}

func (s *scriptedSearcher) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// stubExtractor never finds anything.
type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, urls []string) (web.ExtractResult, error) {
	return web.ExtractResult{}, nil
}

// forbiddenDescriber fails the test if the vision collaborator is reached.
type forbiddenDescriber struct{ t *testing.T }

func (d forbiddenDescriber) Describe(ctx context.Context, dataURI, prompt string) (string, error) {
	d.t.Error("vision collaborator must not be called")
	return "", nil
}

func testLimits(minInterval time.Duration) config.LimitConfig {
	return config.LimitConfig{
		MaxDocCharsFile:  40_000,
		MaxDocCharsTotal: 80_000,
		MaxBlockChars:    20_000,
		MaxContextChars:  120_000,
		FlushInterval:    5 * time.Millisecond,
		MinTurnInterval:  minInterval,
	}
}

func newTestController(t *testing.T, streamer llm.Streamer, searcher web.Searcher, triggers config.TriggerConfig, events Events, minInterval time.Duration, store storage.Store) *Controller {
	t.Helper()
	logger := log.NewNop()
	return NewController(Options{
		Streamer:  streamer,
		Vision:    augment.NewVision(forbiddenDescriber{t}, vision.OptimizeOptions{MaxDim: 1280, MaxBytes: 1 << 20}, time.Second, logger),
		Documents: augment.NewDocuments(40_000, 80_000),
		Web:       augment.NewWeb(searcher, stubExtractor{}, triggers, logger),
		Store:     store,
		Prompt:    config.PromptConfig{AssistantName: "Oraculo", Tone: "friendly", Detail: "balanced", Language: "match the user's language"},
		Limits:    testLimits(minInterval),
		Events:    events,
		Logger:    logger,
	})
}

func TestRunRejectsEmptyInput(t *testing.T) {
	streamer := &scriptedStreamer{}
	searcher := &scriptedSearcher{}
	c := newTestController(t, streamer, searcher, config.TriggerConfig{}, Events{}, 0, nil)

	_, err := c.Run(context.Background(), Input{Text: "   "})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if len(streamer.requests()) != 0 || len(searcher.seen()) != 0 {
		t.Error("validation failure must not reach the network")
	}
}

func TestRunMinimumInterval(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{{deltas: []string{"hola"}}}}
	c := newTestController(t, streamer, &scriptedSearcher{}, config.TriggerConfig{}, Events{}, time.Hour, nil)

	if _, err := c.Run(context.Background(), Input{Text: "Hola"}); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	_, err := c.Run(context.Background(), Input{Text: "Hola otra vez"})
	if !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}
}

func TestRunPlainTurn(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{
		{deltas: []string{"¡Hola! ", "¿Cómo ", "estás?"}},
	}}
	searcher := &scriptedSearcher{}
	rec := &snapshotRecorder{}
	c := newTestController(t, streamer, searcher,
		config.TriggerConfig{RealtimeKeywords: []string{"hoy", "tiempo"}},
		Events{OnDelta: rec.record}, 0, nil)

	result, err := c.Run(context.Background(), Input{Text: "Hola"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Text != "¡Hola! ¿Cómo estás?" {
		t.Errorf("final text must equal the deltas in order, got %q", result.Text)
	}
	if len(searcher.seen()) != 0 {
		t.Error("no search trigger fired; searcher must not be called")
	}

	reqs := streamer.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected exactly one chat call, got %d", len(reqs))
	}
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	if last.Content != "Hola" {
		t.Errorf("plain input must pass through unaugmented, got %q", last.Content)
	}
	if reqs[0].System == "" {
		t.Error("expected a system prompt on the request")
	}

	snapshots := rec.all()
	if len(snapshots) == 0 {
		t.Fatal("expected at least the final delta snapshot")
	}
	if snapshots[len(snapshots)-1] != result.Text {
		t.Errorf("last snapshot must equal the final text, got %q", snapshots[len(snapshots)-1])
	}
}

func TestRunRealtimeHeuristicFiresSearch(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{
		{deltas: []string{"Hace sol y 25 grados."}},
	}}
	searcher := &scriptedSearcher{result: web.SearchResult{Success: true, Result: "Soleado, 25 grados en Madrid", Source: "brave"}}

	var gotSource, gotRaw string
	c := newTestController(t, streamer, searcher,
		config.TriggerConfig{RealtimeKeywords: []string{"hoy", "tiempo"}},
		Events{OnSource: func(source, raw string) { gotSource, gotRaw = source, raw }}, 0, nil)

	result, err := c.Run(context.Background(), Input{Text: "¿qué tiempo hace hoy en Madrid?"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := searcher.seen(); len(got) != 1 {
		t.Fatalf("expected exactly one search call, got %d", len(got))
	}

	reqs := streamer.requests()
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	if !strings.Contains(last.Content, augment.SearchHeader) {
		t.Errorf("composed message must carry the search block, got %q", last.Content)
	}
	if !strings.Contains(last.Content, "Soleado, 25 grados en Madrid") {
		t.Error("search result text missing from the composed message")
	}

	if gotSource != "brave" || gotRaw != "Soleado, 25 grados en Madrid" {
		t.Errorf("source callback got (%q, %q)", gotSource, gotRaw)
	}
	if result.Source != "brave" {
		t.Errorf("result must carry the provider, got %q", result.Source)
	}
}

func TestRunFallbackRound(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{
		{deltas: []string{"SEARCH: precio del oro hoy"}},
		{deltas: []string{"El oro cotiza a ", "2.400 dólares la onza."}},
	}}
	searcher := &scriptedSearcher{result: web.SearchResult{Success: true, Result: "Oro: 2.400 USD/oz", Source: "brave"}}
	rec := &snapshotRecorder{}
	c := newTestController(t, streamer, searcher, config.TriggerConfig{},
		Events{OnDelta: rec.record}, 0, nil)

	result, err := c.Run(context.Background(), Input{Text: "¿cuánto vale el oro?"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := searcher.seen(); len(got) != 1 || got[0] != "precio del oro hoy" {
		t.Fatalf("expected one search with the extracted query, got %v", got)
	}

	reqs := streamer.requests()
	if len(reqs) != 2 {
		t.Fatalf("expected exactly one extra chat call, got %d total", len(reqs))
	}
	if !strings.Contains(reqs[1].System, "Do NOT ask to search again") {
		t.Error("fallback round must use the amended system prompt")
	}
	second := reqs[1].Messages[len(reqs[1].Messages)-1]
	if !strings.Contains(second.Content, augment.SearchHeader) || !strings.Contains(second.Content, "Oro: 2.400 USD/oz") {
		t.Errorf("fallback message must carry the new search block, got %q", second.Content)
	}

	if result.Text != "El oro cotiza a 2.400 dólares la onza." {
		t.Errorf("delivered text must be the second call's output, got %q", result.Text)
	}
	if !result.FallbackUsed {
		t.Error("expected FallbackUsed")
	}

	snapshots := rec.all()
	final := snapshots[len(snapshots)-1]
	if strings.Contains(final, "SEARCH:") {
		t.Errorf("raw directive must never be the final snapshot, got %q", final)
	}
	if final != result.Text {
		t.Errorf("final snapshot %q != delivered text %q", final, result.Text)
	}
}

func TestRunFallbackWithUnusableSearch(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{
		{deltas: []string{"SEARCH: algo imposible"}},
	}}
	searcher := &scriptedSearcher{result: web.SearchResult{Success: false}}
	rec := &snapshotRecorder{}
	c := newTestController(t, streamer, searcher, config.TriggerConfig{},
		Events{OnDelta: rec.record}, 0, nil)

	result, err := c.Run(context.Background(), Input{Text: "dime algo"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(streamer.requests()) != 1 {
		t.Error("an unusable fallback search must not trigger a second chat call")
	}
	if result.Text != fallbackUnavailable {
		t.Errorf("expected the fixed explanatory message, got %q", result.Text)
	}
	snapshots := rec.all()
	if snapshots[len(snapshots)-1] != fallbackUnavailable {
		t.Error("final snapshot must be the explanatory message, not the directive")
	}
}

func TestRunNoFallbackAfterSearchTurn(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{
		{deltas: []string{"SEARCH: otra consulta"}},
	}}
	searcher := &scriptedSearcher{result: web.SearchResult{Success: true, Result: "resultados previos", Source: "brave"}}
	c := newTestController(t, streamer, searcher,
		config.TriggerConfig{RealtimeKeywords: []string{"hoy"}}, Events{}, 0, nil)

	result, err := c.Run(context.Background(), Input{Text: "¿qué pasa hoy?"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := searcher.seen(); len(got) != 1 {
		t.Errorf("a turn that already searched must not search again, got %v", got)
	}
	if len(streamer.requests()) != 1 {
		t.Error("a directive after a search round must not trigger another chat call")
	}
	if result.FallbackUsed {
		t.Error("fallback must be scoped to turns without search context")
	}
}

func TestRunDocumentBudgetBoundsAssembly(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{{deltas: []string{"respuesta"}}}}
	logger := log.NewNop()
	limits := testLimits(0)
	limits.DocumentTimeout = 10 * time.Millisecond
	c := NewController(Options{
		Streamer:  streamer,
		Vision:    augment.NewVision(forbiddenDescriber{t}, vision.OptimizeOptions{MaxDim: 1280, MaxBytes: 1 << 20}, time.Second, logger),
		Documents: augment.NewDocuments(40_000, 80_000),
		Web:       augment.NewWeb(hangingSearcher{}, stubExtractor{}, config.TriggerConfig{RealtimeKeywords: []string{"hoy"}}, logger),
		Prompt:    config.PromptConfig{AssistantName: "Oraculo"},
		Limits:    limits,
		Logger:    logger,
	})

	result, err := c.Run(context.Background(), Input{
		Text:      "¿qué pasa hoy?",
		Documents: []augment.DocRef{{Name: "notas.txt", Text: "apuntes de la reunión"}},
	})
	if err != nil {
		t.Fatalf("a stalled augmenter within the document budget must not fail the turn: %v", err)
	}

	last := streamer.requests()[0].Messages
	content := last[len(last)-1].Content
	if strings.Contains(content, augment.SearchHeader) {
		t.Error("a search that ran out of budget must contribute nothing")
	}
	if !strings.Contains(content, "apuntes de la reunión") {
		t.Error("document context must survive a degraded search")
	}
	if result.Text != "respuesta" {
		t.Errorf("unexpected answer: %q", result.Text)
	}
}

func TestRunSingleActiveTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	streamer := &gatedStreamer{started: started, release: release}
	c := newTestController(t, streamer, &scriptedSearcher{}, config.TriggerConfig{}, Events{}, 0, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), Input{Text: "primera"})
		done <- err
	}()

	<-started
	if _, err := c.Run(context.Background(), Input{Text: "segunda"}); !errors.Is(err, ErrTurnActive) {
		t.Fatalf("expected ErrTurnActive, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
}

func TestRunCancelStopsDeltas(t *testing.T) {
	sentDelta := make(chan struct{})
	streamer := &cancellableStreamer{sentDelta: sentDelta}
	rec := &snapshotRecorder{}
	c := newTestController(t, streamer, &scriptedSearcher{}, config.TriggerConfig{},
		Events{OnDelta: rec.record}, 0, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), Input{Text: "pregunta larga"})
		done <- err
	}()

	<-sentDelta
	c.Cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	seen := len(rec.all())
	time.Sleep(30 * time.Millisecond)
	if got := len(rec.all()); got != seen {
		t.Errorf("no delta may arrive after cancellation: %d then %d", seen, got)
	}

	// A new turn starts immediately after the cancelled one returns.
	result, err := c.Run(context.Background(), Input{Text: "otra pregunta"})
	if err != nil {
		t.Fatalf("turn after cancel failed: %v", err)
	}
	if result.Text != "segunda respuesta" {
		t.Errorf("unexpected answer after cancel: %q", result.Text)
	}
}

func TestRunUpstreamFailure(t *testing.T) {
	wantErr := errors.New("upstream returned status 503")
	streamer := &scriptedStreamer{script: []streamStep{{err: wantErr}}}
	rec := &snapshotRecorder{}

	var failKind string
	c := newTestController(t, streamer, &scriptedSearcher{}, config.TriggerConfig{},
		Events{OnDelta: rec.record, OnError: func(kind, message string) { failKind = kind }}, 0, nil)

	_, err := c.Run(context.Background(), Input{Text: "hola"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the upstream error surfaced, got %v", err)
	}
	if failKind != "upstream" {
		t.Errorf("expected an upstream error callback, got %q", failKind)
	}
	if len(rec.all()) != 0 {
		t.Error("a failed turn must not publish deltas")
	}
}

func TestRunKeepsPartialOnBrokenStream(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{
		{deltas: []string{"Respuesta casi completa"}, err: errors.New("connection reset")},
	}}
	c := newTestController(t, streamer, &scriptedSearcher{}, config.TriggerConfig{}, Events{}, 0, nil)

	result, err := c.Run(context.Background(), Input{Text: "hola"})
	if err != nil {
		t.Fatalf("a broken stream with real content must not fail the turn: %v", err)
	}
	if result.Text != "Respuesta casi completa" {
		t.Errorf("partial text must stand, got %q", result.Text)
	}
}

func TestRunPersistsExchange(t *testing.T) {
	streamer := &scriptedStreamer{script: []streamStep{{deltas: []string{"respuesta"}}}}
	store := storage.NewMemoryStore()
	c := newTestController(t, streamer, &scriptedSearcher{}, config.TriggerConfig{}, Events{}, 0, store)

	ctx := context.Background()
	chat, err := store.CreateChat(ctx, "sesión")
	if err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	if _, err := c.Run(ctx, Input{ChatID: chat.ID, Text: "pregunta"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(messages))
	}
	if messages[0].Role != llm.RoleUser || messages[0].Content != "pregunta" {
		t.Errorf("unexpected first stored message: %+v", messages[0])
	}
	if messages[1].Role != llm.RoleAssistant || messages[1].Content != "respuesta" {
		t.Errorf("unexpected second stored message: %+v", messages[1])
	}
}

// hangingSearcher blocks until its context expires.
type hangingSearcher struct{}

func (hangingSearcher) Search(ctx context.Context, query string) (web.SearchResult, error) {
	<-ctx.Done()
	return web.SearchResult{}, ctx.Err()
}

// gatedStreamer blocks until released, signalling when it starts.
type gatedStreamer struct {
	started chan struct{}
	release chan struct{}
}

func (s *gatedStreamer) Stream(ctx context.Context, req llm.Request, chunks chan<- string) (string, error) {
	close(s.started)
	select {
	case <-s.release:
		return "liberada", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// cancellableStreamer sends one delta, signals, then waits for
// cancellation. A second call answers normally.
type cancellableStreamer struct {
	mu        sync.Mutex
	calls     int
	sentDelta chan struct{}
}

func (s *cancellableStreamer) Stream(ctx context.Context, req llm.Request, chunks chan<- string) (string, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		select {
		case chunks <- "parcial":
		case <-ctx.Done():
			return "", ctx.Err()
		}
		close(s.sentDelta)
		<-ctx.Done()
		return "parcial", ctx.Err()
	}

	select {
	case chunks <- "segunda respuesta":
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "segunda respuesta", nil
}
