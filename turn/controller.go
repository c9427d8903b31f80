// Turn controller.
//
// Information Hiding:
// - State machine phases and the single-active-turn guard
// - Augmenter fan-out and the absorb-augmenter-failures policy
// - Fallback round wiring (one hop, amended system prompt)
// - Best-effort persistence

package turn

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/richinex/oraculo/augment"
	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/llm"
	"github.com/richinex/oraculo/storage"
)

// Validation and guard errors. None of these involve a network call.
var (
	ErrEmptyInput = errors.New("turn: input has no text and no attachments")
	ErrTooSoon    = errors.New("turn: minimum interval since the last turn has not elapsed")
	ErrTurnActive = errors.New("turn: another turn is already in flight")
)

// Input is one user turn.
type Input struct {
	ChatID        string // "" disables persistence for the turn
	Text          string
	Images        []augment.ImageRef
	Documents     []augment.DocRef
	History       []llm.ChatMessage
	SearchEnabled bool
}

// Result is the completed turn.
type Result struct {
	Text         string
	Source       string // search provider, "" when no search ran
	RawResult    string // raw search result for citation display
	FallbackUsed bool
}

// Events is the presentation boundary. All callbacks are optional.
type Events struct {
	// OnDelta receives the accumulated answer snapshot at a bounded
	// cadence, plus one unconditional final snapshot.
	OnDelta func(text string)
	// OnProgress receives per-image analysis milestones.
	OnProgress augment.ProgressFunc
	// OnSource reports the search provider and raw result when a web
	// search contributed to the turn.
	OnSource func(source, rawResult string)
	// OnError reports a turn-fatal upstream failure.
	OnError func(kind, message string)
}

func (e Events) delta(text string) {
	if e.OnDelta != nil {
		e.OnDelta(text)
	}
}

func (e Events) source(source, raw string) {
	if e.OnSource != nil {
		e.OnSource(source, raw)
	}
}

func (e Events) fail(kind, message string) {
	if e.OnError != nil {
		e.OnError(kind, message)
	}
}

// Options wires the controller's collaborators.
type Options struct {
	Streamer  llm.Streamer
	Vision    *augment.Vision
	Documents *augment.Documents
	Web       *augment.Web
	Store     storage.Store // nil disables persistence
	Prompt    config.PromptConfig
	Limits    config.LimitConfig
	Events    Events
	Logger    log.Logger
}

// Controller runs turns one at a time.
//
// The minimum-interval gate and the single-active-turn guard are
// process-scoped state owned here. Cancel aborts the in-flight turn; a
// new turn may start as soon as Run returns.
type Controller struct {
	streamer  llm.Streamer
	vision    *augment.Vision
	documents *augment.Documents
	web       *augment.Web
	store     storage.Store
	prompt    string
	events    Events
	limits    config.LimitConfig
	limiter   *rate.Limiter
	logger    log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewController creates a turn controller.
func NewController(opts Options) *Controller {
	return &Controller{
		streamer:  opts.Streamer,
		vision:    opts.Vision,
		documents: opts.Documents,
		web:       opts.Web,
		store:     opts.Store,
		prompt:    llm.SystemPrompt(opts.Prompt),
		events:    opts.Events,
		limits:    opts.Limits,
		limiter:   rate.NewLimiter(rate.Every(opts.Limits.MinTurnInterval), 1),
		logger:    opts.Logger,
	}
}

// Run executes one turn: Validating, Assembling, Composing, Streaming,
// FallbackCheck, Persisting. An augmenter failure degrades to an empty
// contribution; only a failed chat call fails the turn.
func (c *Controller) Run(ctx context.Context, input Input) (*Result, error) {
	// Validating
	text := strings.TrimSpace(input.Text)
	if text == "" && len(input.Images) == 0 && len(input.Documents) == 0 {
		return nil, ErrEmptyInput
	}
	if !c.limiter.Allow() {
		return nil, ErrTooSoon
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil, ErrTurnActive
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	// Assembling: augmenters run concurrently and never fail the turn.
	// Turns carrying documents get the document pipeline budget as the
	// assembly bound.
	actx := ctx
	if len(input.Documents) > 0 && c.limits.DocumentTimeout > 0 {
		var acancel context.CancelFunc
		actx, acancel = context.WithTimeout(ctx, c.limits.DocumentTimeout)
		defer acancel()
	}

	var visionText, docText string
	var webRes augment.WebResult
	g, gctx := errgroup.WithContext(actx)
	g.Go(func() error {
		visionText = c.vision.Analyze(gctx, input.Images, text, c.events.OnProgress)
		return nil
	})
	g.Go(func() error {
		docText = c.documents.Compose(input.Documents)
		return nil
	})
	g.Go(func() error {
		webRes = c.web.Augment(gctx, text, input.SearchEnabled)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Composing
	messages := Compose(input.History, text, visionText, webRes.SearchText, webRes.ExtractText, docText,
		c.limits.MaxBlockChars, c.limits.MaxContextChars)
	if webRes.Source != "" {
		c.events.source(webRes.Source, webRes.RawResult)
	}

	// Streaming
	emitter := newDeltaEmitter(c.limits.FlushInterval, c.events.delta)

	answer, streamErr := c.streamOnce(ctx, llm.Request{Messages: messages, System: c.prompt}, emitter)
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			emitter.Discard()
			return nil, context.Canceled
		}
		if strings.TrimSpace(answer) == "" {
			emitter.Discard()
			c.events.fail("upstream", streamErr.Error())
			return nil, streamErr
		}
		// A broken stream with real content stands as the answer.
		c.logger.Warn("stream ended early, keeping partial answer", "error", streamErr)
	}

	result := &Result{Text: answer, Source: webRes.Source, RawResult: webRes.RawResult}

	// FallbackCheck: at most one hop, only after a clean stream, and
	// only when the first round carried no search context.
	if directive, ok := DetectDirective(answer); ok && streamErr == nil && webRes.SearchText == "" {
		fbText, fbSource, fbRaw, err := c.runFallback(ctx, directive, messages, emitter)
		if err != nil {
			emitter.Discard()
			if errors.Is(err, context.Canceled) {
				return nil, context.Canceled
			}
			c.events.fail("upstream", err.Error())
			return nil, err
		}
		result.Text = fbText
		result.FallbackUsed = true
		if fbSource != "" {
			result.Source = fbSource
			result.RawResult = fbRaw
		}
	}

	emitter.Close()

	// Persisting: best effort, never rolls back the delivered answer.
	c.persist(ctx, input.ChatID, text, result.Text)

	return result, nil
}

// Cancel aborts the in-flight turn, if any. Safe to call at any time.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// runFallback performs the single permitted search-and-answer round: a
// direct search with the directive's query, the result block appended to
// the last outbound message, and a re-stream under an amended system
// prompt that forbids another directive.
func (c *Controller) runFallback(ctx context.Context, d Directive, messages []llm.ChatMessage, emitter *deltaEmitter) (text, source, raw string, err error) {
	c.logger.Debug("search directive detected", "query", d.Query)

	searchText, source, raw := c.web.SearchWith(ctx, d.Query)
	emitter.Reset()

	if searchText == "" {
		emitter.Append(fallbackUnavailable)
		return fallbackUnavailable, "", "", nil
	}
	c.events.source(source, raw)

	amended := make([]llm.ChatMessage, len(messages))
	copy(amended, messages)
	last := amended[len(amended)-1]
	last.Content += "\n\n" + augment.Truncate(searchText, c.limits.MaxBlockChars)
	amended[len(amended)-1] = last

	answer, err := c.streamOnce(ctx, llm.Request{
		Messages: amended,
		System:   llm.AmendNoSearch(c.prompt),
	}, emitter)
	if err != nil {
		if errors.Is(err, context.Canceled) || strings.TrimSpace(answer) == "" {
			return "", "", "", err
		}
		c.logger.Warn("fallback stream ended early, keeping partial answer", "error", err)
	}
	return answer, source, raw, nil
}

// streamOnce runs one streaming chat call, forwarding deltas into the
// emitter until the stream ends.
func (c *Controller) streamOnce(ctx context.Context, req llm.Request, emitter *deltaEmitter) (string, error) {
	chunks := make(chan string, 16)
	var forward sync.WaitGroup
	forward.Add(1)
	go func() {
		defer forward.Done()
		for delta := range chunks {
			emitter.Append(delta)
		}
	}()

	answer, err := c.streamer.Stream(ctx, req, chunks)
	close(chunks)
	forward.Wait()
	return answer, err
}

func (c *Controller) persist(ctx context.Context, chatID, userText, answer string) {
	if c.store == nil || chatID == "" {
		return
	}
	if _, err := c.store.AppendMessage(ctx, chatID, llm.RoleUser, userText); err != nil {
		c.logger.Warn("persisting user message failed", "chat", chatID, "error", err)
	}
	if _, err := c.store.AppendMessage(ctx, chatID, llm.RoleAssistant, answer); err != nil {
		c.logger.Warn("persisting assistant message failed", "chat", chatID, "error", err)
	}
}
