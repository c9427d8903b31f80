// URL content extraction.
//
// Fetches each URL through the transport client and reduces the page to
// readable text: go-readability first, a plain goquery body-text pass
// when readability finds no article content.

package web

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/transport"
)

// ExtractResult is the outcome of extracting one or more URLs.
type ExtractResult struct {
	Success  bool
	Result   string
	URLCount int
}

// Extractor turns a list of URLs into readable text.
type Extractor interface {
	Extract(ctx context.Context, urls []string) (ExtractResult, error)
}

// PageExtractor fetches pages over HTTP and extracts their text.
type PageExtractor struct {
	transport *transport.Client
	cfg       config.SearchConfig
	logger    log.Logger
}

// NewPageExtractor creates a URL extractor.
func NewPageExtractor(tc *transport.Client, cfg config.SearchConfig, logger log.Logger) *PageExtractor {
	return &PageExtractor{transport: tc, cfg: cfg, logger: logger}
}

// maxPageChars bounds the text contributed by a single page.
const maxPageChars = 20_000

// Extract fetches every URL and joins the per-page text blocks.
// A page that fails to fetch or yields no text is skipped; Success is
// true when at least one page contributed text.
func (e *PageExtractor) Extract(ctx context.Context, urls []string) (ExtractResult, error) {
	var blocks []string
	for _, raw := range urls {
		text, err := e.extractOne(ctx, raw)
		if err != nil {
			e.logger.Warn("url extraction failed", "url", raw, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("--- %s ---\n%s", raw, text))
	}

	if len(blocks) == 0 {
		return ExtractResult{URLCount: len(urls)}, nil
	}
	return ExtractResult{
		Success:  true,
		Result:   strings.Join(blocks, "\n\n"),
		URLCount: len(urls),
	}, nil
}

func (e *PageExtractor) extractOne(ctx context.Context, raw string) (string, error) {
	pageURL, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	resp, err := e.transport.Do(ctx, transport.Request{
		URL:     raw,
		Timeout: e.cfg.ExtractTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}

	text := readableText(resp.Body, pageURL)
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}
	return text, nil
}

// readableText extracts article text, falling back to the raw body text
// when the page has no recognizable article structure.
func readableText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
}

// Verify PageExtractor implements Extractor
var _ Extractor = (*PageExtractor)(nil)
