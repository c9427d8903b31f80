// Vision augmenter: parallel per-image description with client-side
// optimization before send.

package augment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/vision"
)

// visionSeparator joins successful per-image descriptions.
const visionSeparator = "\n\n---\n\n"

// Vision runs one description request per image concurrently.
type Vision struct {
	describer vision.Describer
	optimize  vision.OptimizeOptions
	timeout   time.Duration
	logger    log.Logger
}

// NewVision creates the vision augmenter.
func NewVision(describer vision.Describer, optimize vision.OptimizeOptions, timeout time.Duration, logger log.Logger) *Vision {
	return &Vision{
		describer: describer,
		optimize:  optimize,
		timeout:   timeout,
		logger:    logger,
	}
}

// Analyze fans out one description call per image and awaits all of
// them. Each image has its own timeout so one slow image cannot hold
// the rest hostage past its deadline. A failed analysis is dropped from
// the aggregate (its progress entry removed); it never fails the turn.
// Returns the joined descriptions, or "" when none succeeded.
func (v *Vision) Analyze(ctx context.Context, images []ImageRef, userPrompt string, progress ProgressFunc) string {
	if len(images) == 0 {
		return ""
	}
	report := progress
	if report == nil {
		report = func(string, int) {}
	}

	descriptions := make([]string, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		report(img.ID, ProgressQueued)
		wg.Add(1)
		go func(i int, img ImageRef) {
			defer wg.Done()
			desc, err := v.analyzeOne(ctx, img, userPrompt, report)
			if err != nil {
				v.logger.Warn("image analysis dropped", "image", img.ID, "error", err)
				report(img.ID, ProgressRemoved)
				return
			}
			descriptions[i] = desc
			report(img.ID, ProgressDone)
		}(i, img)
	}
	wg.Wait()

	var blocks []string
	for i, desc := range descriptions {
		if desc == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Image %d: %s", i+1, desc))
	}
	return strings.Join(blocks, visionSeparator)
}

func (v *Vision) analyzeOne(ctx context.Context, img ImageRef, userPrompt string, report ProgressFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	report(img.ID, ProgressOptimizing)
	optimized, err := vision.Optimize(img.DataURI, v.optimize)
	if err != nil {
		return "", fmt.Errorf("optimize: %w", err)
	}

	report(img.ID, ProgressRequesting)
	prompt := describePrompt(userPrompt)
	desc, err := v.describer.Describe(ctx, optimized, prompt)
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	if strings.TrimSpace(desc) == "" {
		return "", fmt.Errorf("describe: empty description")
	}
	return strings.TrimSpace(desc), nil
}

func describePrompt(userPrompt string) string {
	base := "Describe this image in detail, focusing on everything relevant to the user's question."
	if strings.TrimSpace(userPrompt) == "" {
		return base
	}
	return base + " The user asked: " + userPrompt
}
