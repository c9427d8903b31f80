// Package augment provides the context assemblers: independent
// augmenters that each turn auxiliary input into an optional text block
// appended to the outbound message. Every augmenter is independently
// failable; a failed augmenter contributes an empty block and never
// fails the turn.
package augment

// ImageRef is an in-memory encoded image attached to a turn.
type ImageRef struct {
	ID      string
	DataURI string
}

// DocRef is a document whose text was already extracted upstream.
type DocRef struct {
	Name     string
	MimeType string
	Text     string
}

// ProgressFunc reports per-image analysis progress at fixed milestones.
// percent is 0..100; ProgressRemoved signals the entry should be dropped
// (the analysis failed and is excluded from the aggregate).
type ProgressFunc func(imageID string, percent int)

// ProgressRemoved is reported for images whose analysis failed.
const ProgressRemoved = -1

// Analysis milestones.
const (
	ProgressQueued     = 0
	ProgressOptimizing = 25
	ProgressRequesting = 50
	ProgressDone       = 100
)
