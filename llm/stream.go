// SSE frame scanning for streaming chat responses.
//
// The upstream protocol is line-delimited: one "data: <json>" frame per
// event, terminated by "data: [DONE]". Frames may be split anywhere in
// transit, so a partial line at the end of one read is carried over and
// prefixed to the next read before splitting. Because deltas only leave
// the scanner as complete frames, multi-byte UTF-8 sequences are never
// cut at chunk boundaries.

package llm

import (
	"bufio"
	"io"
	"strings"
)

// dataPrefix marks an SSE data frame.
const dataPrefix = "data:"

// doneSentinel is the deliberate end-of-stream frame.
const doneSentinel = "[DONE]"

// frameScanner yields data-frame payloads from an SSE byte stream.
type frameScanner struct {
	reader *bufio.Reader
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{reader: bufio.NewReader(r)}
}

// next returns the next data payload. done is true for the [DONE]
// sentinel. Lines that are not complete data frames (comments, event
// names, blank keep-alives) are skipped. io.EOF signals end of stream.
func (s *frameScanner) next() (payload string, done bool, err error) {
	for {
		line, readErr := s.reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return "", false, readErr
		}
		// A trailing line without newline is still processed on EOF.
		if readErr == io.EOF && line == "" {
			return "", false, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if readErr == io.EOF {
				return "", false, io.EOF
			}
			continue
		}

		if !strings.HasPrefix(line, dataPrefix) {
			if readErr == io.EOF {
				return "", false, io.EOF
			}
			continue
		}

		payload = strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == doneSentinel {
			return "", true, nil
		}
		return payload, false, nil
	}
}
