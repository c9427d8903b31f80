// Terminal delta rendering.
//
// The controller publishes full answer snapshots. The renderer tracks
// how much of the snapshot is already on screen and prints only the new
// suffix; a snapshot shorter than what was printed (a fallback round
// replaced the directive text) restarts the line.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type deltaRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed string
}

func newDeltaRenderer(out io.Writer) *deltaRenderer {
	return &deltaRenderer{out: out}
}

func (r *deltaRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = ""
}

func (r *deltaRenderer) update(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.HasPrefix(text, r.printed) {
		fmt.Fprint(r.out, text[len(r.printed):])
		r.printed = text
		return
	}

	fmt.Fprint(r.out, "\n"+text)
	r.printed = text
}
