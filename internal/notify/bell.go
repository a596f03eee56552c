package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Bell writes a short confirmation line (and a terminal bell) for every
// punch. It is the command-line stand-in for an audible signal.
type Bell struct {
	w      io.Writer
	silent bool
	mu     sync.Mutex
}

// NewBell creates a bell writing to w. A silent bell omits the BEL character.
func NewBell(w io.Writer, silent bool) *Bell {
	return &Bell{w: w, silent: silent}
}

func (b *Bell) Notify(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bel := "\a"
	if b.silent {
		bel = ""
	}
	verb := "in"
	if e.Kind == KindPunchOut {
		verb = "out"
	}
	_, _ = fmt.Fprintf(b.w, "%s%s punched %s at %s (slot %d, total %s)\n",
		bel, e.Identity, verb, e.At.Format("15:04:05"), e.Slot, e.Total)
}
