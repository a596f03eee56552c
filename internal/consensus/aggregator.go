// Package consensus turns noisy per-frame identity guesses into a single
// confidence-gated decision for one observation window.
package consensus

import (
	"errors"
)

// Unrecognized is the label of a detected face that matched no registrant.
const Unrecognized = "unrecognized"

// ErrWindowClosed is returned by Observe after Finalize has been called.
var ErrWindowClosed = errors.New("observation window already finalized")

// Decision is the outcome of one observation window.
type Decision struct {
	Identity    string         `json:"identity,omitempty"`
	Count       int            `json:"count"`
	Found       bool           `json:"found"`
	Frames      int            `json:"frames"`
	Interrupted bool           `json:"interrupted,omitempty"`
	Counts      map[string]int `json:"counts,omitempty"`
}

// tally is the running count of one identity within the current streak.
type tally struct {
	count     int
	reachedAt int // frame sequence at which count was last incremented
	firstSeen int // order of first observation since the last reset
}

// Aggregator accumulates per-frame label sets. It is scoped to one window:
// create it when the window opens and discard it after Finalize.
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	tallies map[string]*tally
	frames  int
	seen    int
	closed  bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{tallies: make(map[string]*tally)}
}

// Observe records the label set of one processed frame. An empty set means no
// face was detected and clears all counts. Unrecognized labels never count and
// never reset recognized counts. A frame with several distinct identities
// clears the state and seeds each of them with one.
func (a *Aggregator) Observe(labels []string) error {
	if a.closed {
		return ErrWindowClosed
	}
	a.frames++

	if len(labels) == 0 {
		a.reset()
		return nil
	}

	ids := recognized(labels)
	switch len(ids) {
	case 0:
		// Only strangers in view.
	case 1:
		a.bump(ids[0])
	default:
		a.reset()
		for _, id := range ids {
			a.bump(id)
		}
	}
	return nil
}

// Finalize closes the window and returns the identity with the highest count
// if it reached minFrames. Ties go to the identity that reached the count
// first, then to the one observed first.
func (a *Aggregator) Finalize(minFrames int) Decision {
	a.closed = true

	d := Decision{Frames: a.frames, Counts: a.Counts()}
	var best string
	var bt *tally
	for id, t := range a.tallies {
		if bt == nil || beats(t, bt) {
			best, bt = id, t
		}
	}
	if bt == nil || bt.count < minFrames || bt.count == 0 {
		return d
	}
	d.Identity, d.Count, d.Found = best, bt.count, true
	return d
}

// Counts returns a copy of the current counts.
func (a *Aggregator) Counts() map[string]int {
	counts := make(map[string]int, len(a.tallies))
	for id, t := range a.tallies {
		counts[id] = t.count
	}
	return counts
}

// Frames returns the number of frames observed so far.
func (a *Aggregator) Frames() int { return a.frames }

func beats(t, other *tally) bool {
	if t.count != other.count {
		return t.count > other.count
	}
	if t.reachedAt != other.reachedAt {
		return t.reachedAt < other.reachedAt
	}
	return t.firstSeen < other.firstSeen
}

func (a *Aggregator) bump(id string) {
	t, ok := a.tallies[id]
	if !ok {
		a.seen++
		t = &tally{firstSeen: a.seen}
		a.tallies[id] = t
	}
	t.count++
	t.reachedAt = a.frames
}

func (a *Aggregator) reset() {
	clear(a.tallies)
	a.seen = 0
}

// recognized returns the distinct recognized identities of a frame in the
// order they first appear.
func recognized(labels []string) []string {
	var ids []string
	for _, l := range labels {
		if l == "" || l == Unrecognized {
			continue
		}
		dup := false
		for _, id := range ids {
			if id == l {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, l)
		}
	}
	return ids
}
