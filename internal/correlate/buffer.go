package correlate

import (
	"cmp"
	"slices"
	"time"

	"github.com/starford/notesync/internal/models"
)

type pending struct {
	ev  models.RawEvent
	seq uint64 // insertion order
}

// Correlator pairs buffered Deleted/Created events of the same name.
type Correlator struct {
	core
	buf []pending
	seq uint64
}

var _ Engine = (*Correlator)(nil)

// New creates a buffering Correlator.
func New(opts Options) *Correlator {
	return &Correlator{core: newCore(opts)}
}

// Ingest appends ev to the buffer and reconciles. Modified events carry no
// move information and are not buffered.
func (c *Correlator) Ingest(ev models.RawEvent) {
	if ev.Kind != models.Created && ev.Kind != models.Deleted {
		return
	}
	c.seq++
	c.buf = append(c.buf, pending{ev: ev, seq: c.seq})
	c.Reconcile(c.now())
}

// Reconcile sorts the buffer by name with deletions first, retires every
// adjacent Deleted+Created pair as a move and finalizes entries older than
// the window.
func (c *Correlator) Reconcile(now time.Time) {
	if len(c.buf) == 0 {
		return
	}
	slices.SortFunc(c.buf, func(a, b pending) int {
		if n := cmp.Compare(a.ev.Name, b.ev.Name); n != 0 {
			return n
		}
		if n := cmp.Compare(kindRank(a.ev.Kind), kindRank(b.ev.Kind)); n != 0 {
			return n
		}
		return cmp.Compare(a.seq, b.seq)
	})

	kept := make([]pending, 0, len(c.buf))
	for i := 0; i < len(c.buf); i++ {
		cur := c.buf[i]
		if i+1 < len(c.buf) && c.pairs(cur.ev, c.buf[i+1].ev) {
			c.move(cur.ev, c.buf[i+1].ev)
			i++
			continue
		}
		if now.Sub(cur.ev.ObservedAt) > c.window {
			switch cur.ev.Kind {
			case models.Created:
				c.finalizeCreated(cur.ev)
			case models.Deleted:
				c.finalizeDeleted(cur.ev)
			}
			continue
		}
		kept = append(kept, cur)
	}
	c.buf = kept
}

func (c *Correlator) pairs(a, b models.RawEvent) bool {
	if a.Name != b.Name || a.Kind != models.Deleted || b.Kind != models.Created {
		return false
	}
	gap := b.ObservedAt.Sub(a.ObservedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= c.window
}

// Pending returns the number of buffered events.
func (c *Correlator) Pending() int {
	return len(c.buf)
}

// Close is a no-op; the buffer holds no timers.
func (c *Correlator) Close() {}

func kindRank(k models.Kind) int {
	if k == models.Deleted {
		return 0
	}
	return 1
}
