package engine

import (
	"log/slog"
	"sync"
	"time"
)

// staleAfter is how long a cycle may hold the gate before a new caller is
// allowed to treat the holder as crashed and take over.
const staleAfter = 5 * time.Minute

// Gate is the single-flight guard around a polling cycle. At most one cycle
// may be entered at a time; a holder that never exits is force-released once
// the staleness threshold elapses.
type Gate struct {
	mu        sync.Mutex
	active    bool
	enteredAt time.Time

	skipped     uint64
	staleResets uint64

	now func() time.Time
}

// NewGate creates a gate with no active holder
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// TryEnter attempts to claim the gate. It returns true if no cycle is active,
// or if the active claim is stale and was force-released. The first
// successful caller wins; everyone else gets false until Exit.
func (g *Gate) TryEnter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.active {
		held := now.Sub(g.enteredAt)
		if held < staleAfter {
			g.skipped++
			return false
		}

		// The previous holder exceeded the staleness threshold; treat it as
		// crashed rather than blocking forever.
		g.staleResets++
		slog.Warn("Force-releasing stale cycle gate", "held", held, "enteredAt", g.enteredAt)
	}

	g.active = true
	g.enteredAt = now
	return true
}

// Exit releases the gate. Call sites must guarantee this runs on every path
// out of a cycle, typically via defer immediately after a successful TryEnter.
func (g *Gate) Exit() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active = false
	g.enteredAt = time.Time{}
}

// SkippedRuns reports how many entries were denied because a healthy cycle
// was already active
func (g *Gate) SkippedRuns() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipped
}

// StaleResets reports how many stale claims were force-released
func (g *Gate) StaleResets() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.staleResets
}
