package pipeline

import "sync"

// flightGuard enforces at most one summarization in flight process-wide.
// Check and set happen under one mutex so two near-simultaneous requests can
// never both observe idle. The raw flag is never handed out.
type flightGuard struct {
	mu      sync.Mutex
	current string // meeting id of the running summarization, "" when idle
}

// tryAcquire atomically claims the guard for meetingID. It returns false if
// another summarization is already running; requests are rejected, never
// queued.
func (g *flightGuard) tryAcquire(meetingID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != "" {
		return false
	}
	g.current = meetingID
	return true
}

func (g *flightGuard) release() {
	g.mu.Lock()
	g.current = ""
	g.mu.Unlock()
}

// running returns the meeting id currently being summarized, if any.
func (g *flightGuard) running() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, g.current != ""
}
