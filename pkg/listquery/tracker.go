package listquery

import (
	"strings"
	"sync"
)

// Ticket identifies one request for a key.
type Ticket struct {
	Key string
	Seq uint64
}

// Tracker implements latest-request-wins per key: only the most recently
// issued ticket for a key may publish its result.
type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
}

func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]uint64)}
}

// Issue hands out a ticket that supersedes every earlier ticket for key.
func (t *Tracker) Issue(key string) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.latest[key] = t.seq
	return Ticket{Key: key, Seq: t.seq}
}

// IsLatest reports whether tk has not been superseded.
func (t *Tracker) IsLatest(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[tk.Key] == tk.Seq
}

// Complete reports whether tk may publish and retires it. Once a ticket has
// completed, older tickets for the same key are rejected as well.
func (t *Tracker) Complete(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[tk.Key] != tk.Seq {
		return false
	}
	delete(t.latest, tk.Key)
	return true
}

// Forget drops every ticket whose key starts with prefix, so in-flight results
// for those keys are rejected.
func (t *Tracker) Forget(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.latest {
		if strings.HasPrefix(key, prefix) {
			delete(t.latest, key)
		}
	}
}

// Pending returns the number of keys with an outstanding ticket.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.latest)
}
