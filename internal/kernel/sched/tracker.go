package sched

import "sync"

// State is the per-thread scheduling state. Suspension is modeled as removal
// from the runnable set; how a host runtime switches contexts is not this
// package's business.
type State int

const (
	StateRunnable State = iota
	StateBlocked
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateBlocked:
		return "blocked"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// BlockReason records why a thread left the runnable set.
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockSend
	BlockReceive
)

func (r BlockReason) String() string {
	switch r {
	case BlockSend:
		return "send"
	case BlockReceive:
		return "receive"
	default:
		return "none"
	}
}

type thread struct {
	state  State
	reason BlockReason
}

// Tracker maintains the runnable set. It carries no scheduling policy: the
// IPC engine and process control drive the transitions, and that is the
// whole contract.
type Tracker struct {
	mu      sync.RWMutex
	threads map[uint64]*thread
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{threads: make(map[uint64]*thread)}
}

// Add registers a thread as runnable.
func (t *Tracker) Add(tid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threads[tid] = &thread{state: StateRunnable}
}

// SetBlocked removes tid from the runnable set.
func (t *Tracker) SetBlocked(tid uint64, reason BlockReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if th, ok := t.threads[tid]; ok && th.state != StateDestroyed {
		th.state = StateBlocked
		th.reason = reason
	}
}

// SetRunnable re-inserts tid into the runnable set.
func (t *Tracker) SetRunnable(tid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if th, ok := t.threads[tid]; ok && th.state != StateDestroyed {
		th.state = StateRunnable
		th.reason = BlockNone
	}
}

// SetDestroyed marks tid dead; the state is terminal.
func (t *Tracker) SetDestroyed(tid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if th, ok := t.threads[tid]; ok {
		th.state = StateDestroyed
		th.reason = BlockNone
	}
}

// Remove drops the record entirely.
func (t *Tracker) Remove(tid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.threads, tid)
}

// State reports the thread's state and block reason.
func (t *Tracker) State(tid uint64) (State, BlockReason) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if th, ok := t.threads[tid]; ok {
		return th.state, th.reason
	}
	return StateDestroyed, BlockNone
}

// Runnable returns the current runnable set.
func (t *Tracker) Runnable() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint64, 0, len(t.threads))
	for tid, th := range t.threads {
		if th.state == StateRunnable {
			out = append(out, tid)
		}
	}
	return out
}
