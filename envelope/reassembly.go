package envelope

import (
	"sync"
	"time"

	"github.com/ruvnet/daa-sub007/errkind"
)

// reassemblyPhase is the Empty -> Partial -> Complete | Expired state
// machine from spec.md §4.2.
type reassemblyPhase uint8

const (
	phaseEmpty reassemblyPhase = iota
	phasePartial
	phaseComplete
	phaseExpired
)

type reassemblyState struct {
	phase        reassemblyPhase
	header       ChunkHeader
	chunks       map[uint32][]byte
	startedAt    time.Time
	lastActivity time.Time
}

// reassemblyTable holds one reassemblyState per in-flight message id. One
// mutex guards the whole table; it is not sharded by message id. This
// mirrors the single RwLock<HashMap<...>> the Rust source protects its
// table with.
type reassemblyTable struct {
	mu     sync.Mutex
	states map[string]*reassemblyState
}

func newReassemblyTable() *reassemblyTable {
	return &reassemblyTable{states: make(map[string]*reassemblyState)}
}

// add inserts chunk into the state for its message id, creating the state
// on first arrival (Empty -> Partial) and reporting whether the message is
// now Complete.
func (t *reassemblyTable) add(now time.Time, timeout time.Duration, chunk Chunk) (bool, *reassemblyState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[chunk.Header.MessageID]
	if !ok {
		state = &reassemblyState{
			phase:        phasePartial,
			header:       chunk.Header,
			chunks:       make(map[uint32][]byte, chunk.Header.TotalChunks),
			startedAt:    now,
			lastActivity: now,
		}
		t.states[chunk.Header.MessageID] = state
	}

	if state.phase == phaseExpired {
		return false, nil, errkind.New(errkind.Timeout, "envelope: chunk arrived for expired reassembly")
	}
	if state.header.TotalChunks != chunk.Header.TotalChunks {
		return false, nil, errkind.New(errkind.Validation, "envelope: inconsistent chunk count")
	}

	state.lastActivity = now
	state.chunks[chunk.Header.ChunkIndex] = chunk.Data

	if len(state.chunks) == int(state.header.TotalChunks) {
		state.phase = phaseComplete
		return true, state, nil
	}
	return false, nil, nil
}

func (t *reassemblyTable) remove(id string) {
	t.mu.Lock()
	delete(t.states, id)
	t.mu.Unlock()
}

// sweepExpired transitions any Partial state idle past timeout to Expired
// and removes it, returning the ids that were evicted.
func (t *reassemblyTable) sweepExpired(now time.Time, timeout time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, state := range t.states {
		if state.phase == phasePartial && now.Sub(state.lastActivity) > timeout {
			expired = append(expired, id)
			delete(t.states, id)
		}
	}
	return expired
}

func (t *reassemblyTable) stats() (active int, chunksWaiting int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	active = len(t.states)
	for _, s := range t.states {
		chunksWaiting += len(s.chunks)
	}
	return
}
