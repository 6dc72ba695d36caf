package sensing

import (
	"fmt"
	"sync"
)

// A Handle identifies one open session. Handles are never reused: the zero Handle is never valid
// and a closed handle never refers to a later session.
type Handle uint64

func newHandle(gen, index uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) gen() uint32 {
	return uint32(h >> 32)
}

func (h Handle) index() uint32 {
	return uint32(h)
}

func (h Handle) String() string {
	return fmt.Sprintf("handle(%d:%d)", h.index(), h.gen())
}

type handleSlot struct {
	gen  uint32
	sess *session
}

// handleTable is an arena of sessions indexed by Handle. Freeing a slot bumps its generation so
// stale handles fail the generation check.
type handleTable struct {
	mu    sync.RWMutex
	slots []handleSlot
	free  []uint32
}

func (t *handleTable) alloc(sess *session) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, handleSlot{gen: 1})
	}
	slot := &t.slots[idx]
	slot.sess = sess
	return newHandle(slot.gen, idx)
}

func (t *handleTable) slotLocked(h Handle) *handleSlot {
	if h == 0 || int(h.index()) >= len(t.slots) {
		return nil
	}
	slot := &t.slots[h.index()]
	if slot.sess == nil || slot.gen != h.gen() {
		return nil
	}
	return slot
}

func (t *handleTable) get(h Handle) (*session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	slot := t.slotLocked(h)
	if slot == nil {
		return nil, false
	}
	return slot.sess, true
}

// release frees the slot of a live handle and returns its session.
func (t *handleTable) release(h Handle) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := t.slotLocked(h)
	if slot == nil {
		return nil, false
	}
	sess := slot.sess
	slot.sess = nil
	slot.gen++
	if slot.gen == 0 {
		// Generation 0 would make the handle of slot 0 equal the zero Handle.
		slot.gen = 1
	}
	t.free = append(t.free, h.index())
	return sess, true
}

// live returns the handles of every open session.
func (t *handleTable) live() []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var handles []Handle
	for idx, slot := range t.slots {
		if slot.sess != nil {
			handles = append(handles, newHandle(slot.gen, uint32(idx)))
		}
	}
	return handles
}
