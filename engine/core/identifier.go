package core

import (
	"fmt"
	"sync"
)

// Handle identifies a registered owner. The low 32 bits index the owner slot
// and the high 32 bits carry the slot generation, so a handle kept after its
// owner was released never resolves to the next owner of the same slot.
//
// Sub-resources keep a Handle to their root instead of a pointer.
type Handle uint64

const InvalidHandle Handle = 0xFFFFFFFFFFFFFFFF

func (h Handle) index() uint32 {
	return uint32(h)
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func newHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

type ownerSlot struct {
	owner      interface{}
	generation uint32
}

var (
	ownersMutex sync.RWMutex
	owners      []ownerSlot
)

func IdentifierAquireNewID(owner interface{}) Handle {
	ownersMutex.Lock()
	defer ownersMutex.Unlock()

	if len(owners) == 0 {
		owners = make([]ownerSlot, 100)
	}
	length := uint32(len(owners))
	for i := uint32(0); i < length; i++ {
		// Existing free spot. Take it.
		if owners[i].owner == nil {
			owners[i].owner = owner
			return newHandle(i, owners[i].generation)
		}
	}

	// If here, no existing free slots. Need a new id, so push one.
	owners = append(owners, ownerSlot{owner: owner})
	return newHandle(length, 0)
}

func IdentifierReleaseID(id Handle) error {
	ownersMutex.Lock()
	defer ownersMutex.Unlock()

	if len(owners) == 0 {
		return fmt.Errorf("identifier_release_id called before initialization. identifier_aquire_new_id should have been called first. Nothing was done")
	}

	length := uint32(len(owners))
	if id.index() >= length {
		return fmt.Errorf("identifier_release_id: id '%d' out of range (max=%d). Nothing was done", id.index(), length)
	}
	slot := &owners[id.index()]
	if slot.owner == nil || slot.generation != id.generation() {
		return fmt.Errorf("identifier_release_id: id '%d' is stale. Nothing was done", id.index())
	}

	// Zero out the entry and bump the generation, making it available for use.
	slot.owner = nil
	slot.generation++
	return nil
}

// IdentifierLookup returns the owner registered under id, if it is still alive.
func IdentifierLookup(id Handle) (interface{}, bool) {
	ownersMutex.RLock()
	defer ownersMutex.RUnlock()

	if id == InvalidHandle || id.index() >= uint32(len(owners)) {
		return nil, false
	}
	slot := owners[id.index()]
	if slot.owner == nil || slot.generation != id.generation() {
		return nil, false
	}
	return slot.owner, true
}
