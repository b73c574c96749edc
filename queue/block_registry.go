package queue

import (
	"fmt"
	"sync"
)

// BlockIndex identifies one named blocking condition.
type BlockIndex uint16

// InvalidBlockIndex indicates registration failure.
const InvalidBlockIndex BlockIndex = ^BlockIndex(0)

// BlockDescriptor describes a registered blocking reason.
type BlockDescriptor struct {
	Name string
}

// BlockRegistry hands out stable bit indices for named block reasons.
type BlockRegistry struct {
	mu          sync.Mutex
	limit       uint16
	nameToIndex map[string]BlockIndex
	descriptors []BlockDescriptor
}

// NewBlockRegistry creates a registry with an optional bit limit; 0 means
// unlimited.
func NewBlockRegistry(limit uint16) *BlockRegistry {
	return &BlockRegistry{
		limit:       limit,
		nameToIndex: make(map[string]BlockIndex),
	}
}

// Register assigns a bit to name. Registering the same name twice returns
// the same bit.
func (r *BlockRegistry) Register(name string) (BlockIndex, error) {
	if name == "" {
		return InvalidBlockIndex, fmt.Errorf("block reason name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.nameToIndex[name]; ok {
		return idx, nil
	}
	next := len(r.descriptors)
	if (r.limit > 0 && next >= int(r.limit)) || next >= int(InvalidBlockIndex) {
		return InvalidBlockIndex, fmt.Errorf("block registry limit reached (%d)", r.limit)
	}
	idx := BlockIndex(next)
	r.nameToIndex[name] = idx
	r.descriptors = append(r.descriptors, BlockDescriptor{Name: name})
	return idx, nil
}

// Lookup returns the bit previously assigned to name.
func (r *BlockRegistry) Lookup(name string) (BlockIndex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.nameToIndex[name]
	if !ok {
		return InvalidBlockIndex, false
	}
	return idx, true
}

// Descriptor returns the descriptor for the given index.
func (r *BlockRegistry) Descriptor(index BlockIndex) (BlockDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(index) >= len(r.descriptors) {
		return BlockDescriptor{}, false
	}
	return r.descriptors[index], true
}

// Count returns the number of registered reasons.
func (r *BlockRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.descriptors)
}
