package registry

import "sync"

// Registry holds the descriptor table and the last observed raw bytes for
// every variable address. It performs no decoding beyond last-write-wins;
// concurrent readers observe either the prior or the new value, never a
// partial write, because writes store a private copy under Lock and reads
// copy under RLock.
type Registry struct {
	mu          sync.RWMutex
	descriptors []VariableDescriptor
	byAddress   map[uint32]VariableDescriptor
	rawValues   map[uint32][]byte
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byAddress: make(map[uint32]VariableDescriptor),
		rawValues: make(map[uint32][]byte),
	}
}

// SetDescriptors replaces the entire descriptor table, e.g. after a
// GetVarTable response. ArraySize of 0 is normalized to 1 per spec.md §3.
func (r *Registry) SetDescriptors(descs []VariableDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = make([]VariableDescriptor, len(descs))
	r.byAddress = make(map[uint32]VariableDescriptor, len(descs))
	for i, d := range descs {
		if d.ArraySize == 0 {
			d.ArraySize = 1
		}
		r.descriptors[i] = d
		r.byAddress[d.Address] = d
	}
}

// Descriptors returns a copy of the current descriptor table, in the order
// it was set.
func (r *Registry) Descriptors() []VariableDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VariableDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Lookup returns the descriptor for a given address, if known.
func (r *Registry) Lookup(addr uint32) (VariableDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byAddress[addr]
	return d, ok
}

// SetRaw records the last observed raw bytes for an address, e.g. from a
// ReadMemBatch response or WriteMem echo. The slice is copied so the caller
// may safely reuse its buffer.
func (r *Registry) SetRaw(addr uint32, raw []byte) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	r.mu.Lock()
	r.rawValues[addr] = cp
	r.mu.Unlock()
}

// RawValue returns the last observed raw bytes for an address, if any.
func (r *Registry) RawValue(addr uint32) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.rawValues[addr]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true
}

// Reset clears the descriptor table and all raw values.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = nil
	r.byAddress = make(map[uint32]VariableDescriptor)
	r.rawValues = make(map[uint32][]byte)
}
