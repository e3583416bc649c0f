package entities

import "unsafe"

// HostState is a borrowed reference to the fuzzer's afl_state_t.
//
// The structure is owned by the host for the lifetime of the process. The SDK
// never dereferences, copies or frees it; plugins that link against the host's
// headers may convert Pointer back to the concrete C type.
type HostState struct {
	ptr unsafe.Pointer
}

// NewHostState wraps a raw host state pointer.
func NewHostState(ptr unsafe.Pointer) *HostState {
	return &HostState{ptr: ptr}
}

// Pointer returns the raw host state pointer.
func (h *HostState) Pointer() unsafe.Pointer {
	if h == nil {
		return nil
	}
	return h.ptr
}
