// Package plugintest drives a mutator through the same bridge the exported
// afl_custom_* symbols use, with Go-owned buffers standing in for the host's.
//
//	h := plugintest.New(t, plugintest.Init(reverse.New), 42)
//	res := h.Fuzz([]byte{1, 2, 3}, nil, 8)
//	assert.Equal(t, []byte{3, 2, 1}, res.Data)
package plugintest

import (
	"testing"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/mutator"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/abi"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/bridge"
)

// Option configures the bridge under test.
type Option = bridge.Option

// WithStrictBounds controls replacement bound checks, as in production.
func WithStrictBounds(strict bool) Option {
	return bridge.WithStrictBounds(strict)
}

// Init adapts a typed constructor, the same way plugin.Register does.
func Init[M mutator.Mutator](init func(host *entities.HostState, seed uint32) M) mutator.InitFunc {
	return func(host *entities.HostState, seed uint32) mutator.Mutator {
		return init(host, seed)
	}
}

// InitFallible adapts a fallible constructor, the same way
// plugin.RegisterFallible does.
func InitFallible[F mutator.Fallible](init func(host *entities.HostState, seed uint32) (F, error), handler mutator.ErrorHandler) mutator.InitFunc {
	return mutator.AdaptInit(init, handler)
}

// FuzzResult is what the host observes after one afl_custom_fuzz call.
type FuzzResult struct {
	// Data is a copy of the returned bytes; nil when Failed.
	Data []byte
	// InPlace reports that the returned pointer is the input buffer.
	InPlace bool
	// Failed reports a NULL/0 result.
	Failed bool
}

// Harness owns one session. It is closed automatically when the test ends.
type Harness struct {
	t      testing.TB
	bridge *bridge.Bridge
	handle unsafe.Pointer
	afl    *[64]byte
}

// New starts a session as afl_custom_init would.
func New(t testing.TB, init mutator.InitFunc, seed uint32, opts ...Option) *Harness {
	t.Helper()
	h := &Harness{
		t:      t,
		bridge: bridge.New(init, opts...),
		afl:    new([64]byte),
	}
	h.handle = h.bridge.Init(unsafe.Pointer(h.afl), seed)
	t.Cleanup(h.Close)
	return h
}

// Mutator returns the plugin instance of the session.
func (h *Harness) Mutator() mutator.Mutator {
	return bridge.Reconstitute(bridge.EntryFuzz, h.handle).Mutator()
}

// HostState returns the pointer passed as the afl argument.
func (h *Harness) HostState() unsafe.Pointer {
	return unsafe.Pointer(h.afl)
}

// Fuzz mutates buf, which is modified in place when the mutator does so.
func (h *Harness) Fuzz(buf, add []byte, maxSize int) FuzzResult {
	h.t.Helper()
	bufPtr, bufLen := pointer(buf)
	var addPtr unsafe.Pointer
	if add != nil {
		addPtr, _ = pointer(add)
	}

	var out unsafe.Pointer
	n := h.bridge.Fuzz(h.handle, bufPtr, bufLen, &out, addPtr, uintptr(len(add)), uintptr(maxSize))
	if out == nil {
		return FuzzResult{Failed: true}
	}
	return FuzzResult{
		Data:    append([]byte{}, unsafe.Slice((*byte)(out), n)...),
		InPlace: out == bufPtr,
	}
}

// FuzzCount asks how many times to fuzz buf.
func (h *Harness) FuzzCount(buf []byte) uint32 {
	ptr, n := pointer(buf)
	return h.bridge.FuzzCount(h.handle, ptr, n)
}

// QueueNewEntry reports a new queue entry; orig is nil for initial seeds.
func (h *Harness) QueueNewEntry(newEntry string, orig *string) {
	var origPtr unsafe.Pointer
	if orig != nil {
		origPtr = cString(*orig)
	}
	h.bridge.QueueNewEntry(h.handle, cString(newEntry), origPtr)
}

// QueueGet asks whether filename should be fuzzed.
func (h *Harness) QueueGet(filename string) bool {
	return h.bridge.QueueGet(h.handle, cString(filename)) != 0
}

// Describe returns the description of the last mutation.
func (h *Harness) Describe(maxLen int) (string, bool) {
	p := h.bridge.Describe(h.handle, uintptr(maxLen))
	if p == nil {
		return "", false
	}
	return abi.GoString(p), true
}

// Introspection returns the mutator's introspection report.
func (h *Harness) Introspection() (string, bool) {
	p := h.bridge.Introspection(h.handle)
	if p == nil {
		return "", false
	}
	return abi.GoString(p), true
}

// Close ends the session as afl_custom_deinit would. Later calls are no-ops.
func (h *Harness) Close() {
	if h.handle == nil {
		return
	}
	handle := h.handle
	h.handle = nil
	h.bridge.Deinit(handle)
}

// pointer returns a non-NULL address for buf, even when it is empty.
func pointer(buf []byte) (unsafe.Pointer, uintptr) {
	if len(buf) == 0 {
		return unsafe.Pointer(new(byte)), 0
	}
	return unsafe.Pointer(&buf[0]), uintptr(len(buf))
}

func cString(s string) unsafe.Pointer {
	b := append([]byte(s), 0)
	return unsafe.Pointer(&b[0])
}
