// Package bridge translates the AFL++ custom mutator calling contract into
// calls on a mutator.Mutator.
//
// Every entry point follows the same steps: reject forbidden NULL pointers,
// reconstitute the Context from the host's handle, call the plugin, and
// encode the result the way the host expects it. Contract violations panic;
// the exported wrappers turn any panic into an abort.
package bridge

import (
	"context"
	"log/slog"
	"math"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/mutator"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/abi"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/callctx"
)

// Host entry point symbol names.
const (
	EntryInit          = "afl_custom_init"
	EntryFuzzCount     = "afl_custom_fuzz_count"
	EntryFuzz          = "afl_custom_fuzz"
	EntryQueueNewEntry = "afl_custom_queue_new_entry"
	EntryQueueGet      = "afl_custom_queue_get"
	EntryIntrospection = "afl_custom_introspection"
	EntryDescribe      = "afl_custom_describe"
	EntryDeinit        = "afl_custom_deinit"
)

// EntryPoints lists every symbol the bridge serves.
var EntryPoints = []string{
	EntryInit,
	EntryFuzzCount,
	EntryFuzz,
	EntryQueueNewEntry,
	EntryQueueGet,
	EntryIntrospection,
	EntryDescribe,
	EntryDeinit,
}

// Bridge serves the entry points for one registered mutator type.
type Bridge struct {
	init         mutator.InitFunc
	recorder     ports.Recorder
	strictBounds bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRecorder sets the recorder notified on every call.
func WithRecorder(r ports.Recorder) Option {
	return func(b *Bridge) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithStrictBounds controls what happens when a replacement buffer exceeds
// max_size: abort when strict (the default), truncate with a warning when not.
func WithStrictBounds(strict bool) Option {
	return func(b *Bridge) {
		b.strictBounds = strict
	}
}

// New creates a Bridge that builds plugin instances with init.
func New(init mutator.InitFunc, opts ...Option) *Bridge {
	b := &Bridge{
		init:         init,
		recorder:     nopRecorder{},
		strictBounds: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Recorder returns the recorder in use.
func (b *Bridge) Recorder() ports.Recorder {
	return b.recorder
}

// enter reconstitutes the context and publishes the call context.
// Callers must defer callctx.Reset.
func (b *Bridge) enter(entryPoint string, handle unsafe.Pointer) *Context {
	c := Reconstitute(entryPoint, handle)
	b.recorder.Call(entryPoint)
	callctx.Set(callctx.WithCall(context.Background(), c.session, entryPoint))
	return c
}

// Init serves afl_custom_init.
func (b *Bridge) Init(afl unsafe.Pointer, seed uint32) unsafe.Pointer {
	b.recorder.Call(EntryInit)
	if afl == nil {
		panic(errors.NewContractViolation(EntryInit, "null afl state"))
	}
	callctx.Set(callctx.WithEntryPoint(context.Background(), EntryInit))
	defer callctx.Reset()

	handle := Create(entities.NewHostState(afl), seed, b.init)
	b.recorder.SessionOpened()

	c := Reconstitute(EntryInit, handle)
	ctx := callctx.WithCall(context.Background(), c.session, EntryInit)
	callctx.Set(ctx)
	slog.InfoContext(ctx, "sdk: mutator session opened", "seed", seed)
	return handle
}

// FuzzCount serves afl_custom_fuzz_count.
func (b *Bridge) FuzzCount(handle, buf unsafe.Pointer, bufSize uintptr) uint32 {
	c := b.enter(EntryFuzzCount, handle)
	defer callctx.Reset()

	view := abi.Bytes(EntryFuzzCount, "buf", buf, bufSize)
	return c.mutator.FuzzCount(view)
}

// Fuzz serves afl_custom_fuzz. The returned length is written alongside the
// output pointer: the input buffer for an in-place mutation, the replacement
// for a new buffer, NULL and 0 for a failure.
func (b *Bridge) Fuzz(handle, buf unsafe.Pointer, bufSize uintptr, outBuf *unsafe.Pointer, addBuf unsafe.Pointer, addBufSize, maxSize uintptr) uintptr {
	c := b.enter(EntryFuzz, handle)
	defer callctx.Reset()

	if outBuf == nil {
		panic(errors.NewContractViolation(EntryFuzz, "null out_buf"))
	}
	view := abi.MutableBytes(EntryFuzz, "buf", buf, bufSize)
	add := abi.OptionalBytes(addBuf, addBufSize)

	outcome := c.mutator.Fuzz(view, add, toInt(maxSize))

	var n uintptr
	switch outcome.Kind() {
	case entities.OutcomeInPlace:
		*outBuf = buf
		n = bufSize
	case entities.OutcomeNewBuffer:
		*outBuf, n = b.replacement(c, buf, view, outcome.Buffer(), maxSize)
	case entities.OutcomeFail:
		*outBuf = nil
		n = 0
	default:
		panic(errors.NewContractViolation(EntryFuzz, "mutator returned an invalid outcome"))
	}

	b.recorder.Outcome(outcome.Kind(), int(n))
	return n
}

// replacement places a NewBuffer result where the host can read it until
// the next fuzz call. A prefix of the host's own buffer is returned as is.
func (b *Bridge) replacement(c *Context, hostPtr unsafe.Pointer, host, rep []byte, maxSize uintptr) (unsafe.Pointer, uintptr) {
	if uintptr(len(rep)) > maxSize {
		if b.strictBounds {
			panic(errors.NewContractViolation(EntryFuzz, "replacement of %d bytes exceeds max_size %d", len(rep), maxSize))
		}
		slog.WarnContext(callctx.Current(), "sdk: truncating replacement to max_size",
			"len", len(rep), "max_size", maxSize)
		rep = rep[:maxSize]
	}

	if len(rep) > 0 && len(host) > 0 && unsafe.SliceData(rep) == unsafe.SliceData(host) {
		return hostPtr, uintptr(len(rep))
	}
	return c.output.CopyBytes(rep), uintptr(len(rep))
}

// QueueNewEntry serves afl_custom_queue_new_entry.
func (b *Bridge) QueueNewEntry(handle, newEntry, origEntry unsafe.Pointer) {
	c := b.enter(EntryQueueNewEntry, handle)
	defer callctx.Reset()

	name := abi.CString(EntryQueueNewEntry, "filename_new_queue", newEntry)
	orig := abi.OptionalCString(origEntry)
	c.mutator.QueueNewEntry(name, orig)
}

// QueueGet serves afl_custom_queue_get.
func (b *Bridge) QueueGet(handle, filename unsafe.Pointer) uint8 {
	c := b.enter(EntryQueueGet, handle)
	defer callctx.Reset()

	name := abi.CString(EntryQueueGet, "filename", filename)
	if c.mutator.QueueGet(name) {
		return 1
	}
	return 0
}

// Introspection serves afl_custom_introspection. The string stays valid until
// the next introspection call; NULL means no data.
func (b *Bridge) Introspection(handle unsafe.Pointer) unsafe.Pointer {
	c := b.enter(EntryIntrospection, handle)
	defer callctx.Reset()

	report, ok := c.mutator.Introspection()
	if !ok {
		return nil
	}
	return c.report.CopyCString(report)
}

// Describe serves afl_custom_describe. The description is cut to maxLen
// bytes and stays valid until the next describe call; NULL means no
// description.
func (b *Bridge) Describe(handle unsafe.Pointer, maxLen uintptr) unsafe.Pointer {
	c := b.enter(EntryDescribe, handle)
	defer callctx.Reset()

	desc, ok := c.mutator.Describe(toInt(maxLen))
	if !ok {
		return nil
	}
	if uintptr(len(desc)) > maxLen {
		desc = desc[:maxLen]
	}
	return c.description.CopyCString(desc)
}

// Deinit serves afl_custom_deinit, the only entry point that finalizes the
// instance.
func (b *Bridge) Deinit(handle unsafe.Pointer) {
	b.enter(EntryDeinit, handle)
	defer callctx.Reset()

	if err := Destroy(handle); err != nil {
		slog.WarnContext(callctx.Current(), "sdk: mutator close failed", "error", err)
	}
	b.recorder.SessionClosed()
	if err := b.recorder.Flush(); err != nil {
		slog.WarnContext(callctx.Current(), "sdk: failed to flush metrics", "error", err)
	}
	slog.InfoContext(callctx.Current(), "sdk: mutator session closed")
}

func toInt(n uintptr) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

type nopRecorder struct{}

func (nopRecorder) Call(string)                       {}
func (nopRecorder) Outcome(entities.OutcomeKind, int) {}
func (nopRecorder) SessionOpened()                    {}
func (nopRecorder) SessionClosed()                    {}
func (nopRecorder) Flush() error                      { return nil }
