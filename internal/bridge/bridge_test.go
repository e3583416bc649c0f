package bridge

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime/cgo"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/mutator"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/abi"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/testutil"
	"github.com/reglet-dev/aflpp-mutator-sdk/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var aflState [64]byte

func afl() unsafe.Pointer {
	return unsafe.Pointer(&aflState[0])
}

func cstr(s string) unsafe.Pointer {
	b := append([]byte(s), 0)
	return unsafe.Pointer(&b[0])
}

func bytesAt(ptr unsafe.Pointer, n uintptr) []byte {
	return append([]byte(nil), unsafe.Slice((*byte)(ptr), n)...)
}

// reverser reverses its input in place and reports how often it ran.
type reverser struct {
	mutator.Defaults
	host   *entities.HostState
	seed   uint32
	calls  int
	queued []string
	origs  []*string
	closed bool
}

func newReverser(host *entities.HostState, seed uint32) *reverser {
	return &reverser{host: host, seed: seed}
}

func (r *reverser) Fuzz(buf, _ []byte, _ int) entities.Outcome {
	r.calls++
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return entities.InPlace()
}

func (r *reverser) FuzzCount([]byte) uint32 {
	return uint32(r.calls) + 1
}

func (r *reverser) QueueNewEntry(newEntry string, origEntry *string) {
	r.queued = append(r.queued, newEntry)
	r.origs = append(r.origs, origEntry)
}

func (r *reverser) QueueGet(filename string) bool {
	return filename != "skip"
}

func (r *reverser) Describe(int) (string, bool) {
	return fmt.Sprintf("reverse-%d", r.calls), true
}

func (r *reverser) Close() error {
	r.closed = true
	return nil
}

// passthrough relies on every default and leaves buffers alone.
type passthrough struct {
	mutator.Defaults
}

func (passthrough) Fuzz([]byte, []byte, int) entities.Outcome {
	return entities.InPlace()
}

// scripted returns whatever outcome its fuzz func produces.
type scripted struct {
	mutator.Defaults
	fuzz func(buf, add []byte, maxSize int) entities.Outcome
	desc string
}

func (s *scripted) Fuzz(buf, add []byte, maxSize int) entities.Outcome {
	return s.fuzz(buf, add, maxSize)
}

func (s *scripted) Describe(int) (string, bool) {
	return s.desc, s.desc != ""
}

func (s *scripted) Introspection() (string, bool) {
	return "ops=" + s.desc, true
}

func scriptedInit(s *scripted) mutator.InitFunc {
	return func(*entities.HostState, uint32) mutator.Mutator { return s }
}

type fakeRecorder struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[entities.OutcomeKind]int
	opened   int
	closed   int
	flushed  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{calls: map[string]int{}, outcomes: map[entities.OutcomeKind]int{}}
}

func (f *fakeRecorder) Call(entryPoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[entryPoint]++
}

func (f *fakeRecorder) Outcome(kind entities.OutcomeKind, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[kind]++
}

func (f *fakeRecorder) SessionOpened() { f.opened++ }
func (f *fakeRecorder) SessionClosed() { f.closed++ }
func (f *fakeRecorder) Flush() error   { f.flushed++; return nil }

func TestInit_PassesHostStateAndSeed(t *testing.T) {
	var got *reverser
	b := New(func(host *entities.HostState, seed uint32) mutator.Mutator {
		got = newReverser(host, seed)
		return got
	})

	handle := b.Init(afl(), 42)
	require.NotNil(t, handle)
	defer b.Deinit(handle)

	require.NotNil(t, got)
	assert.Equal(t, uint32(42), got.seed)
	assert.Equal(t, afl(), got.host.Pointer())
	assert.Same(t, got, Reconstitute(EntryFuzz, handle).Mutator())
}

func TestInit_NullAflPanics(t *testing.T) {
	called := false
	b := New(func(*entities.HostState, uint32) mutator.Mutator {
		called = true
		return &passthrough{}
	})

	assert.PanicsWithError(t, "afl_custom_init: contract violation: null afl state", func() {
		b.Init(nil, 1)
	})
	assert.False(t, called, "constructor must not run on a null afl pointer")
}

func TestInit_NilMutatorPanics(t *testing.T) {
	b := New(func(*entities.HostState, uint32) mutator.Mutator { return nil })
	assert.PanicsWithError(t, "afl_custom_init: contract violation: init returned a nil mutator", func() {
		b.Init(afl(), 1)
	})
}

func TestFuzz_InPlaceScenario(t *testing.T) {
	b := New(func(host *entities.HostState, seed uint32) mutator.Mutator { return newReverser(host, seed) })
	handle := b.Init(afl(), 42)
	defer b.Deinit(handle)

	buf := []byte{1, 2, 3}
	var out unsafe.Pointer
	n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 3, &out, nil, 0, 8)

	assert.Equal(t, uintptr(3), n)
	assert.Equal(t, unsafe.Pointer(&buf[0]), out, "in-place result must point at the input buffer")
	assert.Equal(t, []byte{3, 2, 1}, buf)
}

func TestFuzz_StatePersistsAcrossCalls(t *testing.T) {
	b := New(func(host *entities.HostState, seed uint32) mutator.Mutator { return newReverser(host, seed) })
	handle := b.Init(afl(), 7)
	defer b.Deinit(handle)

	buf := []byte{1, 2}
	var out unsafe.Pointer
	for i := 0; i < 3; i++ {
		b.Fuzz(handle, unsafe.Pointer(&buf[0]), 2, &out, nil, 0, 2)
	}

	assert.Equal(t, uint32(4), b.FuzzCount(handle, unsafe.Pointer(&buf[0]), 2))
	desc := b.Describe(handle, 64)
	require.NotNil(t, desc)
	assert.Equal(t, "reverse-3", abi.GoString(desc))
}

func TestFuzz_NewBufferCopiedToArena(t *testing.T) {
	replacement := []byte("abcdef")
	s := &scripted{fuzz: func(buf, _ []byte, _ int) entities.Outcome {
		return entities.NewBuffer(replacement)
	}}
	b := New(scriptedInit(s))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{0}
	var out unsafe.Pointer
	n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 16)

	require.Equal(t, uintptr(6), n)
	require.NotNil(t, out)
	assert.NotEqual(t, unsafe.Pointer(&buf[0]), out)
	assert.NotEqual(t, unsafe.Pointer(&replacement[0]), out, "replacement must live in C memory")
	assert.Equal(t, []byte("abcdef"), bytesAt(out, n))
}

func TestFuzz_NewBufferShrinksHostBuffer(t *testing.T) {
	s := &scripted{fuzz: func(buf, _ []byte, _ int) entities.Outcome {
		return entities.NewBuffer(buf[:2])
	}}
	b := New(scriptedInit(s))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{9, 8, 7, 6}
	var out unsafe.Pointer
	n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 4, &out, nil, 0, 4)

	assert.Equal(t, uintptr(2), n)
	assert.Equal(t, unsafe.Pointer(&buf[0]), out, "a prefix of the host buffer is returned without a copy")
}

func TestFuzz_EmptyReplacementIsNonNull(t *testing.T) {
	s := &scripted{fuzz: func([]byte, []byte, int) entities.Outcome {
		return entities.NewBuffer(nil)
	}}
	b := New(scriptedInit(s))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1}
	var out unsafe.Pointer
	n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 4)

	assert.Equal(t, uintptr(0), n)
	assert.NotNil(t, out)
}

func TestFuzz_Fail(t *testing.T) {
	s := &scripted{fuzz: func([]byte, []byte, int) entities.Outcome { return entities.Fail() }}
	rec := newFakeRecorder()
	b := New(scriptedInit(s), WithRecorder(rec))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1, 2}
	out := unsafe.Pointer(&buf[1])
	n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 2, &out, nil, 0, 4)

	assert.Equal(t, uintptr(0), n)
	assert.Nil(t, out)
	assert.Equal(t, 1, rec.outcomes[entities.OutcomeFail])
}

func TestFuzz_AddBuf(t *testing.T) {
	tests := []struct {
		name    string
		add     []byte
		size    uintptr
		wantNil bool
		want    []byte
	}{
		{name: "absent", wantNil: true},
		{name: "present", add: []byte{4, 5, 6}, size: 3, want: []byte{4, 5, 6}},
		{name: "present but empty", add: []byte{4}, size: 0, want: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []byte
			s := &scripted{fuzz: func(_, add []byte, _ int) entities.Outcome {
				seen = add
				return entities.InPlace()
			}}
			b := New(scriptedInit(s))
			handle := b.Init(afl(), 1)
			defer b.Deinit(handle)

			var addPtr unsafe.Pointer
			if tt.add != nil {
				addPtr = unsafe.Pointer(&tt.add[0])
			}
			buf := []byte{1}
			var out unsafe.Pointer
			b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, addPtr, tt.size, 4)

			if tt.wantNil {
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestFuzz_MaxSizeForwarded(t *testing.T) {
	var got int
	s := &scripted{fuzz: func(_, _ []byte, maxSize int) entities.Outcome {
		got = maxSize
		return entities.InPlace()
	}}
	b := New(scriptedInit(s))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1}
	var out unsafe.Pointer
	b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 1<<20)
	assert.Equal(t, 1<<20, got)
}

func TestFuzz_ContractViolations(t *testing.T) {
	s := &scripted{fuzz: func([]byte, []byte, int) entities.Outcome { return entities.Outcome{} }}
	b := New(scriptedInit(s))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1}
	var out unsafe.Pointer

	assert.PanicsWithError(t, "afl_custom_fuzz: contract violation: null mutator handle", func() {
		b.Fuzz(nil, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 4)
	})
	assert.PanicsWithError(t, "afl_custom_fuzz: contract violation: null buf", func() {
		b.Fuzz(handle, nil, 1, &out, nil, 0, 4)
	})
	assert.PanicsWithError(t, "afl_custom_fuzz: contract violation: null out_buf", func() {
		b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, nil, nil, 0, 4)
	})
	assert.PanicsWithError(t, "afl_custom_fuzz: contract violation: mutator returned an invalid outcome", func() {
		b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 4)
	})
}

func TestFuzzCount_ContractViolations(t *testing.T) {
	b := New(func(*entities.HostState, uint32) mutator.Mutator { return &passthrough{} })
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1}
	assert.PanicsWithError(t, "afl_custom_fuzz_count: contract violation: null mutator handle", func() {
		b.FuzzCount(nil, unsafe.Pointer(&buf[0]), 1)
	})
	assert.PanicsWithError(t, "afl_custom_fuzz_count: contract violation: null buf", func() {
		b.FuzzCount(handle, nil, 1)
	})
}

func TestFuzz_ReplacementOutlivesDescribeAndIntrospection(t *testing.T) {
	tests := []struct {
		name string
		desc string
	}{
		{name: "shorter description", desc: "xy"},
		{name: "longer description", desc: strings.Repeat("d", 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{
				fuzz: func([]byte, []byte, int) entities.Outcome {
					return entities.NewBuffer([]byte("ABCDEFGHIJ"))
				},
				desc: tt.desc,
			}
			b := New(scriptedInit(s))
			handle := b.Init(afl(), 1)
			defer b.Deinit(handle)

			buf := []byte{0}
			var out unsafe.Pointer
			n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 64)
			require.Equal(t, uintptr(10), n)

			report := b.Introspection(handle)
			desc := b.Describe(handle, 512)

			assert.Equal(t, []byte("ABCDEFGHIJ"), bytesAt(out, n), "fuzz output must survive until the next fuzz call")
			assert.Equal(t, tt.desc, abi.GoString(desc))
			assert.Equal(t, "ops="+tt.desc, abi.GoString(report))
		})
	}
}

func TestFuzz_OversizedReplacement(t *testing.T) {
	s := &scripted{fuzz: func([]byte, []byte, int) entities.Outcome {
		return entities.NewBuffer([]byte("too long"))
	}}
	buf := []byte{1}

	t.Run("strict", func(t *testing.T) {
		b := New(scriptedInit(s))
		handle := b.Init(afl(), 1)
		defer b.Deinit(handle)

		var out unsafe.Pointer
		assert.PanicsWithError(t, "afl_custom_fuzz: contract violation: replacement of 8 bytes exceeds max_size 3", func() {
			b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 3)
		})
		assert.Nil(t, out, "nothing is reported to the host after a violation")
	})

	t.Run("lenient", func(t *testing.T) {
		b := New(scriptedInit(s), WithStrictBounds(false))
		handle := b.Init(afl(), 1)
		defer b.Deinit(handle)

		var out unsafe.Pointer
		n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 3)
		require.Equal(t, uintptr(3), n)
		assert.Equal(t, []byte("too"), bytesAt(out, n))
	})
}

func TestFuzz_FallibleFailureInvokesHandlerOnce(t *testing.T) {
	failure := stderrors.New("mutation engine exhausted")

	var handled []error
	handler := func(err error) {
		handled = append(handled, err)
		panic(err)
	}
	init := mutator.AdaptInit(func(*entities.HostState, uint32) (*failingFuzz, error) {
		return &failingFuzz{err: failure}, nil
	}, handler)
	b := New(init)
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1}
	var out unsafe.Pointer
	assert.PanicsWithError(t, failure.Error(), func() {
		b.Fuzz(handle, unsafe.Pointer(&buf[0]), 1, &out, nil, 0, 4)
	})
	require.Len(t, handled, 1)
	assert.ErrorIs(t, handled[0], failure)
	assert.Nil(t, out)
}

type failingFuzz struct {
	mutator.FallibleDefaults
	err error
}

func (f *failingFuzz) Fuzz([]byte, []byte, int) (entities.Outcome, error) {
	return entities.Outcome{}, f.err
}

func TestQueueEntryPoints(t *testing.T) {
	var r *reverser
	b := New(func(host *entities.HostState, seed uint32) mutator.Mutator {
		r = newReverser(host, seed)
		return r
	})
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	b.QueueNewEntry(handle, cstr("/out/queue/id:000001"), nil)
	b.QueueNewEntry(handle, cstr("/out/queue/id:000002"), cstr("/out/queue/id:000001"))

	assert.Equal(t, []string{"/out/queue/id:000001", "/out/queue/id:000002"}, r.queued)
	assert.Nil(t, r.origs[0], "an initial seed has no origin")
	require.NotNil(t, r.origs[1])
	assert.Equal(t, "/out/queue/id:000001", *r.origs[1])

	assert.Equal(t, uint8(1), b.QueueGet(handle, cstr("keep")))
	assert.Equal(t, uint8(0), b.QueueGet(handle, cstr("skip")))

	assert.PanicsWithError(t, "afl_custom_queue_new_entry: contract violation: null filename_new_queue", func() {
		b.QueueNewEntry(handle, nil, nil)
	})
	assert.PanicsWithError(t, "afl_custom_queue_get: contract violation: null filename", func() {
		b.QueueGet(handle, nil)
	})
}

func TestDefaultsThroughBridge(t *testing.T) {
	b := New(func(*entities.HostState, uint32) mutator.Mutator { return &passthrough{} })
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	buf := []byte{1, 2, 3}
	assert.Equal(t, uint32(1), b.FuzzCount(handle, unsafe.Pointer(&buf[0]), 3))
	assert.Equal(t, uint8(1), b.QueueGet(handle, cstr("any")))
	assert.Nil(t, b.Describe(handle, 32))
	assert.Nil(t, b.Introspection(handle))

	var out unsafe.Pointer
	n := b.Fuzz(handle, unsafe.Pointer(&buf[0]), 3, &out, nil, 0, 3)
	assert.Equal(t, uintptr(3), n)
	assert.Equal(t, []byte{1, 2, 3}, buf, "the default fuzz leaves the input untouched")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		desc   string
		maxLen uintptr
		want   string
	}{
		{name: "fits", desc: "reverse", maxLen: 32, want: "reverse"},
		{name: "truncated", desc: "reverse-bytes", maxLen: 7, want: "reverse"},
		{name: "interior nul", desc: "rev\x00erse", maxLen: 32, want: "rev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{desc: tt.desc}
			b := New(scriptedInit(s))
			handle := b.Init(afl(), 1)
			defer b.Deinit(handle)

			got := b.Describe(handle, tt.maxLen)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, abi.GoString(got))
		})
	}
}

func TestIntrospection(t *testing.T) {
	s := &scripted{desc: "flip"}
	b := New(scriptedInit(s))
	handle := b.Init(afl(), 1)
	defer b.Deinit(handle)

	got := b.Introspection(handle)
	require.NotNil(t, got)
	assert.Equal(t, "ops=flip", abi.GoString(got))
}

func TestDeinit_ClosesAndReleases(t *testing.T) {
	allocsBefore, bytesBefore := abi.Stats()

	var r *reverser
	rec := newFakeRecorder()
	b := New(func(host *entities.HostState, seed uint32) mutator.Mutator {
		r = newReverser(host, seed)
		return r
	}, WithRecorder(rec))

	handle := b.Init(afl(), 1)
	b.Describe(handle, 64)
	buf := []byte{1, 2}
	b.FuzzCount(handle, unsafe.Pointer(&buf[0]), 2)
	b.Deinit(handle)

	assert.True(t, r.closed)
	assert.Equal(t, 1, rec.opened)
	assert.Equal(t, 1, rec.closed)
	assert.Equal(t, 1, rec.flushed)
	assert.Equal(t, 1, rec.calls[EntryDescribe])
	assert.Equal(t, 1, rec.calls[EntryDeinit])

	allocsAfter, bytesAfter := abi.Stats()
	assert.Equal(t, allocsBefore, allocsAfter, "deinit must release every C allocation")
	assert.Equal(t, bytesBefore, bytesAfter)
}

func TestSessionLogsCarryOneSessionField(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := slog.Default()
	slog.SetDefault(slog.New(log.NewHandler(core)))
	defer slog.SetDefault(prev)

	b := New(func(*entities.HostState, uint32) mutator.Mutator { return &passthrough{} })
	handle := b.Init(afl(), 5)
	session := Reconstitute(EntryFuzz, handle).Session()
	b.Deinit(handle)

	entries := logs.All()
	require.Len(t, entries, 2)
	for i, want := range []string{EntryInit, EntryDeinit} {
		count := 0
		for _, f := range entries[i].Context {
			if f.Key == "session" {
				count++
			}
		}
		assert.Equal(t, 1, count, "%s: session logged once", want)

		fields := entries[i].ContextMap()
		assert.Equal(t, session, fields["session"])
		assert.Equal(t, want, fields["entry_point"])
	}
	assert.Equal(t, uint64(5), entries[0].ContextMap()["seed"])
}

func TestDeinit_NullHandlePanics(t *testing.T) {
	b := New(func(*entities.HostState, uint32) mutator.Mutator { return &passthrough{} })
	assert.PanicsWithError(t, "afl_custom_deinit: contract violation: null mutator handle", func() {
		b.Deinit(nil)
	})
}

func TestSessionsAreIndependent(t *testing.T) {
	b := New(func(host *entities.HostState, seed uint32) mutator.Mutator { return newReverser(host, seed) })
	h1 := b.Init(afl(), 1)
	h2 := b.Init(afl(), 2)
	defer b.Deinit(h1)
	defer b.Deinit(h2)

	c1 := Reconstitute(EntryFuzz, h1)
	c2 := Reconstitute(EntryFuzz, h2)
	assert.NotEqual(t, c1.Session(), c2.Session())
	assert.NotSame(t, c1.Mutator(), c2.Mutator())

	buf := []byte{1, 2}
	var out unsafe.Pointer
	b.Fuzz(h1, unsafe.Pointer(&buf[0]), 2, &out, nil, 0, 2)

	assert.Equal(t, 1, c1.Mutator().(*reverser).calls)
	assert.Equal(t, 0, c2.Mutator().(*reverser).calls)
}

func TestReconstitute_RejectsForeignHandle(t *testing.T) {
	h := cgo.NewHandle("not a context")
	defer h.Delete()
	cell := abi.NewHandleCell(h)
	defer abi.FreeHandleCell(cell)

	cv := testutil.RequirePanicValue[*errors.ContractViolation](t, func() {
		Reconstitute(EntryFuzz, cell)
	})
	assert.Equal(t, "handle does not refer to a mutator context", cv.Reason)
}
