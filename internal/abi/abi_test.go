package abi

import (
	"runtime/cgo"
	"testing"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cstr(s string) unsafe.Pointer {
	b := append([]byte(s), 0)
	return unsafe.Pointer(&b[0])
}

func TestMutableBytes(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	view := MutableBytes("afl_custom_fuzz", "buf", unsafe.Pointer(&buf[0]), 3)

	assert.Equal(t, []byte{1, 2, 3}, view)
	assert.Equal(t, 3, cap(view), "view must not expose bytes past size")

	view[0] = 9
	assert.Equal(t, byte(9), buf[0], "view must alias the host buffer")

	grown := append(view, 7)
	assert.Equal(t, byte(4), buf[3], "append must not write past the view")
	assert.Len(t, grown, 4)
}

func TestMutableBytes_NullPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		cv, ok := r.(*errors.ContractViolation)
		require.True(t, ok, "panic value should be a ContractViolation, got %T", r)
		assert.Equal(t, "afl_custom_fuzz", cv.EntryPoint)
		assert.Equal(t, "null buf", cv.Reason)
	}()
	MutableBytes("afl_custom_fuzz", "buf", nil, 10)
}

func TestOptionalBytes(t *testing.T) {
	assert.Nil(t, OptionalBytes(nil, 10))

	buf := []byte{5, 6}
	empty := OptionalBytes(unsafe.Pointer(&buf[0]), 0)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	assert.Equal(t, []byte{5, 6}, OptionalBytes(unsafe.Pointer(&buf[0]), 2))
}

func TestCStrings(t *testing.T) {
	assert.Equal(t, "/out/queue/id:000001", CString("afl_custom_queue_get", "filename", cstr("/out/queue/id:000001")))
	assert.Equal(t, "", CString("afl_custom_queue_get", "filename", cstr("")))

	assert.PanicsWithError(t, "afl_custom_queue_get: contract violation: null filename", func() {
		CString("afl_custom_queue_get", "filename", nil)
	})

	assert.Nil(t, OptionalCString(nil))
	orig := OptionalCString(cstr("orig"))
	require.NotNil(t, orig)
	assert.Equal(t, "orig", *orig)
}

func TestArena_CopyBytes(t *testing.T) {
	allocsBefore, bytesBefore := Stats()

	var a Arena
	p1 := a.CopyBytes([]byte("hello"))
	require.NotNil(t, p1)
	assert.Equal(t, []byte("hello"), unsafe.Slice((*byte)(p1), 5))

	p2 := a.CopyBytes([]byte("hi"))
	assert.Equal(t, p1, p2, "smaller copies reuse the block")
	assert.Equal(t, []byte("hi"), unsafe.Slice((*byte)(p2), 2))

	big := make([]byte, 100)
	for i := range big {
		big[i] = byte(i)
	}
	p3 := a.CopyBytes(big)
	assert.Equal(t, big, unsafe.Slice((*byte)(p3), 100))
	assert.GreaterOrEqual(t, a.Cap(), uintptr(100))

	allocs, _ := Stats()
	assert.Equal(t, allocsBefore+1, allocs, "an arena holds a single block")

	a.Free()
	allocs, bytes := Stats()
	assert.Equal(t, allocsBefore, allocs)
	assert.Equal(t, bytesBefore, bytes)
	assert.Zero(t, a.Cap())

	a.Free() // no-op on an empty arena
}

func TestArena_EmptyCopyIsNonNull(t *testing.T) {
	var a Arena
	defer a.Free()

	assert.NotNil(t, a.CopyBytes(nil))
}

func TestArena_CopyCString(t *testing.T) {
	var a Arena
	defer a.Free()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "reverse", want: "reverse"},
		{name: "empty", in: "", want: ""},
		{name: "interior nul", in: "abc\x00def", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := a.CopyCString(tt.in)
			require.NotNil(t, p)
			assert.Equal(t, tt.want, GoString(p))
		})
	}
}

func TestHandleCell(t *testing.T) {
	allocsBefore, _ := Stats()

	value := &struct{ n int }{n: 7}
	h := cgo.NewHandle(value)
	cell := NewHandleCell(h)
	require.NotNil(t, cell)

	got := LoadHandle(cell)
	assert.Equal(t, h, got)
	assert.Same(t, value, got.Value())

	FreeHandleCell(cell)
	h.Delete()

	allocs, _ := Stats()
	assert.Equal(t, allocsBefore, allocs)
}
