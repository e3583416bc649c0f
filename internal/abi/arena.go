package abi

/*
#include <stdlib.h>
*/
import "C"

import (
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
)

// Live C allocations made by this package, for leak checks in tests.
var (
	liveAllocs atomic.Int64
	liveBytes  atomic.Int64
)

// Stats returns the number and total size of live C allocations.
func Stats() (allocs int, bytes int) {
	return int(liveAllocs.Load()), int(liveBytes.Load())
}

// Arena is C memory owned by one session. Data copied into it stays valid
// until the next copy or Free, so results the host may hold at the same time
// need separate arenas. The zero value is ready to use. An Arena is not safe
// for concurrent use.
type Arena struct {
	ptr  unsafe.Pointer
	size uintptr
}

// reserve makes room for at least n bytes, reusing the current block when
// it is large enough. Growing may move the block.
func (a *Arena) reserve(n uintptr) unsafe.Pointer {
	if n == 0 {
		n = 1
	}
	if a.ptr != nil && n <= a.size {
		return a.ptr
	}

	grown := a.size * 2
	if grown < n {
		grown = n
	}
	ptr := C.realloc(a.ptr, C.size_t(grown))
	if ptr == nil {
		panic(&errors.MemoryError{Requested: grown})
	}
	if a.ptr == nil {
		liveAllocs.Add(1)
	}
	liveBytes.Add(int64(grown) - int64(a.size))
	a.ptr = ptr
	a.size = grown
	return a.ptr
}

// CopyBytes copies b into the arena and returns its C address. An empty b
// still yields a valid, non-NULL address.
func (a *Arena) CopyBytes(b []byte) unsafe.Pointer {
	ptr := a.reserve(uintptr(len(b)))
	copy(unsafe.Slice((*byte)(ptr), len(b)), b)
	return ptr
}

// CopyCString copies s into the arena as a NUL-terminated string, cutting it
// at its first NUL byte.
func (a *Arena) CopyCString(s string) unsafe.Pointer {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	ptr := a.reserve(uintptr(len(s)) + 1)
	dst := unsafe.Slice((*byte)(ptr), len(s)+1)
	copy(dst, s)
	dst[len(s)] = 0
	return ptr
}

// Cap returns the size of the current block.
func (a *Arena) Cap() uintptr {
	return a.size
}

// Free releases the block. The arena can be reused afterwards.
func (a *Arena) Free() {
	if a.ptr == nil {
		return
	}
	C.free(a.ptr)
	liveAllocs.Add(-1)
	liveBytes.Add(-int64(a.size))
	a.ptr = nil
	a.size = 0
}
