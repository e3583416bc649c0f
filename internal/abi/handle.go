package abi

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
)

var handleSize = unsafe.Sizeof(C.uintptr_t(0))

// NewHandleCell stores h in freshly allocated C memory and returns the cell's
// address. The address is what the host keeps as its opaque pointer: Go
// pointers may not be retained by C, C addresses may.
func NewHandleCell(h cgo.Handle) unsafe.Pointer {
	cell := C.malloc(C.size_t(handleSize))
	if cell == nil {
		panic(&errors.MemoryError{Requested: handleSize})
	}
	*(*C.uintptr_t)(cell) = C.uintptr_t(h)
	liveAllocs.Add(1)
	liveBytes.Add(int64(handleSize))
	return cell
}

// LoadHandle reads the handle stored in a cell. cell must not be NULL.
func LoadHandle(cell unsafe.Pointer) cgo.Handle {
	return cgo.Handle(*(*C.uintptr_t)(cell))
}

// FreeHandleCell releases a cell. The handle it stored is not deleted.
func FreeHandleCell(cell unsafe.Pointer) {
	C.free(cell)
	liveAllocs.Add(-1)
	liveBytes.Add(-int64(handleSize))
}
