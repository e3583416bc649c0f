// Package abi converts between the host's raw C values and Go values.
//
// It is the only place where (pointer, length) pairs become slices and C
// strings become Go strings. Every constructor checks for NULL first; a NULL
// where the calling contract forbids one panics with a ContractViolation.
package abi

import (
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
)

// MutableBytes views the host buffer at ptr as a slice with cap == len, so
// appending to it can never write past the host's allocation.
func MutableBytes(entryPoint, name string, ptr unsafe.Pointer, size uintptr) []byte {
	if ptr == nil {
		panic(errors.NewContractViolation(entryPoint, "null %s", name))
	}
	//nolint:gosec // G103: the host guarantees size bytes at ptr
	return unsafe.Slice((*byte)(ptr), size)[:size:size]
}

// Bytes views a read-only host buffer. The slice must not be written to.
func Bytes(entryPoint, name string, ptr unsafe.Pointer, size uintptr) []byte {
	return MutableBytes(entryPoint, name, ptr, size)
}

// OptionalBytes views an optional host buffer. A NULL pointer means "not
// supplied" and yields a nil slice; a non-NULL pointer with size 0 yields an
// empty, non-nil slice.
func OptionalBytes(ptr unsafe.Pointer, size uintptr) []byte {
	if ptr == nil {
		return nil
	}
	//nolint:gosec // G103: the host guarantees size bytes at ptr
	return unsafe.Slice((*byte)(ptr), size)[:size:size]
}

// CString copies a required NUL-terminated host string.
func CString(entryPoint, name string, ptr unsafe.Pointer) string {
	if ptr == nil {
		panic(errors.NewContractViolation(entryPoint, "null %s", name))
	}
	return GoString(ptr)
}

// OptionalCString copies an optional NUL-terminated host string; NULL
// yields nil.
func OptionalCString(ptr unsafe.Pointer) *string {
	if ptr == nil {
		return nil
	}
	s := GoString(ptr)
	return &s
}

// GoString copies the NUL-terminated string at ptr. ptr must not be NULL.
func GoString(ptr unsafe.Pointer) string {
	n := 0
	for *(*byte)(unsafe.Add(ptr, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}
