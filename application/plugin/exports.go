package plugin

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/internal/bridge"
)

// abort terminates the process without running Go exit handlers.
var abort = func() {
	C.abort()
}

//nolint:revive // symbol names are fixed by the AFL++ custom mutator API
//export afl_custom_init
func afl_custom_init(afl unsafe.Pointer, seed C.uint) unsafe.Pointer {
	defer guard(bridge.EntryInit)
	return current().Init(afl, uint32(seed))
}

//nolint:revive
//export afl_custom_fuzz_count
func afl_custom_fuzz_count(data unsafe.Pointer, buf *C.uint8_t, bufSize C.size_t) C.uint32_t {
	defer guard(bridge.EntryFuzzCount)
	return C.uint32_t(current().FuzzCount(data, unsafe.Pointer(buf), uintptr(bufSize)))
}

//nolint:revive
//export afl_custom_fuzz
func afl_custom_fuzz(data unsafe.Pointer, buf *C.uint8_t, bufSize C.size_t, outBuf **C.uint8_t, addBuf *C.uint8_t, addBufSize C.size_t, maxSize C.size_t) C.size_t {
	defer guard(bridge.EntryFuzz)
	n := current().Fuzz(data,
		unsafe.Pointer(buf), uintptr(bufSize),
		(*unsafe.Pointer)(unsafe.Pointer(outBuf)),
		unsafe.Pointer(addBuf), uintptr(addBufSize),
		uintptr(maxSize))
	return C.size_t(n)
}

//nolint:revive
//export afl_custom_queue_new_entry
func afl_custom_queue_new_entry(data unsafe.Pointer, filenameNewQueue *C.char, filenameOrigQueue *C.char) {
	defer guard(bridge.EntryQueueNewEntry)
	current().QueueNewEntry(data, unsafe.Pointer(filenameNewQueue), unsafe.Pointer(filenameOrigQueue))
}

//nolint:revive
//export afl_custom_queue_get
func afl_custom_queue_get(data unsafe.Pointer, filename *C.char) C.uint8_t {
	defer guard(bridge.EntryQueueGet)
	return C.uint8_t(current().QueueGet(data, unsafe.Pointer(filename)))
}

//nolint:revive
//export afl_custom_introspection
func afl_custom_introspection(data unsafe.Pointer) *C.char {
	defer guard(bridge.EntryIntrospection)
	return (*C.char)(current().Introspection(data))
}

//nolint:revive
//export afl_custom_describe
func afl_custom_describe(data unsafe.Pointer, maxDescriptionLen C.size_t) *C.char {
	defer guard(bridge.EntryDescribe)
	return (*C.char)(current().Describe(data, uintptr(maxDescriptionLen)))
}

//nolint:revive
//export afl_custom_deinit
func afl_custom_deinit(data unsafe.Pointer) {
	defer guard(bridge.EntryDeinit)
	current().Deinit(data)
}
