// Package wazero runs AFL++ mutators compiled to WebAssembly inside the
// wazero runtime and exposes them as mutator.Fallible values.
//
// # Guest ABI
//
// Byte ranges cross the boundary as a packed i64: the guest pointer in the
// upper 32 bits and the length in the lower 32 bits. A packed value of 0
// means "nothing".
//
// Required exports:
//
//	memory
//	allocate(size i32) i32
//	fuzz(buf_ptr, buf_len, add_ptr, add_len, max_size i32) i64   ; 0 = fail
//
// Optional exports:
//
//	init(seed i32)
//	deallocate(ptr, size i32)
//	fuzz_count(buf_ptr, buf_len i32) i32
//	queue_new_entry(new_ptr, new_len, orig_ptr, orig_len i32)      ; orig 0/0 = none
//	queue_get(name_ptr, name_len i32) i32
//	describe(max_len i32) i64
//	introspection() i64
//
// Guests may import log_message(level, ptr, len i32) from the "aflpp_host"
// module to write to the SDK's log. WASI preview1 is always available.
//
// # Basic Usage
//
//	m, err := wazero.LoadFile(ctx, "mutator.wasm", wazero.WithSeed(seed))
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
package wazero
