// Command aflmut-wasm is an AFL++ custom mutator library that delegates every
// operation to a WebAssembly module. The module path comes from the
// wasm_module setting (AFLPP_GO_MUTATOR_WASM_MODULE).
//
// Build:
//
//	go build -buildmode=c-shared -o libaflmut-wasm.so ./cmd/aflmut-wasm
package main

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/plugin"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/infrastructure/wazero"
)

// New loads the configured module for one session.
func New(_ *entities.HostState, seed uint32) (*wazero.Mutator, error) {
	return wazero.LoadFile(context.Background(), plugin.Settings().WasmModule, wazero.WithSeed(seed))
}

// Abort logs a guest failure and ends the session.
func Abort(err error) {
	slog.Error("wasm mutator failed", "error", err)
	panic(err)
}
