package wazero

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// DefaultHostModule is the module name guests import host functions from.
const DefaultHostModule = "aflpp_host"

// maxLogMessage limits how much guest memory one log call may read.
const maxLogMessage = 64 << 10

// registerHostModule instantiates the host functions available to guests.
func registerHostModule(ctx context.Context, runtime wazero.Runtime, name string) error {
	_, err := runtime.NewHostModuleBuilder(name).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostLogMessage),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{}).
		WithParameterNames("level", "ptr", "len").
		Export("log_message").
		Instantiate(ctx)
	return err
}

// hostLogMessage writes a guest message to slog at the guest's slog level.
func hostLogMessage(ctx context.Context, mod api.Module, stack []uint64) {
	level := slog.Level(api.DecodeI32(stack[0]))
	ptr := api.DecodeU32(stack[1])
	length := api.DecodeU32(stack[2])

	if length > maxLogMessage {
		slog.WarnContext(ctx, "wazero: guest log message truncated", "module", mod.Name(), "len", length)
		length = maxLogMessage
	}
	mem := mod.Memory()
	if mem == nil {
		return
	}
	msg, ok := mem.Read(ptr, length)
	if !ok {
		slog.ErrorContext(ctx, "wazero: guest log message out of bounds", "module", mod.Name(), "ptr", ptr, "len", length)
		return
	}
	slog.Log(ctx, level, string(msg), "module", mod.Name())
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
