package wazero

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/mutator"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Export names of the guest ABI.
const (
	ExportMemory        = "memory"
	ExportAllocate      = "allocate"
	ExportDeallocate    = "deallocate"
	ExportInit          = "init"
	ExportFuzz          = "fuzz"
	ExportFuzzCount     = "fuzz_count"
	ExportQueueNewEntry = "queue_new_entry"
	ExportQueueGet      = "queue_get"
	ExportDescribe      = "describe"
	ExportIntrospection = "introspection"
)

// Config holds configuration for loading a guest mutator.
type Config struct {
	// HostModule is the module guests import host functions from.
	HostModule string

	// MemoryLimitPages caps guest memory in 64KiB pages. Zero keeps the
	// runtime default.
	MemoryLimitPages uint32

	// Seed is passed to the guest's init export.
	Seed uint32
}

// Option configures Load.
type Option func(*Config)

// WithHostModule sets the host module name (default: "aflpp_host").
func WithHostModule(name string) Option {
	return func(c *Config) {
		c.HostModule = name
	}
}

// WithMemoryLimitPages caps guest memory.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *Config) {
		c.MemoryLimitPages = pages
	}
}

// WithSeed sets the seed handed to the guest's init export.
func WithSeed(seed uint32) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

func defaultConfig() Config {
	return Config{HostModule: DefaultHostModule}
}

// Mutator drives one guest module instance. It is not safe for concurrent
// use, matching the host's one-call-at-a-time contract.
type Mutator struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory

	allocate      api.Function
	deallocate    api.Function
	fuzz          api.Function
	fuzzCount     api.Function
	queueNewEntry api.Function
	queueGet      api.Function
	describe      api.Function
	introspection api.Function

	stack []uint64
	out   []byte
}

var _ mutator.Fallible = (*Mutator)(nil)

// LoadFile reads a module from path and loads it.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Mutator, error) {
	if path == "" {
		return nil, &errors.WasmError{Op: "load", Err: fmt.Errorf("no module path configured")}
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.WasmError{Op: "load", Err: err}
	}
	return Load(ctx, wasm, opts...)
}

// Load compiles and instantiates a guest module, resolves its exports and
// calls its init export with the configured seed.
func Load(ctx context.Context, wasm []byte, opts ...Option) (*Mutator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	m, err := instantiate(ctx, runtime, wasm, cfg)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	return m, nil
}

func instantiate(ctx context.Context, runtime wazero.Runtime, wasm []byte, cfg Config) (*Mutator, error) {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return nil, &errors.WasmError{Op: "instantiate WASI", Err: err}
	}
	if err := registerHostModule(ctx, runtime, cfg.HostModule); err != nil {
		return nil, &errors.WasmError{Op: "register host module", Err: err}
	}

	compiled, err := runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, &errors.WasmError{Op: "compile", Err: err}
	}

	modCfg := wazero.NewModuleConfig().
		WithName("mutator").
		WithStartFunctions("_initialize").
		WithStderr(os.Stderr)
	module, err := runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, &errors.WasmError{Op: "instantiate", Err: err}
	}

	m := &Mutator{
		ctx:           ctx,
		runtime:       runtime,
		module:        module,
		memory:        module.Memory(),
		allocate:      module.ExportedFunction(ExportAllocate),
		deallocate:    module.ExportedFunction(ExportDeallocate),
		fuzz:          module.ExportedFunction(ExportFuzz),
		fuzzCount:     module.ExportedFunction(ExportFuzzCount),
		queueNewEntry: module.ExportedFunction(ExportQueueNewEntry),
		queueGet:      module.ExportedFunction(ExportQueueGet),
		describe:      module.ExportedFunction(ExportDescribe),
		introspection: module.ExportedFunction(ExportIntrospection),
		stack:         make([]uint64, 5),
	}

	switch {
	case m.memory == nil:
		return nil, missingExport(ExportMemory)
	case m.allocate == nil:
		return nil, missingExport(ExportAllocate)
	case m.fuzz == nil:
		return nil, missingExport(ExportFuzz)
	}

	if init := module.ExportedFunction(ExportInit); init != nil {
		if _, err := init.Call(ctx, api.EncodeU32(cfg.Seed)); err != nil {
			return nil, &errors.WasmError{Op: "init", Export: ExportInit, Err: err}
		}
	}
	return m, nil
}

func missingExport(name string) error {
	return &errors.WasmError{Op: "load", Export: name, Err: fmt.Errorf("required export is missing")}
}

// Close releases the runtime and everything instantiated in it.
func (m *Mutator) Close() error {
	return m.runtime.Close(m.ctx)
}

// Fuzz copies buf and add into one guest allocation and calls the guest's
// fuzz export. The guest's result is copied out into memory owned by m and
// is valid until the next call.
func (m *Mutator) Fuzz(buf, add []byte, maxSize int) (entities.Outcome, error) {
	region, err := m.write(ExportFuzz, buf, add)
	if err != nil {
		return entities.Outcome{}, err
	}
	defer m.free(region)

	addPtr := uint32(0)
	if add != nil {
		addPtr = region.ptr + uint32(len(buf)) //nolint:gosec // G115: bounded by the guest allocation
	}

	m.stack[0] = api.EncodeU32(region.ptr)
	m.stack[1] = api.EncodeU32(uint32(len(buf))) //nolint:gosec // G115: checked by write
	m.stack[2] = api.EncodeU32(addPtr)
	m.stack[3] = api.EncodeU32(uint32(len(add))) //nolint:gosec // G115: checked by write
	m.stack[4] = api.EncodeU32(clampU32(maxSize))
	if err := m.fuzz.CallWithStack(m.ctx, m.stack[:5]); err != nil {
		return entities.Outcome{}, &errors.WasmError{Op: "call", Export: ExportFuzz, Err: err}
	}

	packed := m.stack[0]
	if packed == 0 {
		return entities.Fail(), nil
	}
	data, err := m.read(ExportFuzz, packed)
	if err != nil {
		return entities.Outcome{}, err
	}
	m.out = append(m.out[:0], data...)
	return entities.NewBuffer(m.out), nil
}

// FuzzCount calls the guest's fuzz_count export, defaulting to 1.
func (m *Mutator) FuzzCount(buf []byte) (uint32, error) {
	if m.fuzzCount == nil {
		return 1, nil
	}
	region, err := m.write(ExportFuzzCount, buf, nil)
	if err != nil {
		return 0, err
	}
	defer m.free(region)

	m.stack[0] = api.EncodeU32(region.ptr)
	m.stack[1] = api.EncodeU32(uint32(len(buf))) //nolint:gosec // G115: checked by write
	if err := m.fuzzCount.CallWithStack(m.ctx, m.stack[:2]); err != nil {
		return 0, &errors.WasmError{Op: "call", Export: ExportFuzzCount, Err: err}
	}
	return api.DecodeU32(m.stack[0]), nil
}

// QueueNewEntry calls the guest's queue_new_entry export, if any.
func (m *Mutator) QueueNewEntry(newEntry string, origEntry *string) error {
	if m.queueNewEntry == nil {
		return nil
	}
	var orig []byte
	if origEntry != nil {
		orig = []byte(*origEntry)
	}
	region, err := m.write(ExportQueueNewEntry, []byte(newEntry), orig)
	if err != nil {
		return err
	}
	defer m.free(region)

	origPtr := uint32(0)
	if origEntry != nil {
		origPtr = region.ptr + uint32(len(newEntry)) //nolint:gosec // G115: bounded by the guest allocation
	}
	m.stack[0] = api.EncodeU32(region.ptr)
	m.stack[1] = api.EncodeU32(uint32(len(newEntry))) //nolint:gosec // G115: checked by write
	m.stack[2] = api.EncodeU32(origPtr)
	m.stack[3] = api.EncodeU32(uint32(len(orig))) //nolint:gosec // G115: checked by write
	if err := m.queueNewEntry.CallWithStack(m.ctx, m.stack[:4]); err != nil {
		return &errors.WasmError{Op: "call", Export: ExportQueueNewEntry, Err: err}
	}
	return nil
}

// QueueGet calls the guest's queue_get export, defaulting to true.
func (m *Mutator) QueueGet(filename string) (bool, error) {
	if m.queueGet == nil {
		return true, nil
	}
	region, err := m.write(ExportQueueGet, []byte(filename), nil)
	if err != nil {
		return false, err
	}
	defer m.free(region)

	m.stack[0] = api.EncodeU32(region.ptr)
	m.stack[1] = api.EncodeU32(uint32(len(filename))) //nolint:gosec // G115: checked by write
	if err := m.queueGet.CallWithStack(m.ctx, m.stack[:2]); err != nil {
		return false, &errors.WasmError{Op: "call", Export: ExportQueueGet, Err: err}
	}
	return api.DecodeU32(m.stack[0]) != 0, nil
}

// Describe calls the guest's describe export, if any.
func (m *Mutator) Describe(maxLen int) (string, bool, error) {
	if m.describe == nil {
		return "", false, nil
	}
	m.stack[0] = api.EncodeU32(clampU32(maxLen))
	if err := m.describe.CallWithStack(m.ctx, m.stack[:1]); err != nil {
		return "", false, &errors.WasmError{Op: "call", Export: ExportDescribe, Err: err}
	}
	return m.readString(ExportDescribe, m.stack[0])
}

// Introspection calls the guest's introspection export, if any.
func (m *Mutator) Introspection() (string, bool, error) {
	if m.introspection == nil {
		return "", false, nil
	}
	if err := m.introspection.CallWithStack(m.ctx, m.stack[:1]); err != nil {
		return "", false, &errors.WasmError{Op: "call", Export: ExportIntrospection, Err: err}
	}
	return m.readString(ExportIntrospection, m.stack[0])
}

// region is a guest allocation made for one call.
type region struct {
	ptr  uint32
	size uint32
}

// write allocates one guest region and copies the parts into it back to back.
func (m *Mutator) write(export string, parts ...[]byte) (region, error) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if uint64(total) > math.MaxUint32 {
		return region{}, &errors.WasmError{Op: "write", Export: export, Err: fmt.Errorf("%d bytes do not fit in guest memory", total)}
	}

	m.stack[0] = api.EncodeU32(uint32(total)) //nolint:gosec // G115: checked above
	if err := m.allocate.CallWithStack(m.ctx, m.stack[:1]); err != nil {
		return region{}, &errors.WasmError{Op: "call", Export: ExportAllocate, Err: err}
	}
	r := region{ptr: api.DecodeU32(m.stack[0]), size: uint32(total)} //nolint:gosec // G115: checked above
	if r.ptr == 0 && total > 0 {
		return region{}, &errors.WasmError{Op: "call", Export: ExportAllocate, Err: fmt.Errorf("guest returned a null pointer for %d bytes", total)}
	}

	offset := r.ptr
	for _, p := range parts {
		if !m.memory.Write(offset, p) {
			return region{}, &errors.WasmError{Op: "write", Export: export, Err: fmt.Errorf("range %d+%d is out of bounds", offset, len(p))}
		}
		offset += uint32(len(p)) //nolint:gosec // G115: total fits in uint32
	}
	return r, nil
}

// free returns a region to the guest when it exports deallocate.
func (m *Mutator) free(r region) {
	if m.deallocate == nil || r.ptr == 0 {
		return
	}
	_, _ = m.deallocate.Call(m.ctx, api.EncodeU32(r.ptr), api.EncodeU32(r.size))
}

// read resolves a packed pointer/length into a view of guest memory.
func (m *Mutator) read(export string, packed uint64) ([]byte, error) {
	ptr, length := unpackPtrLen(packed)
	if ptr == 0 && length > 0 {
		return nil, &errors.WasmError{Op: "read", Export: export, Err: fmt.Errorf("null pointer with length %d", length)}
	}
	data, ok := m.memory.Read(ptr, length)
	if !ok {
		return nil, &errors.WasmError{Op: "read", Export: export, Err: fmt.Errorf("range %d+%d is out of bounds", ptr, length)}
	}
	return data, nil
}

func (m *Mutator) readString(export string, packed uint64) (string, bool, error) {
	if packed == 0 {
		return "", false, nil
	}
	data, err := m.read(export, packed)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func clampU32(n int) uint32 {
	switch {
	case n < 0:
		return 0
	case uint64(n) > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(n)
	}
}
