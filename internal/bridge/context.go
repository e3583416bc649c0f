package bridge

import (
	"io"
	"runtime/cgo"
	"sync/atomic"
	"unsafe"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/mutator"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/abi"
)

var sessions atomic.Uint64

// Context exclusively owns one plugin instance and the C memory whose
// contents the host reads after an entry point returns.
//
// Each kind of result has its own arena. The host keeps a fuzz result alive
// while it asks for the description and introspection of the same mutation,
// so only the next fuzz call may reuse the output block.
type Context struct {
	mutator     mutator.Mutator
	output      abi.Arena
	description abi.Arena
	report      abi.Arena
	session     uint64
}

// Mutator returns the plugin instance.
func (c *Context) Mutator() mutator.Mutator {
	return c.mutator
}

// Session returns the process-unique id of the session.
func (c *Context) Session() uint64 {
	return c.session
}

// Create constructs one plugin instance through init and returns the opaque
// handle the host will pass back on every call of the session.
func Create(host *entities.HostState, seed uint32, init mutator.InitFunc) unsafe.Pointer {
	m := init(host, seed)
	if m == nil {
		panic(errors.NewContractViolation(EntryInit, "init returned a nil mutator"))
	}
	c := &Context{mutator: m, session: sessions.Add(1)}
	return abi.NewHandleCell(cgo.NewHandle(c))
}

// Reconstitute borrows the Context behind handle for the duration of one
// call. Nothing happens to the instance when the borrow ends.
//
// A NULL handle panics. A handle that was already destroyed is out of
// contract; cgo.Handle panics when it notices.
func Reconstitute(entryPoint string, handle unsafe.Pointer) *Context {
	if handle == nil {
		panic(errors.NewContractViolation(entryPoint, "null mutator handle"))
	}
	c, ok := abi.LoadHandle(handle).Value().(*Context)
	if !ok || c == nil {
		panic(errors.NewContractViolation(entryPoint, "handle does not refer to a mutator context"))
	}
	return c
}

// Destroy releases the instance behind handle. It must run exactly once per
// Create; the handle is invalid afterwards. A mutator implementing io.Closer
// is closed first and its error returned.
func Destroy(handle unsafe.Pointer) error {
	c := Reconstitute(EntryDeinit, handle)
	h := abi.LoadHandle(handle)

	var closeErr error
	if closer, ok := c.mutator.(io.Closer); ok {
		closeErr = closer.Close()
	}

	c.output.Free()
	c.description.Free()
	c.report.Free()
	c.mutator = nil
	h.Delete()
	abi.FreeHandleCell(handle)
	return closeErr
}
