package mutator

import (
	"io"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
)

// Fallible mirrors Mutator with an error result on every operation, so plugin
// code can propagate failures with plain `if err != nil { return ..., err }`.
//
// The host has no channel for most of these errors. Once an operation fails
// the session is considered unsafe to continue and the registered
// ErrorHandler terminates it.
type Fallible interface {
	Fuzz(buf []byte, add []byte, maxSize int) (entities.Outcome, error)
	FuzzCount(buf []byte) (uint32, error)
	QueueNewEntry(newEntry string, origEntry *string) error
	QueueGet(filename string) (bool, error)
	Describe(maxLen int) (string, bool, error)
	Introspection() (string, bool, error)
}

// FallibleInitFunc constructs one Fallible per fuzzing session.
type FallibleInitFunc func(host *entities.HostState, seed uint32) (Fallible, error)

// ErrorHandler consumes an error from a Fallible operation. It must not
// return: log the error, then panic or exit. A handler that returns causes
// the adapter to panic with *errors.HandlerReturnedError.
type ErrorHandler func(err error)

// FallibleDefaults implements every optional Fallible operation. Embed it and
// implement Fuzz.
type FallibleDefaults struct{}

// FuzzCount returns 1.
func (FallibleDefaults) FuzzCount([]byte) (uint32, error) {
	return 1, nil
}

// QueueNewEntry does nothing.
func (FallibleDefaults) QueueNewEntry(string, *string) error {
	return nil
}

// QueueGet accepts every entry.
func (FallibleDefaults) QueueGet(string) (bool, error) {
	return true, nil
}

// Describe reports no description.
func (FallibleDefaults) Describe(int) (string, bool, error) {
	return "", false, nil
}

// Introspection reports no data.
func (FallibleDefaults) Introspection() (string, bool, error) {
	return "", false, nil
}

// Adapt turns a Fallible into a Mutator. Successful results are forwarded
// unchanged; the first error is passed to handle, which must not return.
func Adapt(f Fallible, handle ErrorHandler) Mutator {
	return &fallibleAdapter{inner: f, handle: handle}
}

// AdaptInit turns a fallible constructor into an InitFunc. A construction
// error goes through handle like any other operation error.
func AdaptInit[F Fallible](init func(host *entities.HostState, seed uint32) (F, error), handle ErrorHandler) InitFunc {
	return func(host *entities.HostState, seed uint32) Mutator {
		f, err := init(host, seed)
		if err != nil {
			terminate(handle, "init", err)
		}
		return Adapt(f, handle)
	}
}

// terminate hands err to the handler and panics if the handler returns.
func terminate(handle ErrorHandler, op string, err error) {
	handle(err)
	panic(&errors.HandlerReturnedError{Op: op, Err: err})
}

type fallibleAdapter struct {
	inner  Fallible
	handle ErrorHandler
}

func (a *fallibleAdapter) Fuzz(buf []byte, add []byte, maxSize int) entities.Outcome {
	out, err := a.inner.Fuzz(buf, add, maxSize)
	if err != nil {
		terminate(a.handle, "fuzz", err)
	}
	return out
}

func (a *fallibleAdapter) FuzzCount(buf []byte) uint32 {
	n, err := a.inner.FuzzCount(buf)
	if err != nil {
		terminate(a.handle, "fuzz_count", err)
	}
	return n
}

func (a *fallibleAdapter) QueueNewEntry(newEntry string, origEntry *string) {
	if err := a.inner.QueueNewEntry(newEntry, origEntry); err != nil {
		terminate(a.handle, "queue_new_entry", err)
	}
}

func (a *fallibleAdapter) QueueGet(filename string) bool {
	ok, err := a.inner.QueueGet(filename)
	if err != nil {
		terminate(a.handle, "queue_get", err)
	}
	return ok
}

func (a *fallibleAdapter) Describe(maxLen int) (string, bool) {
	s, ok, err := a.inner.Describe(maxLen)
	if err != nil {
		terminate(a.handle, "describe", err)
	}
	return s, ok
}

func (a *fallibleAdapter) Introspection() (string, bool) {
	s, ok, err := a.inner.Introspection()
	if err != nil {
		terminate(a.handle, "introspection", err)
	}
	return s, ok
}

// Close forwards to the wrapped mutator when it holds resources.
func (a *fallibleAdapter) Close() error {
	if c, ok := a.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
