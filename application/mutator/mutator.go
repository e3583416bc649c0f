// Package mutator defines the operations an AFL++ custom mutator implements.
//
// A plugin implements Mutator (usually by embedding Defaults and writing Fuzz)
// or Fallible (embedding FallibleDefaults) and registers its constructor with
// the plugin package. The bridge never hands plugins raw pointers: buffers
// arrive as slices and paths as Go strings.
package mutator

import "github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"

// Mutator is the capability set the bridge drives. Calls are sequential; the
// bridge never invokes two methods of the same instance concurrently.
type Mutator interface {
	// Fuzz mutates buf. buf is the host's buffer with cap == len; modify it in
	// place and return entities.InPlace, or return entities.NewBuffer with a
	// replacement of at most maxSize bytes. add is the optional splice
	// partner and is nil when the host supplied none; it must not be modified.
	// A replacement longer than maxSize aborts the process, or is truncated
	// with a warning when strict_bounds is off.
	Fuzz(buf []byte, add []byte, maxSize int) entities.Outcome

	// FuzzCount reports how many times Fuzz should run for buf.
	FuzzCount(buf []byte) uint32

	// QueueNewEntry is called when the host adds an entry to its queue.
	// origEntry is nil when the entry has no predecessor.
	QueueNewEntry(newEntry string, origEntry *string)

	// QueueGet decides whether the host should fuzz filename.
	QueueGet(filename string) bool

	// Describe returns a short description of the last mutation, used by the
	// host in file names. maxLen is the host's limit in bytes.
	Describe(maxLen int) (string, bool)

	// Introspection returns a report about the last mutation.
	Introspection() (string, bool)
}

// InitFunc constructs one Mutator per fuzzing session.
type InitFunc func(host *entities.HostState, seed uint32) Mutator

// Defaults implements every optional Mutator operation. Embed it and
// implement Fuzz.
type Defaults struct{}

// FuzzCount returns 1.
func (Defaults) FuzzCount([]byte) uint32 {
	return 1
}

// QueueNewEntry does nothing.
func (Defaults) QueueNewEntry(string, *string) {}

// QueueGet accepts every entry.
func (Defaults) QueueGet(string) bool {
	return true
}

// Describe reports no description.
func (Defaults) Describe(int) (string, bool) {
	return "", false
}

// Introspection reports no data.
func (Defaults) Introspection() (string, bool) {
	return "", false
}
