package ports

import "github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"

// Recorder observes bridge activity. Implementations must be cheap: Call and
// Outcome run on every fuzz iteration.
type Recorder interface {
	// Call records one invocation of a host entry point.
	Call(entryPoint string)
	// Outcome records the result of a fuzz call and the returned length.
	Outcome(kind entities.OutcomeKind, size int)
	// SessionOpened records a successful init.
	SessionOpened()
	// SessionClosed records a deinit.
	SessionClosed()
	// Flush persists recorded data, if the implementation persists anything.
	Flush() error
}
