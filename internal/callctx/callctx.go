// Package callctx carries per-call information (session, entry point) from
// the bridge to code that only sees a context.Context: the log handler and
// mutators that call context-aware libraries.
package callctx

import (
	stdcontext "context"
	"log/slog"
	"sync"
)

// contextKey is a type alias for context value keys to avoid collisions.
type contextKey string

const (
	// SessionKey is the context key for the session id of the current handle.
	SessionKey contextKey = "session"
	// EntryPointKey is the context key for the host entry point being served.
	EntryPointKey contextKey = "entry_point"
)

// contextStore holds the context of the entry point currently executing.
// The host calls entry points sequentially, so one slot is enough; the lock
// only keeps readers on other goroutines (a mutator's helpers) race-free.
var contextStore = struct {
	ctx stdcontext.Context
	sync.RWMutex
}{
	ctx: stdcontext.Background(),
}

// Set sets the current execution context.
func Set(ctx stdcontext.Context) {
	contextStore.Lock()
	defer contextStore.Unlock()
	contextStore.ctx = ctx
}

// Current returns the current execution context, or context.Background()
// outside of an entry point.
func Current() stdcontext.Context {
	contextStore.RLock()
	defer contextStore.RUnlock()
	if contextStore.ctx == nil {
		return stdcontext.Background()
	}
	return contextStore.ctx
}

// Reset resets the current context to background. Call it (usually via
// defer) when an entry point returns.
func Reset() {
	Set(stdcontext.Background())
}

// WithCall annotates parent with the session id and entry point.
func WithCall(parent stdcontext.Context, session uint64, entryPoint string) stdcontext.Context {
	if parent == nil {
		parent = stdcontext.Background()
	}
	return WithEntryPoint(stdcontext.WithValue(parent, SessionKey, session), entryPoint)
}

// WithEntryPoint annotates parent with the entry point only, for calls made
// before a session exists.
func WithEntryPoint(parent stdcontext.Context, entryPoint string) stdcontext.Context {
	if parent == nil {
		parent = stdcontext.Background()
	}
	return stdcontext.WithValue(parent, EntryPointKey, entryPoint)
}

// Attrs returns the call annotations of ctx as log attributes.
func Attrs(ctx stdcontext.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if session, ok := ctx.Value(SessionKey).(uint64); ok {
		attrs = append(attrs, slog.Uint64(string(SessionKey), session))
	}
	if entry, ok := ctx.Value(EntryPointKey).(string); ok {
		attrs = append(attrs, slog.String(string(EntryPointKey), entry))
	}
	return attrs
}
