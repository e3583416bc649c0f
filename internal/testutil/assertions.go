// Package testutil provides common test utilities and assertions for SDK tests
package testutil

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/reglet-dev/aflpp-mutator-sdk/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ObserveLogs routes the default slog logger into an in-memory zap core for
// the rest of the test.
func ObserveLogs(t testing.TB) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := slog.Default()
	slog.SetDefault(slog.New(log.NewHandler(core, log.WithLevel(slog.LevelDebug))))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return logs
}

// RequirePanicValue runs fn, requires it to panic with a value of type T and
// returns that value.
func RequirePanicValue[T any](t testing.TB, fn func()) (value T) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		v, ok := r.(T)
		require.True(t, ok, "panic value has type %T, want %T", r, value)
		value = v
	}()
	fn()
	return value
}

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t testing.TB, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}
