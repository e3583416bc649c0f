package callctx

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndCurrent(t *testing.T) {
	Reset()
	assert.Equal(t, context.Background(), Current(), "should default to background")

	expected := WithCall(context.Background(), 3, "afl_custom_fuzz")
	Set(expected)
	assert.Equal(t, expected, Current())

	Reset()
	assert.Equal(t, context.Background(), Current())
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want []slog.Attr
	}{
		{
			name: "annotated",
			ctx:  WithCall(context.Background(), 7, "afl_custom_queue_get"),
			want: []slog.Attr{slog.Uint64("session", 7), slog.String("entry_point", "afl_custom_queue_get")},
		},
		{
			name: "entry point only",
			ctx:  WithEntryPoint(context.Background(), "afl_custom_init"),
			want: []slog.Attr{slog.String("entry_point", "afl_custom_init")},
		},
		{
			name: "background",
			ctx:  context.Background(),
		},
		{
			name: "nil",
			ctx:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Attrs(tt.ctx)
			if assert.Len(t, got, len(tt.want)) {
				for i := range tt.want {
					assert.True(t, tt.want[i].Equal(got[i]), "attr %d: want %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestWithCall_NilParent(t *testing.T) {
	//nolint:staticcheck // SA1012: nil parent is the case under test
	ctx := WithCall(nil, 1, "afl_custom_init")
	assert.Equal(t, uint64(1), ctx.Value(SessionKey))
	assert.Equal(t, "afl_custom_init", ctx.Value(EntryPointKey))
}
