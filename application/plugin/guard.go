package plugin

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/reglet-dev/aflpp-mutator-sdk/log"
)

// guard must be deferred first in every exported entry point. A panic must
// not unwind into the host, so it is logged with its stack, metrics and logs
// are flushed, and the process aborts.
func guard(entryPoint string) {
	r := recover()
	if r == nil {
		return
	}
	fatal(entryPoint, r, debug.Stack())
}

func fatal(entryPoint string, r any, stack []byte) {
	var detail *entities.ErrorDetail
	if err, ok := r.(error); ok {
		detail = errors.ToErrorDetail(err)
	} else {
		detail = entities.NewErrorDetail("panic", fmt.Sprintf("plugin panic: %v", r))
	}
	detail.WithStack(stack)

	slog.Error("sdk: fatal error in mutator, aborting",
		"entry_point", entryPoint,
		"error", fmt.Sprint(r),
		"type", detail.Type,
		"stack", string(detail.Stack),
	)
	if err := currentRecorder().Flush(); err != nil {
		slog.Error("sdk: failed to flush metrics", "error", err)
	}
	_ = log.Sync()
	abort()
}
