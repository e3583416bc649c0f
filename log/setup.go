package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output encodings accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects where and how the SDK logs.
type Options struct {
	// File receives the log when set; stderr is used otherwise.
	File      string
	Format    string
	Level     slog.Level
	AddSource bool
}

var (
	mu      sync.Mutex
	current = zap.NewNop()
	closeFn = func() {}
)

// Setup builds a zap logger from opts and installs a slog handler over it as
// the default logger. A previously opened log file is closed.
func Setup(opts Options) (*slog.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	var (
		sink    zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		release                     = func() {}
	)
	if opts.File != "" {
		ws, closer, err := zap.Open(opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink, release = ws, closer
	}

	core := zapcore.NewCore(enc, sink, zapLevel(opts.Level))
	logger := slog.New(NewHandler(core, WithLevel(opts.Level), WithSource(opts.AddSource)))

	mu.Lock()
	prevClose := closeFn
	_ = current.Sync()
	current = zap.New(core)
	closeFn = release
	mu.Unlock()

	slog.SetDefault(logger)
	prevClose()
	return logger, nil
}

// Logger returns the zap logger installed by the last Setup.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Sync flushes buffered log entries. Errors from syncing a terminal are
// expected and can be ignored.
func Sync() error {
	return Logger().Sync()
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// init configures the default slog handler so records logged before Setup
// still reach stderr.
func init() {
	if _, err := Setup(Options{Level: slog.LevelInfo}); err != nil {
		panic(err)
	}
}
