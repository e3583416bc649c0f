// Package plugin exports the AFL++ custom mutator entry points
// (afl_custom_*) for one registered mutator type.
//
// A mutator library is a main package built with -buildmode=c-shared that
// imports this package and registers its constructor from an init function:
//
//	func init() {
//		plugin.Register(reverse.New)
//	}
//
//	func main() {}
//
// Settings, logging and metrics are configured on the first entry point call,
// from the AFLPP_GO_MUTATOR_* environment variables.
package plugin

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/reglet-dev/aflpp-mutator-sdk/application/config"
	"github.com/reglet-dev/aflpp-mutator-sdk/application/mutator"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
	"github.com/reglet-dev/aflpp-mutator-sdk/infrastructure/metrics"
	"github.com/reglet-dev/aflpp-mutator-sdk/internal/bridge"
	"github.com/reglet-dev/aflpp-mutator-sdk/log"
)

var (
	mu         sync.Mutex
	registered mutator.InitFunc
	settings   = config.Default()
	recorder   ports.Recorder = metrics.Nop{}

	setupOnce sync.Once
	active    *bridge.Bridge
	setupErr  error
)

// Register installs the constructor of the library's mutator type. It must
// be called exactly once, before the host calls afl_custom_init.
func Register[M mutator.Mutator](init func(host *entities.HostState, seed uint32) M) {
	if init == nil {
		panic("plugin: Register called with a nil constructor")
	}
	install(func(host *entities.HostState, seed uint32) mutator.Mutator {
		m := init(host, seed)
		if isNil(m) {
			return nil
		}
		return m
	})
}

// RegisterFallible installs a constructor for a mutator whose operations can
// fail. The first error from any operation, construction included, is passed
// to handler, which must not return: it should log and panic or exit.
func RegisterFallible[F mutator.Fallible](init func(host *entities.HostState, seed uint32) (F, error), handler mutator.ErrorHandler) {
	if init == nil || handler == nil {
		panic("plugin: RegisterFallible needs a constructor and an error handler")
	}
	install(mutator.AdaptInit(init, handler))
}

func install(init mutator.InitFunc) {
	mu.Lock()
	defer mu.Unlock()
	if registered != nil {
		panic("plugin: a mutator is already registered")
	}
	registered = init
}

// Settings returns the settings in effect. Before the first entry point call
// they are the defaults.
func Settings() config.Config {
	mu.Lock()
	defer mu.Unlock()
	return settings
}

func currentRecorder() ports.Recorder {
	mu.Lock()
	defer mu.Unlock()
	return recorder
}

// current returns the bridge, configuring the process on first use. A setup
// failure panics on every call, which the export guard turns into an abort.
func current() *bridge.Bridge {
	setupOnce.Do(func() {
		active, setupErr = setup()
	})
	if setupErr != nil {
		panic(setupErr)
	}
	return active
}

func setup() (*bridge.Bridge, error) {
	mu.Lock()
	init := registered
	mu.Unlock()
	if init == nil {
		return nil, fmt.Errorf("plugin: no mutator registered; call plugin.Register from an init function")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("plugin: failed to load settings: %w", err)
	}
	logOpts, err := cfg.LogOptions()
	if err != nil {
		return nil, err
	}
	if _, err := log.Setup(logOpts); err != nil {
		return nil, fmt.Errorf("plugin: failed to set up logging: %w", err)
	}

	var rec ports.Recorder = metrics.Nop{}
	if cfg.MetricsFile != "" {
		rec = metrics.New(metrics.WithTextfile(cfg.MetricsFile))
	}

	mu.Lock()
	settings = cfg
	recorder = rec
	mu.Unlock()

	return bridge.New(init,
		bridge.WithRecorder(rec),
		bridge.WithStrictBounds(cfg.StrictBounds),
	), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
