// Package config loads the SDK's runtime settings.
//
// Settings are read once per process, in increasing precedence: built-in
// defaults, the YAML file named by AFLPP_GO_MUTATOR_CONFIG, and individual
// AFLPP_GO_MUTATOR_* environment variables.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/aflpp-mutator-sdk/application/schema"
	"github.com/reglet-dev/aflpp-mutator-sdk/application/validation"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/errors"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
	"github.com/reglet-dev/aflpp-mutator-sdk/infrastructure/parser"
	"github.com/reglet-dev/aflpp-mutator-sdk/log"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvConfig       = "AFLPP_GO_MUTATOR_CONFIG"
	EnvLogLevel     = "AFLPP_GO_MUTATOR_LOG_LEVEL"
	EnvLogFormat    = "AFLPP_GO_MUTATOR_LOG_FORMAT"
	EnvLogFile      = "AFLPP_GO_MUTATOR_LOG_FILE"
	EnvLogSource    = "AFLPP_GO_MUTATOR_LOG_SOURCE"
	EnvMetricsFile  = "AFLPP_GO_MUTATOR_METRICS_FILE"
	EnvStrictBounds = "AFLPP_GO_MUTATOR_STRICT_BOUNDS"
	EnvWasmModule   = "AFLPP_GO_MUTATOR_WASM_MODULE"
)

// Config holds the SDK settings.
type Config struct {
	LogLevel     string `yaml:"log_level" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	LogFormat    string `yaml:"log_format" json:"log_format,omitempty" validate:"omitempty,oneof=console json" jsonschema:"enum=console,enum=json,default=console"`
	LogFile      string `yaml:"log_file" json:"log_file,omitempty" jsonschema:"description=Write the log to this file instead of stderr"`
	MetricsFile  string `yaml:"metrics_file" json:"metrics_file,omitempty" jsonschema:"description=Write Prometheus metrics here on deinit and abort"`
	WasmModule   string `yaml:"wasm_module" json:"wasm_module,omitempty" validate:"omitempty,file" jsonschema:"description=WebAssembly mutator module loaded by the wasm host plugin"`
	LogSource    bool   `yaml:"log_source" json:"log_source,omitempty"`
	StrictBounds bool   `yaml:"strict_bounds" json:"strict_bounds,omitempty" jsonschema:"default=true,description=Abort when a replacement exceeds max_size instead of truncating it"`
}

// validate is a package-level singleton; building a validator is expensive.
var validate = newValidator()

// newValidator reports fields by their YAML key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    log.FormatConsole,
		StrictBounds: true,
	}
}

// Load reads the settings from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadFrom reads the settings using lookup for environment variables.
func LoadFrom(lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path, ok := lookup(EnvConfig); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, &errors.ConfigError{Field: EnvConfig, Err: err}
		}
		if err := Decode(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode checks a YAML document against the schema and decodes it over cfg.
func Decode(data []byte, cfg *Config) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &errors.ConfigError{Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}
	if doc != nil {
		v, err := schemaValidator()
		if err != nil {
			return err
		}
		if err := v.Validate(doc); err != nil {
			return &errors.ConfigError{Err: err}
		}
	}

	var p ports.ConfigParser = parser.NewYamlConfigParser(true)
	if err := p.Parse(data, cfg); err != nil {
		return &errors.ConfigError{Err: fmt.Errorf("failed to decode YAML: %w", err)}
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string, normalize func(string) string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = normalize(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &errors.ConfigError{Field: key, Err: err}
		}
		*dst = b
		return nil
	}
	keep := func(s string) string { return s }

	str(EnvLogLevel, &cfg.LogLevel, strings.ToLower)
	str(EnvLogFormat, &cfg.LogFormat, strings.ToLower)
	str(EnvLogFile, &cfg.LogFile, keep)
	str(EnvMetricsFile, &cfg.MetricsFile, keep)
	str(EnvWasmModule, &cfg.WasmModule, keep)
	if err := boolean(EnvLogSource, &cfg.LogSource); err != nil {
		return err
	}
	return boolean(EnvStrictBounds, &cfg.StrictBounds)
}

// Validate checks field constraints, reporting the first failing field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &errors.ConfigError{
			Field: fe.Field(),
			Err:   fmt.Errorf("value %q fails %q", fmt.Sprint(fe.Value()), fe.Tag()),
		}
	}
	return &errors.ConfigError{Err: err}
}

// LogOptions converts the logging settings.
func (c Config) LogOptions() (log.Options, error) {
	opts := log.Options{
		File:      c.LogFile,
		Format:    c.LogFormat,
		AddSource: c.LogSource,
	}
	if c.LogLevel != "" {
		level, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			return opts, &errors.ConfigError{Field: "log_level", Err: err}
		}
		opts.Level = level
	}
	return opts, nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	return schema.GenerateSchema(&Config{}, "AFL++ Go mutator settings")
}

func schemaValidator() (*validation.SchemaValidator, error) {
	raw, err := Schema()
	if err != nil {
		return nil, err
	}
	return validation.NewSchemaValidator("config.json", raw)
}
