// Package errors provides domain-specific error types for the SDK.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
)

// ErrHandlerReturned is the sentinel behind HandlerReturnedError.
var ErrHandlerReturned = stdErrors.New("error handler did not panic")

// DetailedError is implemented by error types that can describe themselves
// as a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ContractViolation is raised (as a panic value) when the host or a plugin
// breaks the calling contract: a forbidden NULL pointer, a destroyed handle,
// an invalid outcome. It is never recoverable.
type ContractViolation struct {
	EntryPoint string
	Reason     string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", e.EntryPoint, e.Reason)
}

// ToErrorDetail implements DetailedError.
func (e *ContractViolation) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Reason, Type: "contract", Code: e.EntryPoint}
}

// NewContractViolation builds a ContractViolation with a formatted reason.
func NewContractViolation(entryPoint, format string, args ...any) *ContractViolation {
	return &ContractViolation{EntryPoint: entryPoint, Reason: fmt.Sprintf(format, args...)}
}

// HandlerReturnedError is raised when a fallible mutator's error handler
// returns normally instead of terminating control flow.
type HandlerReturnedError struct {
	Err error
	Op  string
}

func (e *HandlerReturnedError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Op, ErrHandlerReturned, e.Err)
}

func (e *HandlerReturnedError) Unwrap() []error {
	return []error{ErrHandlerReturned, e.Err}
}

// ToErrorDetail implements DetailedError.
func (e *HandlerReturnedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: ErrHandlerReturned.Error(),
		Type:    "plugin",
		Code:    e.Op,
		Wrapped: ToErrorDetail(e.Err),
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// WasmError represents a failure while driving a WebAssembly guest mutator.
type WasmError struct {
	Err    error
	Op     string
	Export string
}

func (e *WasmError) Error() string {
	if e.Export != "" {
		return fmt.Sprintf("wasm %s failed (export %q): %v", e.Op, e.Export, e.Err)
	}
	return fmt.Sprintf("wasm %s failed: %v", e.Op, e.Err)
}

func (e *WasmError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WasmError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "wasm", Code: e.Export}
}

// MemoryError represents a failed C allocation.
type MemoryError struct {
	Requested uintptr
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory allocation failed: requested %d bytes", e.Requested)
}

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "malloc"}
}
