package entities

import "fmt"

// ErrorDetail describes a fatal condition for the abort log.
//
// Type is one of "contract", "plugin", "panic", "config", "wasm" or
// "internal". Code names the entry point or operation involved, when known.
type ErrorDetail struct {
	Wrapped *ErrorDetail `json:"wrapped,omitempty"`
	Message string       `json:"message"`
	Type    string       `json:"type"`
	Code    string       `json:"code,omitempty"`
	Stack   []byte       `json:"stack,omitempty"`
}

// Error renders the detail as "type: message [code]: wrapped". Internal
// errors omit the type.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped.Error())
	}
	return msg
}

// NewErrorDetail creates an ErrorDetail.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{Type: errorType, Message: message}
}

// WithCode sets Code and returns the receiver.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}

// WithStack sets Stack and returns the receiver.
func (e *ErrorDetail) WithStack(stack []byte) *ErrorDetail {
	e.Stack = stack
	return e
}
