// Unified error handling for the quantizer host
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigConflict   ErrorCode = "CONFIG_CONFLICT"

	// Quantizer core errors
	ErrInvalidScale ErrorCode = "INVALID_SCALE"
	ErrOutOfRange   ErrorCode = "OUT_OF_RANGE"
	ErrCodeClamped  ErrorCode = "CODE_CLAMPED"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"
	ErrDriverIO    ErrorCode = "DRIVER_IO"
)

// HostError is the unified error type for the host system
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Channel is the affected output channel (-1 when not channel-specific)
	Channel int

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetChannel sets the affected channel
func (e *HostError) SetChannel(channel int) *HostError {
	e.Channel = channel
	return e
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Channel: -1,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Channel: -1,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for missing or invalid config option
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigConflictError creates an error for incompatible configuration.
// Conflicts are fatal at startup; there is no degraded mode.
func ConfigConflictError(message string) *HostError {
	return New(ErrConfigConflict, message)
}

// Quantizer core errors

// InvalidScaleError creates an error for a malformed scale definition or edit
func InvalidScaleError(scale string, reason string) *HostError {
	return New(ErrInvalidScale, fmt.Sprintf("scale '%s': %s", scale, reason)).
		SetSection(scale)
}

// OutOfRangeError creates an error for an index outside a table's bounds
func OutOfRangeError(what string, index, count int) *HostError {
	return New(ErrOutOfRange, fmt.Sprintf("%s index %d out of range [0, %d)", what, index, count))
}

// CodeClampedError creates a diagnostic for output code clamping.
// The output is still produced; processing never halts on this.
func CodeClampedError(channel int, code uint16) *HostError {
	return New(ErrCodeClamped, fmt.Sprintf("channel %d output clamped to %d", channel, code)).
		SetChannel(channel)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure
func RuntimeErrorInit(component string, reason string) *HostError {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// DriverIOError creates an error for hardware tether communication failure
func DriverIOError(operation string, err error) *HostError {
	return Wrap(err, ErrDriverIO, fmt.Sprintf("driver %s failed", operation))
}

// RecoverPanic safely recovers from panic and converts to error
func RecoverPanic() *HostError {
	if r := recover(); r != nil {
		var err error
		switch x := r.(type) {
		case string:
			err = RuntimeError(fmt.Sprintf("panic: %s", x))
		case error:
			err = RuntimeError(x.Error())
		case runtime.Error:
			err = RuntimeError(x.Error())
		default:
			err = RuntimeError(fmt.Sprintf("panic: %v", x))
		}
		return err.(*HostError)
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if hostErr, ok := err.(*HostError); ok {
		return hostErr.Code == code
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigConflict)
}

// IsRecoverable reports whether processing may continue past the error.
// Clamped codes and rejected scale edits never halt the loop.
func IsRecoverable(err error) bool {
	return Is(err, ErrCodeClamped) || Is(err, ErrInvalidScale)
}
