// Package errors provides structured error handling for scout.
// Errors carry a machine-readable code, a CLI exit code, and optional
// details and suggestions. Two errors match under errors.Is when their
// codes match.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitDevice     = 3 // Device unavailable or access denied
	ExitNotFound   = 4 // Resource not found
	ExitBackend    = 5 // Account backend unavailable
	ExitInProgress = 6 // Another discovery is running
)

// generalCode is the code assigned to errors that are not a ScoutError.
const generalCode = "GENERAL_ERROR"

// ScoutError is the structured error type for scout.
type ScoutError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *ScoutError) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ScoutError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ScoutError with the same code.
func (e *ScoutError) Is(target error) bool {
	var t *ScoutError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &ScoutError{
		Code:     generalCode,
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &ScoutError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &ScoutError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Device errors.
	ErrAccessDenied = &ScoutError{
		Code:       "DEVICE_ACCESS_DENIED",
		Message:    "device access denied",
		Suggestion: "reconnect the device and run discovery again",
		ExitCode:   ExitDevice,
	}

	ErrDeviceNotFound = &ScoutError{
		Code:     "DEVICE_NOT_FOUND",
		Message:  "no device connected for this state",
		ExitCode: ExitDevice,
	}

	ErrDescriptorMismatch = &ScoutError{
		Code:     "DESCRIPTOR_MISMATCH",
		Message:  "device returned a descriptor bundle of unexpected size",
		ExitCode: ExitDevice,
	}

	ErrInvalidMnemonic = &ScoutError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrDecryptionFailed = &ScoutError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong passphrase or corrupted file",
		ExitCode: ExitInput,
	}

	ErrInvalidPath = &ScoutError{
		Code:     "INVALID_PATH",
		Message:  "invalid derivation path",
		ExitCode: ExitInput,
	}

	ErrNotSupported = &ScoutError{
		Code:     "NOT_SUPPORTED",
		Message:  "operation not supported by this device",
		ExitCode: ExitDevice,
	}

	// Discovery errors.
	ErrDiscoveryInProgress = &ScoutError{
		Code:     "DISCOVERY_IN_PROGRESS",
		Message:  "discovery is already running for this device",
		ExitCode: ExitInProgress,
	}

	ErrScanCanceled = &ScoutError{
		Code:     "SCAN_CANCELED",
		Message:  "discovery scan was canceled",
		ExitCode: ExitGeneral,
	}

	ErrBackendUnavailable = &ScoutError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    "account backend kept failing",
		Suggestion: "check the backend URL for this network",
		ExitCode:   ExitBackend,
	}

	ErrUnknownNetwork = &ScoutError{
		Code:     "UNKNOWN_NETWORK",
		Message:  "unknown network",
		ExitCode: ExitInput,
	}

	ErrNetworkError = &ScoutError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitBackend,
	}

	// Config errors.
	ErrConfigNotFound = &ScoutError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &ScoutError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		ExitCode: ExitInput,
	}

	// Storage errors.
	ErrStoreCorrupted = &ScoutError{
		Code:     "STORE_CORRUPTED",
		Message:  "account store is corrupted",
		ExitCode: ExitGeneral,
	}
)

// New creates a new ScoutError with the given code and message.
func New(code, message string) *ScoutError {
	return &ScoutError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap prefixes the message of err with context while keeping its code.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *ScoutError
	if errors.As(err, &se) {
		return &ScoutError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      err,
			ExitCode:   se.ExitCode,
		}
	}

	return &ScoutError{
		Code:     generalCode,
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of the sentinel with cause attached.
func WithCause(sentinel *ScoutError, cause error) error {
	out := *sentinel
	out.Cause = cause
	return &out
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *ScoutError
	if errors.As(err, &se) {
		out := *se
		out.Details = details
		return &out
	}

	return &ScoutError{
		Code:     generalCode,
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *ScoutError
	if errors.As(err, &se) {
		out := *se
		out.Suggestion = suggestion
		return &out
	}

	return &ScoutError{
		Code:       generalCode,
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *ScoutError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *ScoutError
	if errors.As(err, &se) {
		return se.Code
	}
	return generalCode
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
