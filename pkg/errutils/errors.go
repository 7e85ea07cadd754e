// Package errutils provides the error taxonomy shared by the pkgconnect packages.
// It defines sentinel errors for configuration, storage and identity problems, the typed
// errors returned by the connect protocol (ConnectServerError, ConnectSecurityError) and
// helpers for wrapping errors with context.
package errutils

import (
	"fmt"
)

// Common error types used throughout the library.
// Errors are grouped by their domain or functionality.
var (
	// Config errors are related to configuration file operations and validation.
	ErrEmptyConfigPath = fmt.Errorf(
		"config file path cannot be empty") // When config file path is empty

	ErrConfigParse = fmt.Errorf(
		"failed to parse config") // When config file cannot be parsed

	// ErrConfigValidation is returned when configuration values fail validation.
	ErrConfigValidation = fmt.Errorf("invalid configuration")

	ErrConfigEncode = fmt.Errorf(
		"failed to encode config") // When config cannot be encoded

	ErrConfigDirectory = fmt.Errorf(
		"failed to create config directory") // When config dir cannot be created

	ErrConfigFileCreate = fmt.Errorf(
		"failed to create config file") // When config file cannot be created

	// ErrConfigMarshal is returned when marshaling the config to YAML fails.
	ErrConfigMarshal = fmt.Errorf("failed to marshal config to YAML")

	// ErrHTTPTimeoutNegative is returned when a timeout is set to a negative value.
	ErrHTTPTimeoutNegative = fmt.Errorf("timeouts cannot be negative")

	// ErrCacheTTLNegative is returned when a cache max age is set to a negative value.
	ErrCacheTTLNegative = fmt.Errorf("cache max age cannot be negative")

	// ErrMaxConcurrentInvalid is returned when download.workers is less than 1.
	ErrMaxConcurrentInvalid = fmt.Errorf("download workers must be at least 1")

	// ErrInvalidLogLevel is returned when an invalid log level is specified.
	ErrInvalidLogLevel = fmt.Errorf("invalid log level")

	// ErrInvalidLogFormat is returned when an invalid log format is specified.
	ErrInvalidLogFormat = fmt.Errorf("invalid log format")

	// ErrInvalidBaseURL is returned when the connect base URL cannot be parsed.
	ErrInvalidBaseURL = fmt.Errorf("invalid connect base URL")

	// ErrValidation is returned for invalid user input.
	ErrValidation = fmt.Errorf("validation failed")

	// ErrNotRegistered is returned when an operation needs a logical instance id
	// and none has been registered or loaded.
	ErrNotRegistered = fmt.Errorf("instance is not registered")

	// ErrInvalidIdentity is returned when a logical instance id is malformed.
	ErrInvalidIdentity = fmt.Errorf("invalid instance identity")

	// ErrDigestUnavailable is returned when the configured digest method is unknown.
	ErrDigestUnavailable = fmt.Errorf("digest method unavailable")

	// ErrDownloadFailed is returned when a download operation fails.
	ErrDownloadFailed = fmt.Errorf("download failed")
)

// Wrap wraps an error with additional context.
// If the error is nil, Wrap returns nil.
//
// Example:
//
//	if err := someOperation(); err != nil {
//	    return errutils.Wrap(err, "failed to perform operation")
//	}
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
// If the error is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrInvalidLogFormatWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidLogFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidLogFormat, format)
}
