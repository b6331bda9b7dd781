package common

import (
	"errors"
	"fmt"
)

// Input defects: the photo lacks the requested data
var (
	ErrNoExifData              = errors.New("photo contains no EXIF data")
	ErrNoInterestingData       = errors.New("photo contains no data of interest")
	ErrInvalidCoordinateFormat = errors.New("invalid coordinate format")
)

// Enrichment and storage failures
var (
	ErrGeocodeUnavailable = errors.New("geocoding service unavailable")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorage            = errors.New("storage error")
)

// CoordinateError reports why a raw angular tag could not be converted
type CoordinateError struct {
	Message string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("Coordinate Error: %s", e.Message)
}

func (e *CoordinateError) Unwrap() error {
	return ErrInvalidCoordinateFormat
}

// StorageError wraps a failed database operation. Transient is set when the
// failure was a lost connection that survived every retry.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("Storage Error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Transient {
		return []error{ErrStorageUnavailable, e.Err}
	}
	return []error{ErrStorage, e.Err}
}

type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("Configuration Error: %s", e.Message)
}

func NewCoordinateError(format string, args ...any) error {
	return &CoordinateError{Message: fmt.Sprintf(format, args...)}
}

func NewStorageError(op string, transient bool, err error) error {
	return &StorageError{Op: op, Transient: transient, Err: err}
}

func NewConfigError(message string) error {
	return &ConfigError{Message: message}
}

// IsInputDefect reports whether err means the photo itself lacks data
func IsInputDefect(err error) bool {
	return errors.Is(err, ErrNoExifData) ||
		errors.Is(err, ErrNoInterestingData) ||
		errors.Is(err, ErrInvalidCoordinateFormat)
}
