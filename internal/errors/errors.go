package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Error types for the annotation system
type ErrorType string

const (
	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeFileIO       ErrorType = "file_io"

	// Document errors
	ErrorTypeParse   ErrorType = "parse"
	ErrorTypePattern ErrorType = "pattern"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Network errors (community mapping library)
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
	ErrorTypeAccessDenied ErrorType = "access_denied"

	// Path errors
	ErrorTypeOutsideRoot ErrorType = "outside_root"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// ErrOutsideRoot is returned when a path does not belong to the project root
var ErrOutsideRoot = errors.New("path is outside the project root")

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileIO
	switch {
	case errors.Is(err, ErrOutsideRoot):
		errorType = ErrorTypeOutsideRoot
	case errors.Is(err, fs.ErrNotExist):
		errorType = ErrorTypeFileNotFound
	case isPermissionError(err):
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// isPermissionError checks if the error is a permission error
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	errStr := err.Error()
	return errStr == "permission denied" || errStr == "access denied"
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ParseError represents a mapping document that could not be decoded
type ParseError struct {
	Type       ErrorType
	Path       string
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(path string, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		Path:       path,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse error: %v", e.Underlying)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// NetworkError represents a failed request against the community library
type NetworkError struct {
	Type       ErrorType
	URL        string
	StatusCode int
	Underlying error
	Timestamp  time.Time
}

// NewNetworkError creates a transport-level error (no HTTP response)
func NewNetworkError(url string, err error) *NetworkError {
	return &NetworkError{
		Type:       ErrorTypeNetwork,
		URL:        url,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// NewStatusError classifies a non-200 response. A 403 whose body mentions the
// rate limit is reported as rate limited, any other 403 as access denied.
func NewStatusError(url string, status int, body string) *NetworkError {
	errorType := ErrorTypeNetwork
	if status == 403 {
		if strings.Contains(body, "rate limit exceeded") {
			errorType = ErrorTypeRateLimited
		} else {
			errorType = ErrorTypeAccessDenied
		}
	}
	return &NetworkError{
		Type:       errorType,
		URL:        url,
		StatusCode: status,
		Underlying: fmt.Errorf("unexpected status %d", status),
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	switch e.Type {
	case ErrorTypeRateLimited:
		return fmt.Sprintf("rate limited by %s: %v", e.URL, e.Underlying)
	case ErrorTypeAccessDenied:
		return fmt.Sprintf("access denied by %s: %v", e.URL, e.Underlying)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Underlying)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Underlying
}

// IsRateLimited reports whether the remote refused the request due to rate limiting
func (e *NetworkError) IsRateLimited() bool {
	return e.Type == ErrorTypeRateLimited
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// ErrOrNil returns nil when no errors were collected
func (e *MultiError) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Classify returns the most specific network classification found in err.
// Rate limiting wins over access denial, which wins over plain network failure.
func Classify(err error) ErrorType {
	var rank = map[ErrorType]int{
		ErrorTypeRateLimited:  3,
		ErrorTypeAccessDenied: 2,
		ErrorTypeNetwork:      1,
	}
	best := ErrorType("")
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		var netErr *NetworkError
		if errors.As(err, &netErr) && rank[netErr.Type] > rank[best] {
			best = netErr.Type
		}
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	if best == "" {
		return ErrorTypeInternal
	}
	return best
}
