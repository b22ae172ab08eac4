package audit

import (
	"errors"
	"fmt"
)

// Sentinel outcomes returned by the engine. Both are well-defined non-fatal
// results: callers can test with errors.Is and ignore them.
var (
	// ErrDisabled is returned when the engine is disabled by configuration.
	ErrDisabled = errors.New("audit engine disabled")

	// ErrSuppressed is returned when a configured filter dropped the event.
	ErrSuppressed = errors.New("event suppressed by filter")
)

// ValidationError reports a malformed or out-of-range event field. It is the
// caller's fault and is surfaced before any backend is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProcessingError reports a fault in the processing pipeline, such as an
// invalid custom sanitization pattern or a sanitization failure that the
// engine is configured to treat as fatal.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// StorageError reports that one or more storage backends failed to persist an
// event. The engine returns it only when every configured backend failed.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage backend %s: %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid or unresolvable configuration value.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}
