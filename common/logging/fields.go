package logging

import "log/slog"

// Common field names for consistent logging across packages.
const (
	FieldBackend   = "backend"
	FieldCategory  = "category"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldIP        = "ip"
	FieldMethod    = "method"
	FieldOperation = "operation"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldUsername  = "username"
)

// Backend returns a slog attribute for a storage backend name.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// Category returns a slog attribute for an action category.
func Category(category string) slog.Attr {
	return slog.String(FieldCategory, category)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Operation returns a slog attribute for an audited operation name.
func Operation(op string) slog.Attr {
	return slog.String(FieldOperation, op)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Username returns a slog attribute for the acting username.
func Username(name string) slog.Attr {
	return slog.String(FieldUsername, name)
}
