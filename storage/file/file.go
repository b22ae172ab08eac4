// Package file implements date-rotated, permission-restricted file storage
// for audit events.
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vigil-systems/vigil/audit"
)

// Supported output formats.
const (
	FormatJSON  = "json"  // formatted object per record
	FormatJSONL = "jsonl" // compact object per line, safe for tailing
	FormatCSV   = "csv"   // flattened rows, one header per file
	FormatText  = "text"  // fixed human-readable block
)

// DefaultFilenamePattern names one file per application per day.
const DefaultFilenamePattern = "{app_name}_audit_{date}.log"

// Config holds file backend settings.
type Config struct {
	Directory       string
	Format          string
	FilenamePattern string
	AppName         string
	Logger          *slog.Logger
}

// Backend writes events to one file per calendar day. The cached handle and
// rotation date are shared mutable state across all calling goroutines; a
// single mutex covers the whole check-rotation/write/header critical section
// so concurrent writers cannot interleave a rotation with a write or race
// the CSV header.
type Backend struct {
	directory string
	format    string
	pattern   string
	appName   string
	logger    *slog.Logger

	mu          sync.Mutex
	currentFile *os.File
	currentPath string
	currentDate string
	wroteHeader bool
	closed      bool
}

// New creates the backend and its directory with owner-only permissions.
func New(cfg Config) (*Backend, error) {
	if cfg.Directory == "" {
		cfg.Directory = "./logs/audit"
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.FilenamePattern == "" {
		cfg.FilenamePattern = DefaultFilenamePattern
	}
	if cfg.AppName == "" {
		cfg.AppName = "audit"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Format {
	case FormatJSON, FormatJSONL, FormatCSV, FormatText:
	default:
		return nil, &audit.ConfigurationError{Key: "format", Reason: fmt.Sprintf("unsupported format %q", cfg.Format)}
	}

	if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
		return nil, &audit.StorageError{Backend: "file", Err: fmt.Errorf("create directory: %w", err)}
	}
	// MkdirAll leaves existing directories untouched, so enforce the mode
	// explicitly. Failure is logged, not fatal: not every filesystem has
	// POSIX permission semantics.
	if err := os.Chmod(cfg.Directory, 0o700); err != nil {
		cfg.Logger.Warn("could not set restrictive permissions on audit directory",
			slog.String("directory", cfg.Directory),
			slog.String("error", err.Error()),
		)
	}

	return &Backend{
		directory: cfg.Directory,
		format:    cfg.Format,
		pattern:   cfg.FilenamePattern,
		appName:   cfg.AppName,
		logger:    cfg.Logger,
	}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string { return "file" }

// Store serializes the event to the file for its calendar day, rotating the
// cached handle when the date or resolved path changes.
func (b *Backend) Store(ctx context.Context, event *audit.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return &audit.StorageError{Backend: "file", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &audit.StorageError{Backend: "file", Err: fmt.Errorf("backend closed")}
	}

	date := event.Timestamp.UTC().Format("2006-01-02")
	path := b.filePath(date, event.Action.Category)

	if b.currentDate != date || b.currentPath != path {
		b.rotateLocked()
		b.currentDate = date
		b.currentPath = path
	}

	f, err := b.fileLocked(path)
	if err != nil {
		return &audit.StorageError{Backend: "file", Err: err}
	}

	switch b.format {
	case FormatJSON:
		err = b.writeJSON(f, event, true)
	case FormatJSONL:
		err = b.writeJSON(f, event, false)
	case FormatCSV:
		err = b.writeCSV(f, event)
	case FormatText:
		err = b.writeText(f, event)
	}
	if err != nil {
		return &audit.StorageError{Backend: "file", Err: err}
	}
	return nil
}

// Close flushes and releases the cached handle exactly once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.rotateLocked()
	return nil
}

func (b *Backend) filePath(date, category string) string {
	name := b.pattern
	name = strings.ReplaceAll(name, "{app_name}", b.appName)
	name = strings.ReplaceAll(name, "{date}", date)
	name = strings.ReplaceAll(name, "{category}", strings.ToLower(category))
	return filepath.Join(b.directory, name)
}

// rotateLocked closes the current handle. Callers hold b.mu.
func (b *Backend) rotateLocked() {
	if b.currentFile == nil {
		return
	}
	if err := b.currentFile.Close(); err != nil {
		b.logger.Error("error closing audit file",
			slog.String("path", b.currentPath),
			slog.String("error", err.Error()),
		)
	} else {
		b.logger.Debug("rotated audit file", slog.String("path", b.currentPath))
	}
	b.currentFile = nil
	b.wroteHeader = false
}

// fileLocked returns the cached handle, opening it if needed. Callers hold
// b.mu.
func (b *Backend) fileLocked(path string) (*os.File, error) {
	if b.currentFile != nil {
		return b.currentFile, nil
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	if isNew {
		if err := f.Chmod(0o600); err != nil {
			b.logger.Warn("could not set restrictive permissions on audit file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	} else if info, err := f.Stat(); err == nil && info.Size() > 0 {
		// appending to an existing non-empty CSV file: header already there
		b.wroteHeader = true
	}

	b.currentFile = f
	return f, nil
}

func (b *Backend) writeJSON(f *os.File, event *audit.AuditEvent, indent bool) error {
	data, err := event.ToJSON(indent)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return f.Sync()
}

var csvHeader = []string{
	"event_id", "timestamp", "category", "action_type", "operation",
	"username", "ip_address", "duration_ms", "status",
	"error_occurred", "error_type", "error_message",
}

func (b *Backend) writeCSV(f *os.File, event *audit.AuditEvent) error {
	w := csv.NewWriter(f)

	if !b.wroteHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		b.wroteHeader = true
	}

	if err := w.Write(flattenEvent(event)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Sync()
}

// flattenEvent projects the nested event onto the fixed CSV columns.
func flattenEvent(event *audit.AuditEvent) []string {
	var username, ip string
	if event.Actor != nil {
		username = event.Actor.Username
		ip = event.Actor.IPAddress
	}

	var durationMS string
	if event.Performance != nil && event.Performance.DurationMS != nil {
		durationMS = strconv.FormatFloat(*event.Performance.DurationMS, 'f', -1, 64)
	}

	var status string
	if event.Action.Result != nil {
		status = event.Action.Result.Status
	}

	var errOccurred, errType, errMessage string
	if event.Error != nil && event.Error.Occurred {
		errOccurred = "true"
		errType = event.Error.Type
		errMessage = event.Error.Message
	} else {
		errOccurred = "false"
	}

	return []string{
		event.EventID,
		event.Timestamp.Format(time.RFC3339Nano),
		event.Action.Category,
		event.Action.Type,
		event.Action.Operation,
		username,
		ip,
		durationMS,
		status,
		errOccurred,
		errType,
		errMessage,
	}
}

func (b *Backend) writeText(f *os.File, event *audit.AuditEvent) error {
	var sb strings.Builder
	rule := strings.Repeat("=", 80)

	sb.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&sb, "Event ID: %s\n", event.EventID)
	fmt.Fprintf(&sb, "Timestamp: %s\n", event.Timestamp.Format(time.RFC3339Nano))
	fmt.Fprintf(&sb, "Category: %s\n", event.Action.Category)
	fmt.Fprintf(&sb, "Action: %s\n", event.Action.Operation)
	fmt.Fprintf(&sb, "Type: %s\n", event.Action.Type)

	if event.Actor != nil && event.Actor.Username != "" {
		fmt.Fprintf(&sb, "User: %s\n", event.Actor.Username)
	}
	if len(event.Action.Parameters) > 0 {
		if params, err := json.Marshal(event.Action.Parameters); err == nil {
			fmt.Fprintf(&sb, "Parameters: %s\n", params)
		}
	}
	if event.Performance != nil && event.Performance.DurationMS != nil {
		fmt.Fprintf(&sb, "Duration: %.2fms\n", *event.Performance.DurationMS)
	}
	if event.Action.Result != nil {
		fmt.Fprintf(&sb, "Status: %s\n", event.Action.Result.Status)
	}
	if event.Error != nil && event.Error.Occurred {
		fmt.Fprintf(&sb, "\nERROR: %s: %s\n", event.Error.Type, event.Error.Message)
		if event.Error.StackTrace != "" {
			fmt.Fprintf(&sb, "Stack Trace:\n%s\n", event.Error.StackTrace)
		}
	}
	sb.WriteString(rule + "\n")

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return f.Sync()
}
