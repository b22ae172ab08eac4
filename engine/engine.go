// Package engine orchestrates the audit pipeline: build, validate, sanitize,
// filter, then fan out to every configured storage backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vigil-systems/vigil/audit"
	"github.com/vigil-systems/vigil/filter"
	"github.com/vigil-systems/vigil/sanitize"
	"github.com/vigil-systems/vigil/storage"
	"github.com/vigil-systems/vigil/storage/file"
)

// Config holds engine-level settings.
type Config struct {
	// Enabled gates the whole pipeline. A disabled engine accepts calls and
	// returns ErrDisabled without touching storage.
	Enabled bool

	// Application names the producing application; it feeds the default
	// file backend's filename and the event system block.
	Application string

	// Environment tags events (production, staging, ...).
	Environment string

	// SanitizationEnabled gates PII redaction. Leave on outside of tests.
	SanitizationEnabled bool

	// FailOnSanitizationError rejects an event when the sanitizer itself
	// faults, rather than storing it partially sanitized.
	FailOnSanitizationError bool

	// SigningKey enables tamper-evident HMAC signatures on stored events
	// when non-empty.
	SigningKey string

	Logger *slog.Logger
}

// DefaultConfig returns a Config with the pipeline fully enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Application:             "audit",
		SanitizationEnabled:     true,
		FailOnSanitizationError: true,
	}
}

// Entry is the caller-facing shape for Log. Only Operation, Category and
// ActionType are required; everything else enriches the event.
type Entry struct {
	Operation   string
	Category    string
	ActionType  string
	Description string
	Session     *audit.SessionContext
	Actor       *audit.ActorContext
	Resource    *audit.ResourceInfo
	Parameters  map[string]any
	Result      *audit.ActionResult
	Performance *audit.PerformanceMetrics
	Error       error
	Custom      map[string]any
	Metadata    map[string]any
}

// Stats is a snapshot of engine counters.
type Stats struct {
	EventsLogged     uint64 `json:"events_logged"`
	EventsSuppressed uint64 `json:"events_suppressed"`
	Errors           uint64 `json:"errors"`
}

// Engine runs the audit pipeline. Safe for concurrent use.
type Engine struct {
	cfg       Config
	sanitizer *sanitize.Sanitizer
	filters   *filter.Chain
	backends  []storage.Backend
	signer    *audit.EventSigner
	logger    *slog.Logger

	statsMu sync.Mutex
	stats   Stats

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackends sets the storage backends events fan out to.
func WithBackends(backends ...storage.Backend) Option {
	return func(e *Engine) { e.backends = append(e.backends, backends...) }
}

// WithFilters sets the filter chain applied after sanitization.
func WithFilters(chain *filter.Chain) Option {
	return func(e *Engine) {
		if chain != nil {
			e.filters = chain
		}
	}
}

// WithSanitizer replaces the default sanitizer, e.g. one carrying custom
// rules.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.sanitizer = s
		}
	}
}

// New creates an Engine. When no backend is configured a file backend
// writing JSON under ./logs/audit is created so events are never silently
// dropped.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Application == "" {
		cfg.Application = "audit"
	}

	e := &Engine{
		cfg:     cfg,
		filters: filter.NewChain(),
		logger:  cfg.Logger,
	}
	e.sanitizer = sanitize.New(sanitize.WithLogger(cfg.Logger))
	if cfg.SigningKey != "" {
		e.signer = audit.NewEventSigner(cfg.SigningKey)
	}

	for _, opt := range opts {
		opt(e)
	}

	if len(e.backends) == 0 {
		fallback, err := file.New(file.Config{
			Directory: "./logs/audit",
			Format:    file.FormatJSON,
			AppName:   cfg.Application,
			Logger:    cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create default file backend: %w", err)
		}
		e.backends = append(e.backends, fallback)
		cfg.Logger.Info("no storage backends configured, using default file backend",
			slog.String("directory", "./logs/audit"),
		)
	}

	backendNames := make([]string, 0, len(e.backends))
	for _, b := range e.backends {
		backendNames = append(backendNames, b.Name())
	}
	cfg.Logger.Info("audit engine initialized",
		slog.Bool("enabled", cfg.Enabled),
		slog.String("application", cfg.Application),
		slog.Bool("sanitization", cfg.SanitizationEnabled),
		slog.Int("filters", e.filters.Len()),
		slog.Any("backends", backendNames),
	)

	return e, nil
}

// Log builds an event from the entry and runs it through the pipeline. It
// returns the stored event, or nil with ErrDisabled / ErrSuppressed when the
// engine is off or a filter dropped the event. Both are expected outcomes;
// callers treat them as non-fatal via errors.Is.
func (e *Engine) Log(ctx context.Context, entry Entry) (*audit.AuditEvent, error) {
	if !e.cfg.Enabled {
		return nil, audit.ErrDisabled
	}

	event := e.buildEvent(entry)
	return e.process(ctx, event)
}

// LogEvent runs a pre-built event through the pipeline. Missing identity
// fields are filled in before validation.
func (e *Engine) LogEvent(ctx context.Context, event *audit.AuditEvent) (*audit.AuditEvent, error) {
	if !e.cfg.Enabled {
		return nil, audit.ErrDisabled
	}
	if event == nil {
		e.countError()
		return nil, &audit.ProcessingError{Stage: "validate", Err: fmt.Errorf("event is nil")}
	}
	event.FillDefaults()
	return e.process(ctx, event)
}

// BatchItemError ties a pipeline error to the index of the event that caused
// it. Suppressed events appear with ErrSuppressed.
type BatchItemError struct {
	Index int
	Err   error
}

// LogBatch runs every event through the pipeline and fans the accepted ones
// out to storage together, one bulk write per backend that supports it. Each
// event succeeds or fails independently; the returned slice holds the stored
// events and the item errors report the rest by input index.
func (e *Engine) LogBatch(ctx context.Context, events []*audit.AuditEvent) ([]*audit.AuditEvent, []BatchItemError) {
	if !e.cfg.Enabled {
		itemErrs := make([]BatchItemError, len(events))
		for i := range events {
			itemErrs[i] = BatchItemError{Index: i, Err: audit.ErrDisabled}
		}
		return nil, itemErrs
	}

	var accepted []*audit.AuditEvent
	var acceptedIdx []int
	var itemErrs []BatchItemError

	for i, event := range events {
		if event == nil {
			e.countError()
			itemErrs = append(itemErrs, BatchItemError{Index: i, Err: &audit.ProcessingError{Stage: "validate", Err: fmt.Errorf("event is nil")}})
			continue
		}
		event.FillDefaults()

		prepared, err := e.prepare(event)
		if err != nil {
			itemErrs = append(itemErrs, BatchItemError{Index: i, Err: err})
			continue
		}
		accepted = append(accepted, prepared)
		acceptedIdx = append(acceptedIdx, i)
	}

	if len(accepted) == 0 {
		return nil, itemErrs
	}

	if err := e.storeBatch(ctx, accepted); err != nil {
		e.countError()
		for _, idx := range acceptedIdx {
			itemErrs = append(itemErrs, BatchItemError{Index: idx, Err: err})
		}
		return nil, itemErrs
	}

	e.statsMu.Lock()
	e.stats.EventsLogged += uint64(len(accepted))
	e.statsMu.Unlock()

	return accepted, itemErrs
}

func (e *Engine) buildEvent(entry Entry) *audit.AuditEvent {
	event := audit.NewEvent()
	event.Action = audit.ActionContext{
		Type:        entry.ActionType,
		Category:    entry.Category,
		Operation:   entry.Operation,
		Description: entry.Description,
		Resource:    entry.Resource,
		Parameters:  audit.CaptureParams(entry.Parameters),
		Result:      entry.Result,
	}
	event.Session = entry.Session
	event.Actor = entry.Actor
	event.Performance = entry.Performance
	event.Custom = entry.Custom
	event.Metadata = entry.Metadata

	if entry.Error != nil {
		event.Error = &audit.ErrorInfo{
			Occurred: true,
			Type:     fmt.Sprintf("%T", entry.Error),
			Message:  entry.Error.Error(),
		}
	}

	event.System = map[string]any{
		"application": e.cfg.Application,
	}
	if e.cfg.Environment != "" {
		event.System["environment"] = e.cfg.Environment
	}

	return event
}

func (e *Engine) process(ctx context.Context, event *audit.AuditEvent) (*audit.AuditEvent, error) {
	event, err := e.prepare(event)
	if err != nil {
		return nil, err
	}

	if err := e.store(ctx, event); err != nil {
		e.countError()
		return nil, err
	}

	e.statsMu.Lock()
	e.stats.EventsLogged++
	e.statsMu.Unlock()

	return event, nil
}

// prepare runs the pre-storage stages: validate, sanitize, filter, sign.
func (e *Engine) prepare(event *audit.AuditEvent) (*audit.AuditEvent, error) {
	if err := event.Validate(); err != nil {
		e.countError()
		return nil, &audit.ProcessingError{Stage: "validate", Err: err}
	}

	if e.cfg.SanitizationEnabled {
		sanitized, err := e.sanitizeEvent(event)
		if err != nil {
			if e.cfg.FailOnSanitizationError {
				e.countError()
				return nil, err
			}
			e.logger.Warn("sanitization fault, continuing with partially sanitized event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		} else {
			event = sanitized
		}
	}

	if !e.filters.Keep(event) {
		e.statsMu.Lock()
		e.stats.EventsSuppressed++
		e.statsMu.Unlock()
		return nil, audit.ErrSuppressed
	}

	// Signing happens after sanitization and filtering so the signature
	// covers exactly what storage receives.
	if e.signer != nil {
		if err := e.signer.SignEvent(event); err != nil {
			e.countError()
			return nil, &audit.ProcessingError{Stage: "sign", Err: err}
		}
	}

	return event, nil
}

// sanitizeEvent shields the pipeline from sanitizer faults. The sanitizer
// already absorbs per-value panics; this catches anything escaping it so the
// FailOnSanitizationError policy can apply.
func (e *Engine) sanitizeEvent(event *audit.AuditEvent) (sanitized *audit.AuditEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			sanitized = nil
			err = &audit.ProcessingError{Stage: "sanitize", Err: fmt.Errorf("sanitizer panic: %v", r)}
		}
	}()
	return e.sanitizer.SanitizeEvent(event), nil
}

// store fans the event out to every backend. A backend failure is isolated
// and logged; the call errors only when every backend failed. The returned
// error wraps each backend's *audit.StorageError, reachable via errors.As.
func (e *Engine) store(ctx context.Context, event *audit.AuditEvent) error {
	var failed []error
	for _, backend := range e.backends {
		if err := backend.Store(ctx, event); err != nil {
			e.logger.Error("backend store failed",
				slog.String("backend", backend.Name()),
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			failed = append(failed, err)
		}
	}

	if len(failed) == len(e.backends) {
		return &audit.ProcessingError{Stage: "store", Err: errors.Join(failed...)}
	}
	return nil
}

// storeBatch fans a batch of accepted events out to every backend, using one
// bulk write where the backend supports it. The isolation rule matches
// store: a backend failure is logged and the call errors only when every
// backend failed, with the per-backend *audit.StorageError values wrapped in
// the returned error.
func (e *Engine) storeBatch(ctx context.Context, events []*audit.AuditEvent) error {
	var failed []error
	for _, backend := range e.backends {
		if bb, ok := backend.(storage.BatchBackend); ok {
			if _, err := bb.StoreBatch(ctx, events); err != nil {
				e.logger.Error("backend batch store failed",
					slog.String("backend", backend.Name()),
					slog.Int("events", len(events)),
					slog.String("error", err.Error()),
				)
				failed = append(failed, err)
			}
			continue
		}

		var backendErr error
		for _, event := range events {
			if err := backend.Store(ctx, event); err != nil {
				e.logger.Error("backend store failed",
					slog.String("backend", backend.Name()),
					slog.String("event_id", event.EventID),
					slog.String("error", err.Error()),
				)
				backendErr = err
			}
		}
		if backendErr != nil {
			failed = append(failed, backendErr)
		}
	}

	if len(failed) == len(e.backends) {
		return &audit.ProcessingError{Stage: "store", Err: errors.Join(failed...)}
	}
	return nil
}

func (e *Engine) countError() {
	e.statsMu.Lock()
	e.stats.Errors++
	e.statsMu.Unlock()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// ResetStats zeroes the engine counters.
func (e *Engine) ResetStats() {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats = Stats{}
}

// Shutdown closes all backends exactly once. Subsequent calls return the
// first result.
func (e *Engine) Shutdown() error {
	e.closeOnce.Do(func() {
		var errs []error
		for _, backend := range e.backends {
			if err := backend.Close(); err != nil {
				e.logger.Error("backend close failed",
					slog.String("backend", backend.Name()),
					slog.String("error", err.Error()),
				)
				errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			}
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Info("audit engine shut down")
	})
	return e.closeErr
}
