// Package audit defines the audit event model shared by the engine,
// the processing pipeline, the storage backends and the SDK client.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is the current event schema version.
const Version = "1.0.0"

// MaxBatchSize is the maximum number of events accepted in one batch
// submission.
const MaxBatchSize = 100

// Timestamp acceptance window. The future bound tolerates producer clock
// skew, not backdating.
const (
	maxFutureSkew = time.Hour
	maxPastAge    = 100 * 365 * 24 * time.Hour
)

// SessionContext holds request/session correlation identifiers.
type SessionContext struct {
	SessionID     string `json:"session_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ActorContext identifies who performed the action.
type ActorContext struct {
	Type      string   `json:"type,omitempty"`
	ID        string   `json:"id,omitempty"`
	Username  string   `json:"username,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	IPAddress string   `json:"ip_address,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// ResourceInfo describes the target resource of the action.
type ResourceInfo struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// ActionResult holds the outcome of the action.
type ActionResult struct {
	Status        string `json:"status,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	RowsAffected  *int   `json:"rows_affected,omitempty"`
	DataSizeBytes *int   `json:"data_size_bytes,omitempty"`
}

// ActionContext describes what was done. It is the only mandatory nested
// block on an event.
type ActionContext struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Operation   string         `json:"operation"`
	Description string         `json:"description,omitempty"`
	Resource    *ResourceInfo  `json:"resource,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Result      *ActionResult  `json:"result,omitempty"`
}

// PerformanceMetrics holds timing and resource usage data.
type PerformanceMetrics struct {
	DurationMS        *float64 `json:"duration_ms,omitempty"`
	CPUTimeMS         *float64 `json:"cpu_time_ms,omitempty"`
	MemoryMB          *float64 `json:"memory_mb,omitempty"`
	SlowQuery         bool     `json:"slow_query,omitempty"`
	ThresholdExceeded bool     `json:"threshold_exceeded,omitempty"`
}

// ErrorInfo holds error details when the audited action failed.
type ErrorInfo struct {
	Occurred   bool   `json:"occurred,omitempty"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
	Handled    bool   `json:"handled,omitempty"`
}

// AuditEvent is one structured record of an audited action. Unset optional
// blocks are omitted from every serialized form, never emitted as null.
type AuditEvent struct {
	EventID     string              `json:"event_id"`
	Timestamp   time.Time           `json:"timestamp"`
	Version     string              `json:"version"`
	Session     *SessionContext     `json:"session,omitempty"`
	Actor       *ActorContext       `json:"actor,omitempty"`
	Action      ActionContext       `json:"action"`
	Performance *PerformanceMetrics `json:"performance,omitempty"`
	Error       *ErrorInfo          `json:"error,omitempty"`
	System      map[string]any      `json:"system,omitempty"`
	Custom      map[string]any      `json:"custom,omitempty"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
}

// BatchRequest wraps multiple events for batch submission.
type BatchRequest struct {
	Events []AuditEvent `json:"events"`
}

// IngestResponse is returned for a single-event submission.
type IngestResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

// BatchError reports a failed event within a batch.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResponse is returned for a batch submission.
type BatchResponse struct {
	Status   string       `json:"status"`
	Accepted int          `json:"accepted"`
	Errors   []BatchError `json:"errors,omitempty"`
	EventIDs []string     `json:"event_ids"`
}

// NewEvent returns an event with event_id, timestamp and version filled.
func NewEvent() *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Version:   Version,
	}
}

// FillDefaults populates event_id, timestamp and version if they are unset.
func (e *AuditEvent) FillDefaults() {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Version == "" {
		e.Version = Version
	}
}

// Validate checks the event against the schema: the action type and category
// must belong to their fixed sets (normalized in place), the operation must
// be non-empty after trimming, and the timestamp must fall inside the
// acceptance window.
func (e *AuditEvent) Validate() error {
	actionType, err := NormalizeActionType(e.Action.Type)
	if err != nil {
		return err
	}
	e.Action.Type = actionType

	category, err := NormalizeCategory(e.Action.Category)
	if err != nil {
		return err
	}
	e.Action.Category = category

	e.Action.Operation = strings.TrimSpace(e.Action.Operation)
	if e.Action.Operation == "" {
		return &ValidationError{Field: "action.operation", Reason: "cannot be empty or whitespace-only"}
	}

	return e.validateTimestamp(time.Now().UTC())
}

func (e *AuditEvent) validateTimestamp(now time.Time) error {
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "cannot be zero"}
	}
	if e.Timestamp.After(now.Add(maxFutureSkew)) {
		return &ValidationError{
			Field:  "timestamp",
			Reason: fmt.Sprintf("too far in the future: %s (now: %s)", e.Timestamp.Format(time.RFC3339), now.Format(time.RFC3339)),
		}
	}
	if e.Timestamp.Before(now.Add(-maxPastAge)) {
		return &ValidationError{
			Field:  "timestamp",
			Reason: fmt.Sprintf("too far in the past: %s", e.Timestamp.Format(time.RFC3339)),
		}
	}
	return nil
}

// ToMap converts the event to its generic key-value wire form. Unset
// optional blocks are absent from the result.
func (e *AuditEvent) ToMap() (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode event map: %w", err)
	}
	return m, nil
}

// FromMap rehydrates and validates an event from its wire form.
func FromMap(m map[string]any) (*AuditEvent, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode event map: %w", err)
	}
	return FromJSON(data)
}

// FromJSON decodes and validates an event from JSON. Timestamps must carry a
// timezone offset; events outside the acceptance window are rejected.
func FromJSON(data []byte) (*AuditEvent, error) {
	var e AuditEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &ValidationError{Field: "event", Reason: err.Error()}
	}
	e.FillDefaults()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ToJSON serializes the event. With indent true the output is a formatted
// multi-line object; otherwise it is a single compact line suitable for
// streaming.
func (e *AuditEvent) ToJSON(indent bool) ([]byte, error) {
	if indent {
		return json.MarshalIndent(e, "", "  ")
	}
	return json.Marshal(e)
}

// Clone returns a deep copy of the event by way of its wire form.
func (e *AuditEvent) Clone() (*AuditEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	var out AuditEvent
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &out, nil
}
