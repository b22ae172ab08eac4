// Package sanitize removes PII from audit events before they reach storage.
package sanitize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vigil-systems/vigil/audit"
)

// Redaction markers. FailedMarker is distinct from RedactedMarker so
// consumers can tell a rule-based redaction from a sanitizer fault.
const (
	RedactedMarker      = "***REDACTED***"
	EmailRedactedMarker = "***EMAIL_REDACTED***"
	DepthExceededMarker = "***MAX_DEPTH_EXCEEDED***"
	FailedMarker        = "***SANITIZE_FAILED***"
)

// DefaultMaxDepth bounds recursion into nested parameter trees.
const DefaultMaxDepth = 100

// Rule is one pattern-based redaction rule. Rules are applied in
// registration order.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
	Name        string
}

// Sanitizer redacts sensitive values from events using key-based and
// pattern-based detection. The rule registry is read-mostly: register custom
// rules at startup, before concurrent logging begins.
type Sanitizer struct {
	rules         []Rule
	emailPattern  *regexp.Regexp
	sensitiveKeys []string
	maxDepth      int
	logger        *slog.Logger
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithMaxDepth overrides the recursion bound for nested structures.
func WithMaxDepth(depth int) Option {
	return func(s *Sanitizer) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithLogger sets the logger used to report sanitization faults.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sanitizer) { s.logger = logger }
}

// New creates a Sanitizer with the default detection rules.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		rules: []Rule{
			{
				// key=val, key: val and "key":"val" password assignments
				Pattern:     regexp.MustCompile(`(?i)(password|pwd|passwd)["\s]*[=:]["\s]*([^\s,}"]+)`),
				Replacement: "$1=" + RedactedMarker,
				Name:        "password",
			},
			{
				Pattern:     regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
				Replacement: "****-****-****-XXXX",
				Name:        "credit_card",
			},
			{
				Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
				Replacement: "***-**-XXXX",
				Name:        "ssn",
			},
			{
				// the value class must include _ and - or prefixed tokens
				// like xk_live_... slip through
				Pattern:     regexp.MustCompile(`(?i)(api[_-]?key|token|secret)\s*[=:]\s*([a-zA-Z0-9_-]{20,})`),
				Replacement: "$1=" + RedactedMarker,
				Name:        "api_key",
			},
		},
		emailPattern: regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
		sensitiveKeys: []string{
			"password", "pwd", "passwd", "secret", "token",
			"api_key", "apikey", "credit_card", "ssn", "authorization",
		},
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRule registers a custom pattern-based rule. The pattern is compiled at
// registration; invalid patterns never reach the hot path.
func (s *Sanitizer) AddRule(pattern, replacement, name string) error {
	if pattern == "" {
		return &audit.ProcessingError{Stage: "sanitize", Err: fmt.Errorf("pattern cannot be empty")}
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return &audit.ProcessingError{
			Stage: "sanitize",
			Err:   fmt.Errorf("invalid pattern %q for rule %q: %w", pattern, name, err),
		}
	}
	s.rules = append(s.rules, Rule{Pattern: compiled, Replacement: replacement, Name: name})
	s.logger.Info("registered sanitization rule", slog.String("rule", name))
	return nil
}

// Rules returns the number of registered pattern rules.
func (s *Sanitizer) Rules() int { return len(s.rules) }

// SanitizeEvent redacts sensitive values in place on the given event and
// returns it. Parameters, custom and metadata trees are walked recursively;
// the actor email and error text are scrubbed directly. A fault while
// sanitizing any single value substitutes a marker, never the raw value.
func (s *Sanitizer) SanitizeEvent(event *audit.AuditEvent) *audit.AuditEvent {
	if event == nil {
		return nil
	}

	if event.Action.Parameters != nil {
		event.Action.Parameters = s.SanitizeMap(event.Action.Parameters)
	}
	if event.Custom != nil {
		event.Custom = s.SanitizeMap(event.Custom)
	}
	if event.Metadata != nil {
		event.Metadata = s.SanitizeMap(event.Metadata)
	}
	if event.Actor != nil && event.Actor.Email != "" {
		event.Actor.Email = s.sanitizeEmail(event.Actor.Email)
	}
	if event.Error != nil {
		if event.Error.Message != "" {
			event.Error.Message = s.SanitizeString(event.Error.Message)
		}
		if event.Error.StackTrace != "" {
			event.Error.StackTrace = s.SanitizeString(event.Error.StackTrace)
		}
	}

	return event
}

// SanitizeMap returns a sanitized copy of the map.
func (s *Sanitizer) SanitizeMap(data map[string]any) map[string]any {
	return s.sanitizeMap(data, 0)
}

// SanitizeString applies all pattern rules and email redaction to a string.
func (s *Sanitizer) SanitizeString(text string) string {
	out := text
	for _, rule := range s.rules {
		out = rule.Pattern.ReplaceAllString(out, rule.Replacement)
	}
	return s.sanitizeEmail(out)
}

func (s *Sanitizer) sanitizeMap(data map[string]any, depth int) map[string]any {
	if depth > s.maxDepth {
		return map[string]any{"_truncated": DepthExceededMarker}
	}

	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		if s.isSensitiveKey(key) {
			sanitized[key] = RedactedMarker
			continue
		}
		sanitized[key] = s.sanitizeValue(value, depth+1)
	}
	return sanitized
}

func (s *Sanitizer) sanitizeSlice(data []any, depth int) []any {
	if depth > s.maxDepth {
		return []any{DepthExceededMarker}
	}

	sanitized := make([]any, 0, len(data))
	for _, item := range data {
		sanitized = append(sanitized, s.sanitizeValue(item, depth+1))
	}
	return sanitized
}

// sanitizeValue dispatches on the value kind. A panic while handling one
// value is absorbed and the value collapses to FailedMarker: a sanitizer bug
// degrades detail, never leaks data.
func (s *Sanitizer) sanitizeValue(value any, depth int) (result any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sanitization failed, substituting marker",
				slog.Any("panic", r),
				slog.Int("depth", depth),
			)
			result = FailedMarker
		}
	}()

	if depth > s.maxDepth {
		return DepthExceededMarker
	}

	switch v := value.(type) {
	case map[string]any:
		return s.sanitizeMap(v, depth)
	case []any:
		return s.sanitizeSlice(v, depth)
	case string:
		return s.SanitizeString(v)
	default:
		return v
	}
}

func (s *Sanitizer) isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range s.sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) sanitizeEmail(text string) string {
	return s.emailPattern.ReplaceAllString(text, EmailRedactedMarker)
}
