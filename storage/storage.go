// Package storage defines the pluggable persistence contract consumed by the
// audit engine. Any medium (file, SQL table, search index, message subject)
// implements Backend; the engine fans every accepted event out to all of
// them.
package storage

import (
	"context"

	"github.com/vigil-systems/vigil/audit"
)

// Backend persists audit events. Store either completes or fails explicitly;
// there are no retries at this layer. Close flushes and releases resources
// and must be safe to call more than once.
type Backend interface {
	Store(ctx context.Context, event *audit.AuditEvent) error
	Close() error
	Name() string
}

// BatchBackend is implemented by backends that can persist many events in
// one round trip. The engine prefers StoreBatch over per-event Store when a
// whole batch has been accepted. StoreBatch reports how many events were
// persisted; a partial failure returns both the count and an error.
type BatchBackend interface {
	Backend
	StoreBatch(ctx context.Context, events []*audit.AuditEvent) (int, error)
}

// Spec describes one backend in configuration form. Fields beyond Type are
// interpreted by the matching backend.
type Spec struct {
	Type            string `mapstructure:"type" yaml:"type"`
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Directory       string `mapstructure:"directory" yaml:"directory,omitempty"`
	Format          string `mapstructure:"format" yaml:"format,omitempty"`
	FilenamePattern string `mapstructure:"filename_pattern" yaml:"filename_pattern,omitempty"`
	DSN             string `mapstructure:"dsn" yaml:"dsn,omitempty"`
	URL             string `mapstructure:"url" yaml:"url,omitempty"`
	Username        string `mapstructure:"username" yaml:"username,omitempty"`
	Password        string `mapstructure:"password" yaml:"password,omitempty"`
	Insecure        bool   `mapstructure:"insecure" yaml:"insecure,omitempty"`
	IndexPrefix     string `mapstructure:"index_prefix" yaml:"index_prefix,omitempty"`
	Subject         string `mapstructure:"subject" yaml:"subject,omitempty"`
}
