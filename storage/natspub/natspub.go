// Package natspub publishes accepted audit events to a NATS subject so
// downstream consumers (alerting, archival, analytics) receive them as they
// arrive.
package natspub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vigil-systems/vigil/audit"
)

// DefaultSubject is the root subject events publish to when none is
// configured. The event category is appended as a token, e.g.
// audit.events.database.
const DefaultSubject = "audit.events"

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	Subject       string
	Username      string
	Password      string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "vigil-publisher",
		Subject:       DefaultSubject,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Backend publishes events as compact JSON messages.
type Backend struct {
	conn    *nats.Conn
	subject string
}

// New connects to the NATS server.
func New(cfg Config) (*Backend, error) {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Backend{conn: conn, subject: cfg.Subject}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string { return "nats" }

// Store publishes the event to {subject}.{category}.
func (b *Backend) Store(ctx context.Context, event *audit.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return &audit.StorageError{Backend: "nats", Err: err}
	}

	data, err := event.ToJSON(false)
	if err != nil {
		return &audit.StorageError{Backend: "nats", Err: fmt.Errorf("failed to marshal event: %w", err)}
	}

	subject := b.subject + "." + strings.ToLower(event.Action.Category)
	if err := b.conn.Publish(subject, data); err != nil {
		return &audit.StorageError{Backend: "nats", Err: fmt.Errorf("failed to publish event: %w", err)}
	}
	return nil
}

// Close drains the connection, letting in-flight messages complete.
func (b *Backend) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
