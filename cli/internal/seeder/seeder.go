// Package seeder generates realistic audit events and submits them to a
// collector. It is meant for development and load testing.
package seeder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/vigil-systems/vigil/audit"
	"github.com/vigil-systems/vigil/client"
)

// Config controls what the seeder generates and where it sends it.
type Config struct {
	CollectorURL string
	APIKey       string
	Count        int
	BatchSize    int
	TimeSpread   time.Duration
	Categories   []string
	Seed         int64
}

// Defaults for the seeder.
const (
	DefaultCount     = 100
	DefaultBatchSize = 50
)

var allCategories = []string{"AUTH", "DATABASE", "API", "FILE", "SECURITY", "SYSTEM"}

// operationsByCategory lists plausible operations per category.
var operationsByCategory = map[string][]string{
	"AUTH":     {"login", "logout", "password_change", "mfa_verify", "token_refresh"},
	"DATABASE": {"select_users", "update_account", "insert_order", "delete_session", "migrate_schema"},
	"API":      {"get_profile", "create_order", "list_invoices", "update_settings", "export_report"},
	"FILE":     {"upload_document", "download_report", "delete_attachment", "archive_logs"},
	"SECURITY": {"grant_role", "revoke_role", "rotate_signing_key", "update_policy"},
	"SYSTEM":   {"config_reload", "backup_run", "certificate_rotate", "cache_flush", "schedule_job"},
}

var actionTypesByCategory = map[string][]string{
	"AUTH":     {"LOGIN", "LOGOUT", "ACCESS"},
	"DATABASE": {"READ", "WRITE", "DELETE"},
	"API":      {"READ", "WRITE", "EXECUTE"},
	"FILE":     {"READ", "WRITE", "DELETE"},
	"SECURITY": {"GRANT", "REVOKE", "MODIFY"},
	"SYSTEM":   {"EXECUTE", "WRITE"},
}

// Generator produces fake audit events. Deterministic for a given seed.
type Generator struct {
	faker      *gofakeit.Faker
	rng        *rand.Rand
	categories []string
}

// NewGenerator creates a Generator. A zero seed gives a random sequence.
func NewGenerator(seed int64, categories []string) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(categories) == 0 {
		categories = allCategories
	}
	return &Generator{
		faker:      gofakeit.New(seed),
		rng:        rand.New(rand.NewSource(seed)),
		categories: categories,
	}
}

// Generate creates one event. index and total place the event inside the
// time spread window, walking backwards from now with jitter.
func (g *Generator) Generate(index, total int, timeSpread time.Duration) audit.AuditEvent {
	category := g.categories[g.rng.Intn(len(g.categories))]
	operations := operationsByCategory[category]
	actionTypes := actionTypesByCategory[category]

	event := audit.NewEvent()
	event.Timestamp = g.eventTime(time.Now().UTC(), timeSpread, index, total)
	event.Action.Category = category
	event.Action.Type = actionTypes[g.rng.Intn(len(actionTypes))]
	event.Action.Operation = operations[g.rng.Intn(len(operations))]
	event.Action.Description = fmt.Sprintf("%s via %s", event.Action.Operation, g.faker.AppName())

	event.Session = &audit.SessionContext{
		SessionID: g.faker.UUID(),
		RequestID: g.faker.UUID(),
	}
	event.Actor = &audit.ActorContext{
		Type:      "user",
		Username:  g.faker.Username(),
		Email:     g.faker.Email(),
		IPAddress: g.faker.IPv4Address(),
		UserAgent: g.faker.UserAgent(),
	}

	event.Action.Parameters = g.parameters(category)
	event.Action.Result = &audit.ActionResult{Status: "success"}

	duration := float64(g.rng.Intn(2000)) + g.rng.Float64()
	event.Performance = &audit.PerformanceMetrics{
		DurationMS: &duration,
		SlowQuery:  duration > 1500,
	}

	// Roughly one in ten operations fails.
	if g.rng.Float32() < 0.1 {
		event.Action.Result.Status = "failure"
		event.Error = &audit.ErrorInfo{
			Occurred: true,
			Type:     "OperationError",
			Message:  g.faker.HackerPhrase(),
			Handled:  true,
		}
	}

	return *event
}

// parameters builds a payload for the operation, deliberately including
// fields the sanitizer should redact.
func (g *Generator) parameters(category string) map[string]any {
	params := map[string]any{
		"request_id": g.faker.UUID(),
		"hostname":   g.faker.DomainName(),
	}

	switch category {
	case "AUTH":
		params["username"] = g.faker.Username()
		params["password"] = g.faker.Password(true, true, true, true, false, 16)
		params["mfa_enabled"] = g.rng.Float32() > 0.3
	case "DATABASE":
		params["table"] = g.faker.Noun()
		params["rows_affected"] = g.rng.Intn(500)
	case "API":
		params["endpoint"] = "/api/v1/" + g.faker.Noun()
		params["api_key"] = g.faker.LetterN(32)
		params["contact_email"] = g.faker.Email()
	case "FILE":
		params["path"] = "/data/" + g.faker.Word() + "/" + g.faker.Word() + ".dat"
		params["size_bytes"] = g.rng.Intn(10 << 20)
	case "SECURITY":
		params["role"] = g.faker.JobTitle()
		params["target_user"] = g.faker.Username()
	default:
		params["detail"] = g.faker.Sentence(6)
	}

	return params
}

// eventTime spreads events across the window with ±40% jitter per slot,
// walking backwards from now.
func (g *Generator) eventTime(now time.Time, timeSpread time.Duration, index, total int) time.Time {
	if timeSpread <= 0 || total <= 0 {
		return now
	}

	baseInterval := float64(timeSpread) / float64(total)
	baseOffset := time.Duration(float64(index) * baseInterval)

	jitterRange := baseInterval * 0.4
	jitter := time.Duration((g.rng.Float64()*2.0 - 1.0) * jitterRange)

	totalOffset := baseOffset + jitter
	if totalOffset < 0 {
		totalOffset = 0
	}
	if totalOffset > timeSpread {
		totalOffset = timeSpread
	}

	return now.Add(-(timeSpread - totalOffset))
}

// Result summarizes a seeding run.
type Result struct {
	Sent       int
	Suppressed int
	Failed     int
	Batches    int
	Elapsed    time.Duration
}

// Runner generates events and submits them in batches.
type Runner struct {
	cfg      Config
	client   *client.Client
	progress func(sent, total int)
}

// NewRunner creates a Runner for the configured collector.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > audit.MaxBatchSize {
		cfg.BatchSize = audit.MaxBatchSize
	}

	opts := []client.Option{}
	if cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.APIKey))
	}
	c, err := client.New(cfg.CollectorURL, opts...)
	if err != nil {
		return nil, err
	}

	return &Runner{cfg: cfg, client: c}, nil
}

// OnProgress registers a callback invoked after each batch.
func (r *Runner) OnProgress(fn func(sent, total int)) {
	r.progress = fn
}

// Run generates and submits all events, returning per-run totals. Individual
// batch failures are counted, not fatal.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	gen := NewGenerator(r.cfg.Seed, r.cfg.Categories)
	start := time.Now()
	result := &Result{}

	for offset := 0; offset < r.cfg.Count; offset += r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		size := r.cfg.BatchSize
		if offset+size > r.cfg.Count {
			size = r.cfg.Count - offset
		}

		batch := make([]audit.AuditEvent, size)
		for i := range batch {
			batch[i] = gen.Generate(offset+i, r.cfg.Count, r.cfg.TimeSpread)
		}

		resp, err := r.client.LogBatch(ctx, batch)
		result.Batches++
		if err != nil {
			result.Failed += size
			continue
		}

		result.Sent += resp.Accepted
		result.Failed += len(resp.Errors)
		if r.progress != nil {
			r.progress(offset+size, r.cfg.Count)
		}
	}

	result.Elapsed = time.Since(start)
	return result, nil
}
