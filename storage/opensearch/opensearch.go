// Package opensearch indexes audit events into daily OpenSearch indices.
package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/vigil-systems/vigil/audit"
	"github.com/vigil-systems/vigil/common/database"
	"github.com/vigil-systems/vigil/storage"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	Logger        *slog.Logger
}

// DefaultConfig returns development-friendly defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "vigil-audit",
	}
}

// Backend indexes events into one index per UTC day, named
// {prefix}-YYYY.MM.DD. The event id doubles as the document id so retried
// submissions overwrite instead of duplicating.
type Backend struct {
	client      *opensearch.Client
	indexPrefix string
	logger      *slog.Logger
}

var _ storage.BatchBackend = (*Backend)(nil)

// New creates the backend and verifies connectivity.
func New(cfg Config) (*Backend, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultConfig().URL
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultConfig().IndexPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	cfg.Logger.Info("connected to opensearch",
		slog.String("url", cfg.URL),
		slog.String("index_prefix", cfg.IndexPrefix),
	)

	return &Backend{
		client:      client,
		indexPrefix: cfg.IndexPrefix,
		logger:      cfg.Logger,
	}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string { return "opensearch" }

// Store indexes the event into the index for its UTC day.
func (b *Backend) Store(ctx context.Context, event *audit.AuditEvent) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	data, err := event.ToJSON(false)
	if err != nil {
		return &audit.StorageError{Backend: "opensearch", Err: fmt.Errorf("failed to encode event: %w", err)}
	}

	req := opensearchapi.IndexRequest{
		Index:      b.indexFor(event),
		DocumentID: event.EventID,
		Body:       strings.NewReader(string(data)),
	}

	res, err := req.Do(ctx, b.client)
	if err != nil {
		return &audit.StorageError{Backend: "opensearch", Err: fmt.Errorf("failed to index event: %w", err)}
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return &audit.StorageError{
			Backend: "opensearch",
			Err:     fmt.Errorf("index request failed: %s - %s", res.Status(), string(body)),
		}
	}

	return nil
}

// StoreBatch bulk-indexes events, reporting how many were accepted.
func (b *Backend) StoreBatch(ctx context.Context, events []*audit.AuditEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	// group by target index so each bulk indexer writes one day's index
	byIndex := make(map[string][]*audit.AuditEvent)
	for _, event := range events {
		idx := b.indexFor(event)
		byIndex[idx] = append(byIndex[idx], event)
	}

	// The bulk indexer invokes OnSuccess/OnFailure from concurrent worker
	// goroutines; mu guards the shared counters.
	var mu sync.Mutex
	indexed := 0
	var failures []string

	for idx, group := range byIndex {
		bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
			Client: b.client,
			Index:  idx,
		})
		if err != nil {
			return indexed, &audit.StorageError{Backend: "opensearch", Err: fmt.Errorf("failed to create bulk indexer: %w", err)}
		}

		for _, event := range group {
			data, err := event.ToJSON(false)
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("encode %s: %v", event.EventID, err))
				mu.Unlock()
				continue
			}

			err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
				Action:     "index",
				DocumentID: event.EventID,
				Body:       strings.NewReader(string(data)),
				OnSuccess: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem) {
					mu.Lock()
					indexed++
					mu.Unlock()
				},
				OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failures = append(failures, err.Error())
					} else {
						failures = append(failures, fmt.Sprintf("%s: %s", res.Error.Type, res.Error.Reason))
					}
				},
			})
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("add %s: %v", event.EventID, err))
				mu.Unlock()
			}
		}

		if err := bi.Close(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("close bulk indexer: %v", err))
		}
	}

	if len(failures) > 0 {
		b.logger.Warn("partial bulk index failure",
			slog.Int("indexed", indexed),
			slog.Int("failed", len(failures)),
		)
		return indexed, &audit.StorageError{
			Backend: "opensearch",
			Err:     fmt.Errorf("%d events failed: %s", len(failures), strings.Join(failures, "; ")),
		}
	}

	return indexed, nil
}

// Close implements storage.Backend. The underlying HTTP transport needs no
// explicit shutdown.
func (b *Backend) Close() error { return nil }

func (b *Backend) indexFor(event *audit.AuditEvent) string {
	return fmt.Sprintf("%s-%s", b.indexPrefix, event.Timestamp.UTC().Format("2006.01.02"))
}
