package seeder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-systems/vigil/audit"
)

func TestGenerateProducesValidEvents(t *testing.T) {
	gen := NewGenerator(42, nil)

	for i := 0; i < 50; i++ {
		event := gen.Generate(i, 50, 0)
		require.NoError(t, event.Validate(), "event %d", i)
		assert.NotEmpty(t, event.EventID)
		assert.NotNil(t, event.Actor)
		assert.NotEmpty(t, event.Actor.Username)
	}
}

func TestGeneratorTablesUseValidEnums(t *testing.T) {
	for _, category := range allCategories {
		normalized, err := audit.NormalizeCategory(category)
		require.NoError(t, err, "category %q", category)
		assert.Equal(t, category, normalized)

		require.NotEmpty(t, operationsByCategory[category], "no operations for %q", category)
		require.NotEmpty(t, actionTypesByCategory[category], "no action types for %q", category)

		for _, actionType := range actionTypesByCategory[category] {
			normalized, err := audit.NormalizeActionType(actionType)
			require.NoError(t, err, "action type %q for %q", actionType, category)
			assert.Equal(t, actionType, normalized)
		}
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a := NewGenerator(7, nil).Generate(0, 1, 0)
	b := NewGenerator(7, nil).Generate(0, 1, 0)

	assert.Equal(t, a.Action.Operation, b.Action.Operation)
	assert.Equal(t, a.Actor.Username, b.Actor.Username)
}

func TestGenerateRespectsCategories(t *testing.T) {
	gen := NewGenerator(1, []string{"AUTH"})

	for i := 0; i < 20; i++ {
		event := gen.Generate(i, 20, 0)
		assert.Equal(t, "AUTH", event.Action.Category)
	}
}

func TestGenerateTimeSpread(t *testing.T) {
	gen := NewGenerator(3, nil)
	spread := 24 * time.Hour
	now := time.Now()

	for i := 0; i < 10; i++ {
		event := gen.Generate(i, 10, spread)
		assert.True(t, event.Timestamp.After(now.Add(-spread-time.Minute)),
			"event %d too far in the past: %v", i, event.Timestamp)
		assert.True(t, event.Timestamp.Before(now.Add(time.Minute)),
			"event %d in the future: %v", i, event.Timestamp)
	}
}

func TestRunnerSendsBatches(t *testing.T) {
	var batches atomic.Int32
	var total atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/events/batch", r.URL.Path)
		assert.Equal(t, "Bearer seed-key", r.Header.Get("Authorization"))

		var req audit.BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches.Add(1)
		total.Add(int32(len(req.Events)))

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(audit.BatchResponse{Status: "accepted", Accepted: len(req.Events)})
	}))
	defer srv.Close()

	runner, err := NewRunner(Config{
		CollectorURL: srv.URL,
		APIKey:       "seed-key",
		Count:        25,
		BatchSize:    10,
		Seed:         99,
	})
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.Batches)
	assert.EqualValues(t, 3, batches.Load())
	assert.EqualValues(t, 25, total.Load())
}

func TestRunnerCountsFailedBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	runner, err := NewRunner(Config{CollectorURL: srv.URL, Count: 10, BatchSize: 10, Seed: 1})
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 10, result.Failed)
}

func TestNewRunnerClampsBatchSize(t *testing.T) {
	runner, err := NewRunner(Config{CollectorURL: "http://localhost:8200", BatchSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, audit.MaxBatchSize, runner.cfg.BatchSize)
}
