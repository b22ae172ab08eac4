package client

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

func testEvent() *audit.AuditEvent {
	event := audit.NewEvent()
	event.Action.Type = "READ"
	event.Action.Category = "DATABASE"
	event.Action.Operation = "select_users"
	return event
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond)}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("empty URL", func(t *testing.T) {
		_, err := New("  ")
		assert.Error(t, err)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		c, err := New("http://localhost:8200/")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8200", c.baseURL)
	})
}

func TestLog(t *testing.T) {
	var gotAuth string
	var gotEvent audit.AuditEvent

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/api/v1/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(audit.IngestResponse{Status: "accepted", EventID: gotEvent.EventID})
	}, WithAPIKey("secret-key"))

	resp, err := c.Log(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.EventID)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "select_users", gotEvent.Action.Operation)
}

func TestLogValidatesBeforeSending(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	event := testEvent()
	event.Action.Type = "TELEPORT"

	_, err := c.Log(context.Background(), event)
	var verr *audit.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, called)
}

func TestLogNilEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Log(context.Background(), nil)
	assert.Error(t, err)
}

func TestLogRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":"backend unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(audit.IngestResponse{Status: "accepted"})
	})

	resp, err := c.Log(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestLogDoesNotRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad event"}`, http.StatusBadRequest)
	})

	_, err := c.Log(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad event")
	assert.EqualValues(t, 1, calls.Load())
}

func TestLogExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"still down"}`, http.StatusInternalServerError)
	}, WithMaxRetries(2))

	_, err := c.Log(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.EqualValues(t, 3, calls.Load())
}

func TestLogContextCanceledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"down"}`, http.StatusInternalServerError)
	}, WithRetryWait(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Log(ctx, testEvent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/events/batch", r.URL.Path)

		var req audit.BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := audit.BatchResponse{Status: "accepted", Accepted: len(req.Events)}
		for _, e := range req.Events {
			resp.EventIDs = append(resp.EventIDs, e.EventID)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(resp)
	})

	events := []audit.AuditEvent{*testEvent(), *testEvent(), *testEvent()}
	resp, err := c.LogBatch(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Accepted)
	assert.Len(t, resp.EventIDs, 3)
}

func TestLogBatchEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.LogBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestLogBatchTooLarge(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	events := make([]audit.AuditEvent, audit.MaxBatchSize+1)
	for i := range events {
		events[i] = *testEvent()
	}

	_, err := c.LogBatch(context.Background(), events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum")
	assert.False(t, called)
}

func TestLogBatchRejectsInvalidMember(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	bad := *testEvent()
	bad.Action.Operation = ""

	_, err := c.LogBatch(context.Background(), []audit.AuditEvent{*testEvent(), bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event 1")
	assert.False(t, called)
}
