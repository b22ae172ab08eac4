// Package handlers implements the collector's HTTP API: single and batch
// event submission, stored-event queries, health and stats.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vigil-systems/vigil/audit"
	"github.com/vigil-systems/vigil/collector/internal/metrics"
	"github.com/vigil-systems/vigil/collector/internal/ratelimit"
	"github.com/vigil-systems/vigil/common/httputil"
	"github.com/vigil-systems/vigil/common/logging"
	"github.com/vigil-systems/vigil/engine"
	"github.com/vigil-systems/vigil/storage/postgres"
)

// maxBodyBytes bounds a request body; a batch of 100 full events fits with
// room to spare.
const maxBodyBytes = 10 << 20

// Handler holds the collector's dependencies. store may be nil when no
// postgres backend is configured; the query routes then answer 501.
type Handler struct {
	engine  *engine.Engine
	store   *postgres.Backend
	limiter ratelimit.RateLimiter
	logger  *logging.Logger
}

// New creates a Handler.
func New(eng *engine.Engine, store *postgres.Backend, limiter ratelimit.RateLimiter, logger *logging.Logger) *Handler {
	if limiter == nil {
		limiter = ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: eng, store: store, limiter: limiter, logger: logger}
}

// HandleEvent accepts one event: POST /api/v1/events.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.allow(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var event audit.AuditEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		metrics.EventsTotal.WithLabelValues("event", "bad_request").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	event.FillDefaults()
	if r.ContentLength > 0 {
		metrics.EventBytesTotal.Add(float64(r.ContentLength))
	}

	start := time.Now()
	_, err := h.engine.LogEvent(r.Context(), &event)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.EventsTotal.WithLabelValues("event", "accepted").Inc()
		httputil.WriteJSON(w, http.StatusAccepted, audit.IngestResponse{Status: "accepted", EventID: event.EventID})
	case errors.Is(err, audit.ErrSuppressed):
		metrics.EventsTotal.WithLabelValues("event", "suppressed").Inc()
		metrics.EventsSuppressed.Inc()
		httputil.WriteJSON(w, http.StatusAccepted, audit.IngestResponse{Status: "suppressed", EventID: event.EventID})
	case errors.Is(err, audit.ErrDisabled):
		metrics.EventsTotal.WithLabelValues("event", "disabled").Inc()
		httputil.WriteError(w, http.StatusServiceUnavailable, "audit logging is disabled")
	default:
		h.rejectEvent(w, r, "event", err)
	}
}

// HandleBatch accepts up to 100 events: POST /api/v1/events/batch. Each
// event succeeds or fails independently.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.allow(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var batch audit.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		metrics.EventsTotal.WithLabelValues("batch", "bad_request").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if len(batch.Events) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "batch contains no events")
		return
	}
	if len(batch.Events) > audit.MaxBatchSize {
		httputil.WriteError(w, http.StatusBadRequest,
			"batch exceeds maximum size of "+strconv.Itoa(audit.MaxBatchSize)+" events")
		return
	}

	metrics.BatchSize.Observe(float64(len(batch.Events)))
	if r.ContentLength > 0 {
		metrics.EventBytesTotal.Add(float64(r.ContentLength))
	}

	events := make([]*audit.AuditEvent, len(batch.Events))
	for i := range batch.Events {
		events[i] = &batch.Events[i]
	}

	start := time.Now()
	accepted, itemErrs := h.engine.LogBatch(r.Context(), events)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	resp := audit.BatchResponse{Status: "accepted", EventIDs: make([]string, 0, len(accepted))}
	for _, event := range accepted {
		resp.Accepted++
		resp.EventIDs = append(resp.EventIDs, event.EventID)
		metrics.EventsTotal.WithLabelValues("batch", "accepted").Inc()
	}
	for _, item := range itemErrs {
		switch {
		case errors.Is(item.Err, audit.ErrSuppressed):
			metrics.EventsTotal.WithLabelValues("batch", "suppressed").Inc()
			metrics.EventsSuppressed.Inc()
		default:
			metrics.EventsTotal.WithLabelValues("batch", "rejected").Inc()
			h.countRejection(item.Err)
			resp.Errors = append(resp.Errors, audit.BatchError{Index: item.Index, Error: item.Err.Error()})
		}
	}

	if len(resp.Errors) > 0 {
		resp.Status = "partial"
	}
	httputil.WriteJSON(w, http.StatusAccepted, resp)
}

// HandleQuery serves stored events: GET /api/v1/events. Requires a postgres
// backend.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.store == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "no queryable storage backend configured")
		return
	}

	filter, err := parseQueryFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.store.Query(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "event query failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "event count failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if events == nil {
		events = []*audit.AuditEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

// HandleGetEvent serves one stored event: GET /api/v1/events/{id}.
func (h *Handler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.store == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "no queryable storage backend configured")
		return
	}

	eventID := r.PathValue("id")
	if eventID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing event id")
		return
	}

	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, postgres.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "event lookup failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, event)
}

// HandleStats exposes engine counters: GET /api/v1/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.engine.Stats())
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness to accept events.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// allow applies rate limiting keyed by client IP. Limiter faults fail open:
// losing Redis should not stop audit ingestion.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	client := httputil.ClientIP(r)
	allowed, err := h.limiter.Allow(r.Context(), client)
	if err != nil {
		h.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
			logging.IP(client), logging.Error(err))
		return true
	}
	if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (h *Handler) rejectEvent(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	metrics.EventsTotal.WithLabelValues(endpoint, "rejected").Inc()
	h.countRejection(err)

	var valErr *audit.ValidationError
	var procErr *audit.ProcessingError
	switch {
	case errors.As(err, &valErr):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &procErr) && procErr.Stage == "store":
		h.logger.ErrorContext(r.Context(), "event storage failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "storage failed")
	default:
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) countRejection(err error) {
	var valErr *audit.ValidationError
	var procErr *audit.ProcessingError
	switch {
	case errors.As(err, &valErr):
		metrics.ValidationErrors.Inc()
	case errors.As(err, &procErr) && procErr.Stage == "store":
		metrics.StorageErrors.Inc()
	case errors.As(err, &procErr) && procErr.Stage == "validate":
		metrics.ValidationErrors.Inc()
	}
}

func parseQueryFilter(r *http.Request) (postgres.QueryFilter, error) {
	q := r.URL.Query()
	filter := postgres.QueryFilter{
		Category:   q.Get("category"),
		ActionType: q.Get("action_type"),
		Username:   q.Get("username"),
		Status:     q.Get("status"),
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, errors.New("invalid since timestamp, expected RFC3339")
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, errors.New("invalid until timestamp, expected RFC3339")
		}
		filter.Until = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}

	return filter, nil
}
