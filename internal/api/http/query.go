package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidemark/tidemark/internal/monitor"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/view"
	"github.com/tidemark/tidemark/pkg/types"
)

// EventTypeDailyHandler handles GET /v1/aggregates/event-type-daily requests.
type EventTypeDailyHandler struct {
	views *view.Maintainer
}

// NewEventTypeDailyHandler creates a new event-type daily query handler.
func NewEventTypeDailyHandler(views *view.Maintainer) *EventTypeDailyHandler {
	return &EventTypeDailyHandler{views: views}
}

func (h *EventTypeDailyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	from, to, err := dayRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	filter := view.EventTypeDailyFilter{
		EventType: types.EventType(r.URL.Query().Get("event_type")),
		Channel:   r.URL.Query().Get("channel"),
	}
	if filter.EventType != "" && !filter.EventType.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event_type %q", filter.EventType), requestID)
		return
	}

	rows := h.views.EventTypeDaily().Range(from, to, filter)
	if rows == nil {
		rows = []view.EventTypeDailyRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":       rows,
		"request_id": requestID,
	})
}

// OverallDailyHandler handles GET /v1/aggregates/overall-daily requests.
type OverallDailyHandler struct {
	views *view.Maintainer
}

// NewOverallDailyHandler creates a new overall daily query handler.
func NewOverallDailyHandler(views *view.Maintainer) *OverallDailyHandler {
	return &OverallDailyHandler{views: views}
}

func (h *OverallDailyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	from, to, err := dayRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	filter := view.OverallDailyFilter{
		Channel:    r.URL.Query().Get("channel"),
		DeviceType: r.URL.Query().Get("device_type"),
	}

	rows := h.views.OverallDaily().Range(from, to, filter)
	if rows == nil {
		rows = []view.OverallDailyRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":       rows,
		"request_id": requestID,
	})
}

// SessionHandler handles GET /v1/sessions/{session_id} requests.
type SessionHandler struct {
	views *view.Maintainer
}

// NewSessionHandler creates a new session rollup handler.
func NewSessionHandler(views *view.Maintainer) *SessionHandler {
	return &SessionHandler{views: views}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusBadRequest, "session id is required", requestID)
		return
	}

	roll, ok := h.views.Sessions().Rollup(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", sessionID), requestID)
		return
	}
	writeJSON(w, http.StatusOK, roll)
}

// DimensionLookupHandler handles GET /v1/dimensions/{user_id} requests.
type DimensionLookupHandler struct {
	dims *store.DimensionStore
}

// NewDimensionLookupHandler creates a new dimension lookup handler.
func NewDimensionLookupHandler(dims *store.DimensionStore) *DimensionLookupHandler {
	return &DimensionLookupHandler{dims: dims}
}

func (h *DimensionLookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/v1/dimensions/")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "user id must be a positive integer", requestID)
		return
	}

	rec, ok := h.dims.Lookup(userID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("user %d not found", userID), requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// MonitorRecordsHandler handles GET /v1/monitor/records requests.
type MonitorRecordsHandler struct {
	records monitor.RecordStore
}

// NewMonitorRecordsHandler creates a new monitor record query handler.
func NewMonitorRecordsHandler(records monitor.RecordStore) *MonitorRecordsHandler {
	return &MonitorRecordsHandler{records: records}
}

func (h *MonitorRecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	min := types.StatusHealthy
	if raw := r.URL.Query().Get("min_status"); raw != "" {
		min = types.Status(raw)
		switch min {
		case types.StatusHealthy, types.StatusWarning, types.StatusCritical:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw), requestID)
			return
		}
	}

	records, err := h.records.HealthRecords(r.Context(), from, to, min)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query records: %v", err), requestID)
		return
	}
	if records == nil {
		records = []types.HealthRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":    records,
		"request_id": requestID,
	})
}

// MonitorGapsHandler handles GET /v1/monitor/gaps requests.
type MonitorGapsHandler struct {
	records monitor.RecordStore
}

// NewMonitorGapsHandler creates a new gap record query handler.
func NewMonitorGapsHandler(records monitor.RecordStore) *MonitorGapsHandler {
	return &MonitorGapsHandler{records: records}
}

func (h *MonitorGapsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	gaps, err := h.records.Gaps(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query gaps: %v", err), requestID)
		return
	}
	if gaps == nil {
		gaps = []types.MissingEventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"gaps":       gaps,
		"request_id": requestID,
	})
}

// HealthResponse summarizes the live pipeline state for GET /health.
type HealthResponse struct {
	Status     string                    `json:"status"`
	EventStore store.EventStoreStats     `json:"event_store"`
	Dimensions store.DimensionStoreStats `json:"dimensions"`
	Sessions   int64                     `json:"sessions"`
}

// HealthHandler handles GET /health requests.
type HealthHandler struct {
	events *store.EventStore
	dims   *store.DimensionStore
	views  *view.Maintainer
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(events *store.EventStore, dims *store.DimensionStore, views *view.Maintainer) *HealthHandler {
	return &HealthHandler{events: events, dims: dims, views: views}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		EventStore: h.events.Stats(),
		Dimensions: h.dims.Stats(),
		Sessions:   h.views.Sessions().Count(),
	})
}

// dayRange parses optional from/to calendar-day query parameters.
func dayRange(r *http.Request) (types.Day, types.Day, error) {
	parse := func(name string) (types.Day, error) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return "", nil
		}
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return "", fmt.Errorf("%s must be a 2006-01-02 day", name)
		}
		return types.Day(raw), nil
	}
	from, err := parse("from")
	if err != nil {
		return "", "", err
	}
	to, err := parse("to")
	if err != nil {
		return "", "", err
	}
	if from != "" && to != "" && to.Before(from) {
		return "", "", fmt.Errorf("to must not precede from")
	}
	return from, to, nil
}

// timeRange parses from/to Unix-second query parameters, defaulting to the
// trailing 24 hours.
func timeRange(r *http.Request) (int64, int64, error) {
	now := time.Now().Unix()
	from, to := now-86400, now

	parse := func(name string, fallback int64) (int64, error) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return fallback, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a Unix timestamp", name)
		}
		return v, nil
	}
	from, err := parse("from", from)
	if err != nil {
		return 0, 0, err
	}
	to, err = parse("to", to)
	if err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, fmt.Errorf("to must not precede from")
	}
	return from, to, nil
}
