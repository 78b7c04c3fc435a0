package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidemark/tidemark/internal/ingest"
	"github.com/tidemark/tidemark/pkg/types"
)

// Batches larger than this are rejected outright; clients should split them.
const maxBatchSize = 10000

// EventBatchRequest represents a POST /v1/events request.
type EventBatchRequest struct {
	Events []types.Event `json:"events"`
}

// DimensionBatchRequest represents a POST /v1/dimensions request.
type DimensionBatchRequest struct {
	Records []types.DimensionRecord `json:"records"`
}

// BatchResponse reports the per-item outcomes of a batch submission.
type BatchResponse struct {
	Results   []ingest.ItemResult `json:"results"`
	Accepted  int                 `json:"accepted"`
	Rejected  int                 `json:"rejected"`
	RequestID string              `json:"request_id"`
}

// EventsHandler handles POST /v1/events requests.
type EventsHandler struct {
	ingestor *ingest.Ingestor
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(in *ingest.Ingestor) *EventsHandler {
	return &EventsHandler{ingestor: in}
}

// ServeHTTP handles the event batch HTTP request.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req EventBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events must not be empty", requestID)
		return
	}
	if len(req.Events) > maxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds %d events", maxBatchSize), requestID)
		return
	}

	results, err := h.ingestor.SubmitEvents(r.Context(), req.Events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to journal batch: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse(results, requestID))
}

// DimensionsHandler handles POST /v1/dimensions requests.
type DimensionsHandler struct {
	ingestor *ingest.Ingestor
}

// NewDimensionsHandler creates a new dimensions handler.
func NewDimensionsHandler(in *ingest.Ingestor) *DimensionsHandler {
	return &DimensionsHandler{ingestor: in}
}

// ServeHTTP handles the dimension batch HTTP request.
func (h *DimensionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req DimensionBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records must not be empty", requestID)
		return
	}
	if len(req.Records) > maxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds %d records", maxBatchSize), requestID)
		return
	}

	results, err := h.ingestor.SubmitDimensions(r.Context(), req.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to journal batch: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse(results, requestID))
}

func batchResponse(results []ingest.ItemResult, requestID string) BatchResponse {
	resp := BatchResponse{Results: results, RequestID: requestID}
	if resp.Results == nil {
		resp.Results = []ingest.ItemResult{}
	}
	for _, res := range results {
		if res.Status == ingest.StatusRejected {
			resp.Rejected++
		} else {
			resp.Accepted++
		}
	}
	return resp
}
