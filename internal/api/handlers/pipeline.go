package handlers

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// PipelineHandler reports pipeline progress for operators.
type PipelineHandler struct {
	store  blob.Store
	logger *logger.Logger
}

// NewPipelineHandler creates the pipeline status handler.
func NewPipelineHandler(store blob.Store, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{store: store, logger: log}
}

// StatusResponse is the operator view of one business date.
type StatusResponse struct {
	BusinessDate     contracts.Date              `json:"business_date"`
	Committed        bool                        `json:"committed"`
	Marker           *contracts.DailyReadyMarker `json:"marker,omitempty"`
	LatestServedDate contracts.Date              `json:"latest_served_date,omitempty"`
}

// GetStatus reports whether a business date is committed and which date
// the serving index points at. Without a date parameter it reports the
// previous UTC day, the date the nightly pipeline works on.
// GET /api/pipeline/status?date=YYYY-MM-DD
func (h *PipelineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date := contracts.Today().AddDays(-1)
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := contracts.ParseDate(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	resp := StatusResponse{BusinessDate: date}

	obj, err := h.store.Get(ctx, contracts.MarkerKey(date))
	switch {
	case errors.Is(err, blob.ErrNotFound):
		// Date is not committed yet.
	case err != nil:
		h.logger.WithFields(map[string]interface{}{
			"business_date": string(date),
			"error":         err.Error(),
		}).Error("Failed to read ready marker")
		respondError(w, http.StatusInternalServerError, "failed to read pipeline state")
		return
	default:
		var marker contracts.DailyReadyMarker
		if err := json.Unmarshal(obj.Body, &marker); err != nil {
			h.logger.WithFields(map[string]interface{}{
				"business_date": string(date),
				"error":         err.Error(),
			}).Error("Ready marker is corrupt")
			respondError(w, http.StatusInternalServerError, "ready marker is corrupt")
			return
		}
		resp.Committed = true
		resp.Marker = &marker
	}

	idx, err := h.store.Get(ctx, contracts.IndexPath)
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		h.logger.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Failed to read serving index")
		respondError(w, http.StatusInternalServerError, "failed to read pipeline state")
		return
	}
	if err == nil {
		var index contracts.LatestIndex
		if err := json.Unmarshal(idx.Body, &index); err == nil {
			resp.LatestServedDate = index.LatestDate
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
