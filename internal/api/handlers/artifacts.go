// Package handlers implements the HTTP handlers for the serving API.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// ArtifactHandler serves rendered bodies straight from the store's
// served prefix. Bodies are public, anonymous, and cacheable.
type ArtifactHandler struct {
	store       blob.Store
	cacheMaxAge int
	logger      *logger.Logger
}

// NewArtifactHandler creates the artifact handler. maxAge is the
// Cache-Control lifetime in seconds.
func NewArtifactHandler(store blob.Store, maxAge int, log *logger.Logger) *ArtifactHandler {
	if maxAge <= 0 {
		maxAge = 3600
	}
	return &ArtifactHandler{store: store, cacheMaxAge: maxAge, logger: log}
}

// GetArtifact returns one served body.
// GET /artifacts/{type}/{date}/{id}.json
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	artifactType := contracts.ArtifactType(vars["type"])
	if !contracts.IsValidArtifactType(artifactType) {
		respondError(w, http.StatusNotFound, "unknown artifact type")
		return
	}
	date, err := contracts.ParseDate(vars["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	id := vars["id"]
	if id == "" || strings.ContainsAny(id, "/\\") {
		respondError(w, http.StatusBadRequest, "invalid artifact id")
		return
	}

	h.serveObject(w, r, contracts.ArtifactPath(artifactType, date, id))
}

// GetIndex returns the pointer to the most recent fully served date.
// GET /artifacts/index/latest.json
func (h *ArtifactHandler) GetIndex(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, contracts.IndexPath)
}

// serveObject streams a stored body as-is. Bodies were rendered
// size-bounded, so nothing is recomputed at request time.
func (h *ArtifactHandler) serveObject(w http.ResponseWriter, r *http.Request, key string) {
	obj, err := h.store.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		respondError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		h.logger.WithFields(map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		}).Error("Failed to read artifact")
		respondError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", h.cacheMaxAge))
	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Body)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
