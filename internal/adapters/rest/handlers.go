package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Hamnivore/used-item-aggregator/internal/contextkeys"
	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port/usecases_port"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SearchHandlers struct {
	dispatcher usecases_port.DispatchSearchPort
	results    port.ResultStorePort
}

func NewSearchHandlers(dispatcher usecases_port.DispatchSearchPort, results port.ResultStorePort) *SearchHandlers {
	return &SearchHandlers{dispatcher: dispatcher, results: results}
}

func (h *SearchHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleQueueSearchByPath - GET /search/{query}
func (h *SearchHandlers) HandleQueueSearchByPath(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "HandleQueueSearchByPath"})
	h.queue(w, r, logger, chi.URLParam(r, "query"), http.StatusOK)
}

// HandleCreateSearch - POST /api/v1/searches
func (h *SearchHandlers) HandleCreateSearch(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "HandleCreateSearch"})

	var reqDTO CreateSearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		if errors.Is(err, io.EOF) {
			WriteJSONError(w, http.StatusBadRequest, "Request body is empty")
			return
		}
		logger.Warn("Failed to decode request body", port.Fields{"error": err.Error()})
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	h.queue(w, r, logger, reqDTO.Query, http.StatusAccepted)
}

func (h *SearchHandlers) queue(w http.ResponseWriter, r *http.Request, logger port.LoggerPort, query string, okStatus int) {
	if strings.TrimSpace(query) == "" {
		WriteJSONError(w, http.StatusBadRequest, "Field 'query' is required")
		return
	}
	if utf8.RuneCountInString(query) > contracts.MaxQueryLength {
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Field 'query' must be at most %d characters", contracts.MaxQueryLength))
		return
	}

	job, err := h.dispatcher.Enqueue(r.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQueueFull):
			logger.Warn("Search rejected, queue is full", port.Fields{"query": query})
			WriteJSONError(w, http.StatusServiceUnavailable, "Search queue is full, try again later")
		case errors.Is(err, domain.ErrDispatcherClosed):
			WriteJSONError(w, http.StatusServiceUnavailable, "Service is shutting down")
		default:
			logger.Error("Failed to queue search", err, port.Fields{"query": query})
			WriteJSONError(w, http.StatusInternalServerError, "Failed to queue search")
		}
		return
	}

	RespondWithJSON(w, okStatus, SearchQueuedDTO{Message: "Search queued", SearchID: job.ID.String()})
}

// HandleGetResults - GET /results/{searchID} and GET /api/v1/searches/{searchID}
func (h *SearchHandlers) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "HandleGetResults"})

	snap, ok := h.snapshot(w, r, logger)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, toResultsDTO(snap))
}

// HandleGetStatus - GET /api/v1/searches/{searchID}/status
func (h *SearchHandlers) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "HandleGetStatus"})

	snap, ok := h.snapshot(w, r, logger)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, toStatusDTO(snap.Job))
}

func (h *SearchHandlers) snapshot(w http.ResponseWriter, r *http.Request, logger port.LoggerPort) (domain.SearchSnapshot, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "searchID"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid search ID format")
		return domain.SearchSnapshot{}, false
	}

	snap, err := h.results.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSearchNotFound) {
			WriteJSONError(w, http.StatusNotFound, "Search not found")
			return domain.SearchSnapshot{}, false
		}
		logger.Error("Failed to read search results", err, port.Fields{"search_id": id.String()})
		WriteJSONError(w, http.StatusInternalServerError, "Failed to read search results")
		return domain.SearchSnapshot{}, false
	}
	return snap, true
}
