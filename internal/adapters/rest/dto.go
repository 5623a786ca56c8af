package rest

import (
	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
)

type CreateSearchRequestDTO struct {
	Query string `json:"query"`
}

type SearchQueuedDTO struct {
	Message  string `json:"message"`
	SearchID string `json:"search_id"`
}

type SearchStatusDTO struct {
	SearchID    string           `json:"search_id"`
	Status      domain.JobStatus `json:"status"`
	IsSearching bool             `json:"is_searching"`
}

type SearchResultsDTO struct {
	SearchStatusDTO
	Results []contracts.EventMessage `json:"results"`
}

func toStatusDTO(job domain.Job) SearchStatusDTO {
	return SearchStatusDTO{
		SearchID:    job.ID.String(),
		Status:      job.Status,
		IsSearching: job.Status.IsActive(),
	}
}

func toResultsDTO(snap domain.SearchSnapshot) SearchResultsDTO {
	return SearchResultsDTO{
		SearchStatusDTO: toStatusDTO(snap.Job),
		Results:         contracts.NewEntries(snap.Entries),
	}
}
