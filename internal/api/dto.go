package api

import (
	"github.com/starford/shortwatch/internal/detectionservice"
	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/store"
)

// EnrichRequest is the request body for on-demand enrichment.
type EnrichRequest struct {
	URL string `json:"url" example:"https://www.youtube.com/shorts/abc123" validate:"required"`
}

// Detection is the published detection (aliased from the domain layer).
type Detection = events.Detection

// DetectionListResponse wraps paginated detection listings.
type DetectionListResponse struct {
	Detections []Detection `json:"detections" validate:"required"`
	Total      int         `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = store.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// ExtractResponse is the parsed form of a URL.
type ExtractResponse = detectionservice.Extraction

// StatusResponse reports the ingestion paths.
type StatusResponse = detectionservice.Status
