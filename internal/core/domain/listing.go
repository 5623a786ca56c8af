package domain

import "encoding/json"

// SourceID identifies one third-party listing source.
type SourceID string

const (
	SourceCraigslist SourceID = "craigslist"
	SourceEbay       SourceID = "ebay"
	SourceOfferUp    SourceID = "offerup"

	// SourceAggregator marks entries produced by the service itself rather
	// than by a listing source, such as a cancellation.
	SourceAggregator SourceID = "aggregator"
)

// ListingRecord is a single used-item listing as produced by a source adapter.
type ListingRecord struct {
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	ImageURLs []string `json:"image_urls"`
	URL       *string  `json:"url"`
}

// MarshalJSON keeps image_urls an array even when the adapter found none.
func (l ListingRecord) MarshalJSON() ([]byte, error) {
	type alias ListingRecord
	out := alias(l)
	if out.ImageURLs == nil {
		out.ImageURLs = []string{}
	}
	return json.Marshal(out)
}
