package model

import "time"

// Bundle is everything the dashboard reads for one scope in a render pass.
type Bundle struct {
	Items     []ContentItem `json:"items"`
	Clicks    []ClickEvent  `json:"clicks"`
	FetchedAt time.Time     `json:"fetched_at"`
}
