// Package model defines domain entities for the application.
package model

import "time"

// Platform identifies the social network a content item was published on.
type Platform string

// Supported platforms.
const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformX         Platform = "x"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformX:
		return true
	}
	return false
}

// Counters holds the cumulative engagement counters of a content item.
type Counters struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Saves    int64 `json:"saves"`
}

// HasNegative reports whether any counter is below zero.
func (c Counters) HasNegative() bool {
	return c.Views < 0 || c.Likes < 0 || c.Comments < 0 || c.Shares < 0 || c.Saves < 0
}

// ContentItem is a tracked piece of content (a video, a post).
// Counters grow over time and are captured by Snapshots; Current holds the
// live values as last reported by the platform.
type ContentItem struct {
	ID            string    `json:"id"`
	CreatorHandle string    `json:"creator_handle"`
	Platform      Platform  `json:"platform"`
	CreatedAt     time.Time `json:"created_at"`

	// Current is the live counter state, used when no snapshot exists.
	Current Counters `json:"current"`

	// Snapshots are listed in ingestion order.
	Snapshots []Snapshot `json:"snapshots,omitempty"`
}

// Snapshot is an immutable measurement of a content item's cumulative counters.
type Snapshot struct {
	ItemID     string    `json:"item_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	IsInitial  bool      `json:"is_initial,omitempty"`
	Counters
}

// Scope identifies the tenant slice of data a dashboard is rendered for.
type Scope struct {
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// Key returns a stable string form of the scope, suitable for cache keys.
func (s Scope) Key() string {
	return s.OrgID + ":" + s.ProjectID + ":" + s.AccountID
}
